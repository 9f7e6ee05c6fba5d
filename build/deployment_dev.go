//go:build dev
// +build dev

package build

import "os"

// Deployment specifies a development build.
const Deployment = Development

// LogLevel is the level used by stderr loggers created by NewSubLogger. It can
// be overridden with the LOGLEVEL environment variable so unit tests can be
// made chatty without recompiling.
var LogLevel = func() string {
	if lvl := os.Getenv("LOGLEVEL"); lvl != "" {
		return lvl
	}

	return "info"
}()
