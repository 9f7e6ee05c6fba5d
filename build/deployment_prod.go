//go:build !dev
// +build !dev

package build

// Deployment specifies a production build.
const Deployment = Production

// LogLevel is the level used by stderr loggers created by NewSubLogger in
// development builds. Production builds never consult it.
const LogLevel = "info"
