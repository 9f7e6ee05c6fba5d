package build

import (
	"fmt"
	"os"
	"strings"

	"github.com/btcsuite/btclog/v2"
)

// NewSubLogger returns the logger of a subsystem. If genSubLogger is set the
// logger is created from the root handlers through it. Otherwise development
// builds log to stderr at LogLevel and production builds discard everything.
func NewSubLogger(subsystem string,
	genSubLogger func(string) btclog.Logger) btclog.Logger {

	if genSubLogger != nil {
		return genSubLogger(subsystem)
	}

	if Deployment != Development {
		return btclog.Disabled
	}

	handler := btclog.NewDefaultHandler(os.Stderr)
	logger := btclog.NewSLogger(handler.SubSystem(subsystem))

	level, ok := btclog.LevelFromString(LogLevel)
	if !ok {
		level = btclog.LevelInfo
	}
	logger.SetLevel(level)

	return logger
}

// SubLoggers maps subsystem tags to their loggers.
type SubLoggers map[string]btclog.Logger

// LeveledSubLogger gives access to subsystem loggers and their levels.
type LeveledSubLogger interface {
	// SubLoggers returns every registered subsystem logger.
	SubLoggers() SubLoggers

	// SupportedSubsystems returns the sorted subsystem tags.
	SupportedSubsystems() []string

	// SetLogLevel sets the level of a single subsystem.
	SetLogLevel(subsystemID string, logLevel string)

	// SetLogLevels sets the level of every subsystem.
	SetLogLevels(logLevel string)
}

// ParseAndSetDebugLevels applies a debug level string of the form
//
//	[<global-level>,]<subsystem>=<level>[,<subsystem>=<level>...]
//
// to the logger. Nothing is changed if any element is invalid.
func ParseAndSetDebugLevels(level string, logger LeveledSubLogger) error {
	elems := strings.Split(level, ",")

	global := ""
	if !strings.Contains(elems[0], "=") {
		global, elems = elems[0], elems[1:]
		if !validLogLevel(global) {
			return fmt.Errorf("the specified debug level [%v] is "+
				"invalid", global)
		}
	}

	subLoggers := logger.SubLoggers()
	levels := make(map[string]string, len(elems))
	for _, elem := range elems {
		subsystem, lvl, ok := strings.Cut(elem, "=")
		if !ok || strings.Contains(lvl, "=") {
			return fmt.Errorf("the specified debug level has an "+
				"invalid format [%v] -- use format "+
				"subsystem1=level1,subsystem2=level2", elem)
		}

		if _, exists := subLoggers[subsystem]; !exists {
			return fmt.Errorf("the specified subsystem [%v] is "+
				"invalid -- supported subsystems are %v",
				subsystem, logger.SupportedSubsystems())
		}

		if !validLogLevel(lvl) {
			return fmt.Errorf("the specified debug level [%v] is "+
				"invalid", lvl)
		}

		levels[subsystem] = lvl
	}

	if global != "" {
		logger.SetLogLevels(global)
	}
	for subsystem, lvl := range levels {
		logger.SetLogLevel(subsystem, lvl)
	}

	return nil
}

// validLogLevel returns whether logLevel names a btclog level.
func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace", "debug", "info", "warn", "error", "critical", "off":
		return true
	}

	return false
}
