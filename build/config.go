package build

import (
	"fmt"

	"github.com/btcsuite/btclog/v2"
)

const (
	callSiteOff   = "off"
	callSiteShort = "short"
	callSiteLong  = "long"

	// DefaultMaxLogFiles is the number of rotated log files kept.
	DefaultMaxLogFiles = 3

	// DefaultMaxLogFileSize is the size in MB at which the log rotates.
	DefaultMaxLogFileSize = 10
)

// LogConfig holds the options of both log handlers.
//
//nolint:lll
type LogConfig struct {
	Console *LoggerConfig     `group:"console" namespace:"console" description:"The logger writing to stderr."`
	File    *FileLoggerConfig `group:"file" namespace:"file" description:"The logger writing to the log file."`
}

// Validate rejects unusable file logger options.
func (c *LogConfig) Validate() error {
	switch {
	case !SupportedLogCompressor(c.File.Compressor):
		return fmt.Errorf("invalid log compressor: %v",
			c.File.Compressor)

	case c.File.MaxLogFiles < 0:
		return fmt.Errorf("max log files must not be negative: %d",
			c.File.MaxLogFiles)

	case c.File.MaxLogFileSize <= 0:
		return fmt.Errorf("max log file size must be positive: %d",
			c.File.MaxLogFileSize)
	}

	return nil
}

// LoggerConfig holds the options shared by both handlers.
//
//nolint:lll
type LoggerConfig struct {
	Disable      bool   `long:"disable" description:"Disable this logger."`
	NoTimestamps bool   `long:"no-timestamps" description:"Omit timestamps from log lines."`
	CallSite     string `long:"call-site" description:"Include the call-site of each log line." choice:"off" choice:"short" choice:"long"`
}

// DefaultLogConfig returns the logging options used when no flags are given.
// Console output is kept terse since it shares the terminal with responses.
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Console: &LoggerConfig{
			NoTimestamps: true,
			CallSite:     callSiteOff,
		},
		File: &FileLoggerConfig{
			Compressor:     Gzip,
			MaxLogFiles:    DefaultMaxLogFiles,
			MaxLogFileSize: DefaultMaxLogFileSize,
			LoggerConfig: LoggerConfig{
				CallSite: callSiteOff,
			},
		},
	}
}

// HandlerOptions translates the options into btclog handler options.
func (cfg *LoggerConfig) HandlerOptions() []btclog.HandlerOption {
	// Records pass through the HandlerSet before reaching the handler,
	// one frame more than the btclog default of 6.
	opts := []btclog.HandlerOption{btclog.WithCallSiteSkipDepth(7)}

	if cfg.NoTimestamps {
		opts = append(opts, btclog.WithNoTimestamp())
	}

	switch cfg.CallSite {
	case callSiteShort:
		opts = append(opts, btclog.WithCallerFlags(btclog.Lshortfile))
	case callSiteLong:
		opts = append(opts, btclog.WithCallerFlags(btclog.Llongfile))
	}

	return opts
}

// FileLoggerConfig adds the rotation options of the log file.
//
//nolint:lll
type FileLoggerConfig struct {
	LoggerConfig
	Compressor     string `long:"compressor" description:"Compression algorithm to use when rotating logs." choice:"gzip" choice:"zstd"`
	MaxLogFiles    int    `long:"max-files" description:"Maximum logfiles to keep (0 for no rotation)"`
	MaxLogFileSize int    `long:"max-file-size" description:"Maximum logfile size in MB"`
}
