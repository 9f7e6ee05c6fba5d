package build

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"
	"github.com/klauspost/compress/zstd"
)

const (
	// Gzip is the default compressor of rotated log files.
	Gzip = "gzip"

	// Zstd compresses rotated log files with zstandard.
	Zstd = "zstd"
)

// logCompressors maps each supported compressor to the file extension of the
// logs it rotates.
var logCompressors = map[string]string{
	Gzip: "gz",
	Zstd: "zst",
}

// SupportedLogCompressor returns true if logCompressor can compress rotated
// log files.
func SupportedLogCompressor(logCompressor string) bool {
	_, ok := logCompressors[logCompressor]

	return ok
}

// newCompressor returns the writer compressing rotated files.
func newCompressor(name string) (rotator.Compressor, error) {
	switch name {
	case Gzip:
		return gzip.NewWriter(nil), nil

	case Zstd:
		return zstd.NewWriter(nil)

	default:
		return nil, fmt.Errorf("unknown log compressor: %v", name)
	}
}

// RotatingLogWriter writes log lines to a size rotated log file. Writes
// before InitLogRotator are discarded.
type RotatingLogWriter struct {
	pipe    *io.PipeWriter
	rotator *rotator.Rotator
	done    chan struct{}
}

// NewRotatingLogWriter creates a writer without a log file.
func NewRotatingLogWriter() *RotatingLogWriter {
	return &RotatingLogWriter{}
}

// InitLogRotator opens logFile and starts rotating it according to cfg.
// Close must be called to flush the file.
func (r *RotatingLogWriter) InitLogRotator(cfg *FileLoggerConfig,
	logFile string) error {

	compressor, err := newCompressor(cfg.Compressor)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	r.rotator, err = rotator.New(
		logFile, int64(cfg.MaxLogFileSize*1024), false, cfg.MaxLogFiles,
	)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}
	r.rotator.SetCompressor(compressor, logCompressors[cfg.Compressor])

	pr, pw := io.Pipe()
	r.pipe = pw
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)

		err := r.rotator.Run(pr)
		if err != nil && !errors.Is(err, io.EOF) {
			_, _ = fmt.Fprintf(os.Stderr, "failed to run file "+
				"rotator: %v\n", err)
		}
	}()

	return nil
}

// Write passes b to the log file, if one was opened.
func (r *RotatingLogWriter) Write(b []byte) (int, error) {
	if r.pipe == nil {
		return len(b), nil
	}

	return r.pipe.Write(b)
}

// Close flushes and closes the log file.
func (r *RotatingLogWriter) Close() error {
	if r.pipe == nil {
		return nil
	}

	if err := r.pipe.Close(); err != nil {
		return err
	}
	<-r.done

	return r.rotator.Close()
}
