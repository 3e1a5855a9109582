// Package logger provides structured logging setup for requestline.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Strob0t/requestline/internal/config"
)

const (
	asyncBuffer  = 4096
	asyncWorkers = 2
)

// New creates a *slog.Logger from the given Logging config.
// Output is JSON to stdout, tee'd to a rotating file when cfg.File is set,
// with a "service" attribute on every record and the request ID from context.
// The returned Closer flushes async buffers and closes the file.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	level := parseLevel(cfg.Level)

	var out io.Writer = os.Stdout
	closers := multiCloser{}
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, lj)
		closers = append(closers, fileCloser{lj})
	}

	var handler slog.Handler = slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: level,
	})
	if cfg.Async {
		ah := NewAsyncHandler(handler, asyncBuffer, asyncWorkers)
		handler = ah
		// Flush the async buffer before closing the file it writes to.
		closers = append(multiCloser{ah}, closers...)
	}

	return slog.New(&contextHandler{inner: handler}).With("service", cfg.Service), closers
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type multiCloser []Closer

func (m multiCloser) Close() {
	for _, c := range m {
		c.Close()
	}
}

type fileCloser struct{ lj *lumberjack.Logger }

func (f fileCloser) Close() { _ = f.lj.Close() }
