package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options selects the handler, threshold and service label.
type Options struct {
	Level   string
	Format  string
	Service string
}

// New constructs the slog logger shared by every component, writing to
// stdout.
func New(opts Options) *slog.Logger {
	return newLogger(os.Stdout, opts)
}

func newLogger(w io.Writer, opts Options) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: parseLevel(opts.Level)}
	var handler slog.Handler
	if strings.EqualFold(opts.Format, "text") {
		handler = slog.NewTextHandler(w, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(w, handlerOpts)
	}
	service := strings.TrimSpace(opts.Service)
	if service == "" {
		service = "cycleroute"
	}
	return slog.New(handler).With("service", service)
}

func parseLevel(level string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
