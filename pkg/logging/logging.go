// Package logging builds the slog loggers used by every service.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns a logger writing to w at the given level. format is "text" or
// "json".
func New(level, format string, w io.Writer) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("unknown log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: l}
	switch format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// Open is New writing to path, or to stderr when path is empty. The returned
// close function must be called on shutdown.
func Open(level, format, path string) (*slog.Logger, func() error, error) {
	if path == "" {
		log, err := New(level, format, os.Stderr)
		return log, func() error { return nil }, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening log file: %w", err)
	}
	log, err := New(level, format, f)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return log, f.Close, nil
}
