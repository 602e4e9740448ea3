// Package logging builds the slog loggers used by the cinder command.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/cinder-go/cinder/internal/config"
)

// Rotation limits for log files.
const (
	MaxSizeMB  = 256
	MaxBackups = 10
	MaxAgeDays = 7
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns the logger cfg describes and a closer for its output. Logs go
// to stdout unless cfg.LogFile is set, in which case the file is rotated.
func New(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	var (
		w      io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)
	if cfg.LogFile != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    MaxSizeMB,
			MaxBackups: MaxBackups,
			MaxAge:     MaxAgeDays,
			Compress:   true,
		}
		w, closer = lj, lj
	}

	logger, err := NewWithWriter(w, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	return logger, closer, nil
}

// NewWithWriter returns a logger writing to w at level in format, which is
// "text" or "json".
func NewWithWriter(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("logging: unknown format %q", format)
	}
}

// ParseLevel maps debug, info, warn and error onto slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("logging: unknown level %q", s)
	}
	return l, nil
}

// Access returns the access logger derived from base, or nil when access
// logging is off. HTTP exchanges and socket events are logged through it
// with client, method, path and status attributes.
func Access(base *slog.Logger, enabled bool) *slog.Logger {
	if !enabled || base == nil {
		return nil
	}
	return base.With("component", "access")
}
