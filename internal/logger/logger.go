// Package logger configures the supervisor's own slog output. Worker
// output never goes through here; it is streamed to dated files by
// internal/logrot.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults for the supervisor self-log (lumberjack semantics).
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// Config describes where the supervisor writes its own log.
type Config struct {
	Level      string `json:"level" mapstructure:"level"` // debug, info, warn, error
	Dir        string `json:"dir" mapstructure:"dir"`     // when set, also log to Dir/vigil.log with rotation
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
}

// Setup builds a slog.Logger per the config and installs it as the
// default. Console output goes to stderr with level colors; when Dir is
// set, a size-rotated copy is written to Dir/vigil.log as well.
func (c Config) Setup() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.slogLevel()}

	var handler slog.Handler
	if c.Dir != "" {
		fileW := &lj.Logger{
			Filename:   filepath.Join(c.Dir, "vigil.log"),
			MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
			MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
			Compress:   c.Compress,
		}
		handler = slog.NewTextHandler(io.MultiWriter(os.Stderr, fileW), opts)
	} else {
		handler = NewColorTextHandler(os.Stderr, opts)
	}

	l := slog.New(handler)
	slog.SetDefault(l)
	return l
}

func (c Config) slogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
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

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
