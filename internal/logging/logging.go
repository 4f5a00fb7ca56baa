// Package logging builds the process logger for the collector commands.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// EnvLogLevel overrides the configured level when set.
const EnvLogLevel = "COLLECTOR_LOG_LEVEL"

// Config selects the level and output format.
type Config struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // console | json
}

// New returns a logger writing to stderr, tagged with app.
func New(app string, cfg Config) zerolog.Logger {
	return NewWithWriter(os.Stderr, app, cfg)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, app string, cfg Config) zerolog.Logger {
	level, ok := ParseLevel(cfg.Level)
	if !ok {
		level = zerolog.InfoLevel
	}
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		level = lvl
	}

	out := w
	if !strings.EqualFold(cfg.Format, "json") {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Str("app", app).Logger()
}

// ParseLevel maps a level name to a zerolog level. ok is false for empty or
// unknown names.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

// ValidFormat reports whether format is a known output format.
func ValidFormat(format string) bool {
	switch strings.ToLower(format) {
	case "", "console", "json":
		return true
	}
	return false
}
