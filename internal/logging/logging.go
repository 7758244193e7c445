// Package logging configures the zerolog logger shared by the CLI, the
// workflow engine and the MCP server.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel     = "TESTBUILD_LOG_LEVEL"
	EnvLogTimestamp = "TESTBUILD_LOG_TIMESTAMP"
	EnvLogNoColor   = "TESTBUILD_LOG_NOCOLOR"
)

// Options controls logger construction before environment overrides.
type Options struct {
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
}

// DefaultOptions keeps the CLI quiet: progress goes to stdout, the logger
// only carries warnings unless TESTBUILD_LOG_LEVEL asks for more.
func DefaultOptions() Options {
	return Options{Level: zerolog.WarnLevel}
}

// New returns a console logger writing to w.
func New(w io.Writer, opts Options) zerolog.Logger {
	applyEnvOverrides(&opts)
	out := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    opts.NoColor,
		TimeFormat: time.RFC3339,
	}
	ctx := zerolog.New(out).Level(opts.Level).With()
	if opts.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger()
}

// Stderr is New(os.Stderr, DefaultOptions()).
func Stderr() zerolog.Logger {
	return New(os.Stderr, DefaultOptions())
}

func applyEnvOverrides(opts *Options) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		opts.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		opts.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		opts.NoColor = v
	}
}

// ParseLevel maps a level name to a zerolog level. The second result is
// false for empty or unknown input.
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
		return zerolog.WarnLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
