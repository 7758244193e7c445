package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
		ok   bool
	}{
		{"debug", zerolog.DebugLevel, true},
		{" INFO ", zerolog.InfoLevel, true},
		{"warning", zerolog.WarnLevel, true},
		{"off", zerolog.Disabled, true},
		{"", zerolog.WarnLevel, false},
		{"loud", zerolog.WarnLevel, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNew_EnvLevelOverride(t *testing.T) {
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvLogNoColor, "true")

	var buf bytes.Buffer
	logger := New(&buf, DefaultOptions())
	logger.Debug().Str("test", "a.cpp").Msg("resolved")

	if !strings.Contains(buf.String(), "resolved") {
		t.Errorf("output = %q, want debug message", buf.String())
	}
	if !strings.Contains(buf.String(), "test=a.cpp") {
		t.Errorf("output = %q, want field test=a.cpp", buf.String())
	}
}

func TestNew_DefaultSuppressesDebug(t *testing.T) {
	t.Setenv(EnvLogLevel, "")

	var buf bytes.Buffer
	logger := New(&buf, DefaultOptions())
	logger.Debug().Msg("hidden")

	if buf.Len() != 0 {
		t.Errorf("output = %q, want nothing at default level", buf.String())
	}
}
