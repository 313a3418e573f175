package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestInitJSON(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	Info().Str("type", "VISUAL_BREACH").Msg("SIGNAL_DISPATCHED")

	out := buf.String()
	if !strings.Contains(out, `"message":"SIGNAL_DISPATCHED"`) {
		t.Fatalf("missing message in %s", out)
	}
	if !strings.Contains(out, `"type":"VISUAL_BREACH"`) {
		t.Fatalf("missing field in %s", out)
	}
}

func TestErrCarriesError(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	Err(errors.New("camera unplugged")).Msg("frame loop stopped")

	out := buf.String()
	if !strings.Contains(out, `"level":"error"`) || !strings.Contains(out, `"error":"camera unplugged"`) {
		t.Fatalf("unexpected entry %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":    zerolog.DebugLevel,
		"WARN":     zerolog.WarnLevel,
		"warning":  zerolog.WarnLevel,
		"error":    zerolog.ErrorLevel,
		"disabled": zerolog.Disabled,
		"bogus":    zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSlogHandlerWritesThroughZerolog(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	l := NewSlogLogger().WithGroup("supervisor")
	l.Warn("service restarted", "service", "frame-loop", "restarts", 2)

	out := buf.String()
	if !strings.Contains(out, `"level":"warn"`) {
		t.Fatalf("expected warn level, got %s", out)
	}
	if !strings.Contains(out, `"supervisor.service":"frame-loop"`) {
		t.Fatalf("expected grouped attr, got %s", out)
	}
}
