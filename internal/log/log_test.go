package log

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
)

func capture(t *testing.T, level Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(level)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})
	return &buf
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t, LevelWarn)

	Debug("hidden debug")
	Info("hidden info")
	Warn("shown warn", "key", "v")
	Error("shown error", errors.New("boom"))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("unexpected lower-level output: %q", out)
	}
	if !strings.Contains(out, "[WARN] shown warn key=v") {
		t.Fatalf("missing warn line: %q", out)
	}
	if !strings.Contains(out, "[ERROR] shown error err=boom") {
		t.Fatalf("missing error line: %q", out)
	}
}

func TestKeyValueFormatting(t *testing.T) {
	buf := capture(t, LevelDebug)

	Info("msg", "label", "Week view", "count", 3, 42, "ignored", "dangling")

	out := buf.String()
	if !strings.Contains(out, `label="Week view"`) {
		t.Fatalf("expected quoted value, got %q", out)
	}
	if !strings.Contains(out, "count=3") {
		t.Fatalf("expected count=3, got %q", out)
	}
	if strings.Contains(out, "ignored") || strings.Contains(out, "dangling") {
		t.Fatalf("non-string key or odd value leaked: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		" INFO ":  LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
