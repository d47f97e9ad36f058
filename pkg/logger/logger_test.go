package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

// captureLogs redirects the global logger to an in-memory buffer for the
// duration of fn and returns the captured output.
func captureLogs(t *testing.T, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	prev := defaultLogger
	SetLogger(slog.New(handler))
	t.Cleanup(func() { SetLogger(prev) })
	fn()
	return buf.String()
}

func TestInfo(t *testing.T) {
	out := captureLogs(t, func() { Info("hello", "key", "val") })
	if !strings.Contains(out, "hello") {
		t.Errorf("expected 'hello' in output, got: %s", out)
	}
}

func TestWarn(t *testing.T) {
	out := captureLogs(t, func() { Warn("warn-msg") })
	if !strings.Contains(out, "warn-msg") {
		t.Errorf("expected warn-msg in output: %s", out)
	}
}

func TestError(t *testing.T) {
	out := captureLogs(t, func() { Error("err-msg", "err", "oops") })
	if !strings.Contains(out, "err-msg") {
		t.Errorf("expected err-msg in output: %s", out)
	}
}

func TestDebug(t *testing.T) {
	out := captureLogs(t, func() { Debug("dbg-msg") })
	if !strings.Contains(out, "dbg-msg") {
		t.Errorf("expected dbg-msg in output: %s", out)
	}
}

func TestSetLogger(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	prev := defaultLogger
	SetLogger(l)
	defer SetLogger(prev)
	Info("set-logger-test")
	if !strings.Contains(buf.String(), "set-logger-test") {
		t.Errorf("custom logger should capture output: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"info":    slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Errorf("ParseLevel(%q) unexpected error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestConfigure_JSONAndLevel(t *testing.T) {
	prev := defaultLogger
	t.Cleanup(func() { SetLogger(prev) })

	var buf bytes.Buffer
	if err := Configure(&buf, "warn", "json"); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	Info("hidden-info")
	Warn("shown-warn", "port", 4201)

	out := buf.String()
	if strings.Contains(out, "hidden-info") {
		t.Errorf("info should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown-warn"`) || !strings.Contains(out, `"port":4201`) {
		t.Errorf("expected json warn record, got: %s", out)
	}
}

func TestConfigure_Invalid(t *testing.T) {
	prev := defaultLogger
	t.Cleanup(func() { SetLogger(prev) })

	var buf bytes.Buffer
	if err := Configure(&buf, "info", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
	if err := Configure(&buf, "loud", "text"); err == nil {
		t.Error("expected error for unknown level")
	}
	if defaultLogger != prev {
		t.Error("logger should be untouched after a failed Configure")
	}
}
