package telemetry

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"addintestserver/internal/config"
	"addintestserver/pkg/logger"
)

type recordingSink struct {
	successes  []string
	exceptions []string
}

func (r *recordingSink) RecordSuccess(event string) { r.successes = append(r.successes, event) }
func (r *recordingSink) RecordException(event, message string) {
	r.exceptions = append(r.exceptions, event+": "+message)
}

type panicSink struct{}

func (panicSink) RecordSuccess(string)           { panic("sink down") }
func (panicSink) RecordException(string, string) { panic("sink down") }

var _ Sink = (*recordingSink)(nil)
var _ Sink = panicSink{}
var _ Sink = (*SQLiteSink)(nil)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	logger.SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { logger.SetLogger(prev) })
	return &buf
}

func TestMulti_FansOut(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	m := Multi{a, b}
	m.RecordSuccess(EventStartTestServer)
	m.RecordException(EventStopTestServer, "boom")

	for _, r := range []*recordingSink{a, b} {
		if len(r.successes) != 1 || r.successes[0] != EventStartTestServer {
			t.Errorf("unexpected successes: %v", r.successes)
		}
		if len(r.exceptions) != 1 || r.exceptions[0] != "stopTestServer: boom" {
			t.Errorf("unexpected exceptions: %v", r.exceptions)
		}
	}
}

func TestGuard_SwallowsPanics(t *testing.T) {
	buf := captureLogs(t)
	s := Guard(panicSink{})

	s.RecordSuccess(EventStartListening)
	s.RecordException(EventStartTestServer, "x")

	if !strings.Contains(buf.String(), "sink failed") {
		t.Errorf("expected panic to be logged, got: %s", buf.String())
	}
}

func TestGuard_NilAndIdempotent(t *testing.T) {
	if _, ok := Guard(nil).(Nop); !ok {
		t.Error("Guard(nil) should return Nop")
	}
	g := Guard(&recordingSink{})
	if Guard(g) != g {
		t.Error("guarding a guarded sink should not wrap again")
	}
}

func TestLogSink(t *testing.T) {
	buf := captureLogs(t)
	LogSink{}.RecordSuccess(EventStartTestServer)
	LogSink{}.RecordException(EventStopTestServer, "close failed")

	out := buf.String()
	if !strings.Contains(out, "event=startTestServer") {
		t.Errorf("missing success event: %s", out)
	}
	if !strings.Contains(out, `message="close failed"`) {
		t.Errorf("missing exception message: %s", out)
	}
}

func TestSQLiteSink_StoresEvents(t *testing.T) {
	s, err := OpenSQLiteSink(filepath.Join(t.TempDir(), "usage.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteSink failed: %v", err)
	}
	defer s.Close()

	s.RecordSuccess(EventStartTestServer)
	s.RecordSuccess(EventStartListening)
	s.RecordException(EventStopTestServer, "Unable to stop test server")

	events, err := s.Events()
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Event != EventStartTestServer || events[0].Outcome != OutcomeSuccess {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	last := events[2]
	if last.Outcome != OutcomeException || last.Message != "Unable to stop test server" {
		t.Errorf("unexpected last event: %+v", last)
	}
	if events[0].ID == "" || events[0].ID == events[1].ID {
		t.Errorf("expected distinct ids, got %q and %q", events[0].ID, events[1].ID)
	}
}

func TestSQLiteSink_ClosedDBDoesNotPanic(t *testing.T) {
	buf := captureLogs(t)
	s, err := OpenSQLiteSink(filepath.Join(t.TempDir(), "usage.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteSink failed: %v", err)
	}
	s.Close()

	s.RecordSuccess(EventStartTestServer)
	if !strings.Contains(buf.String(), "failed to store usage event") {
		t.Errorf("expected store failure to be logged: %s", buf.String())
	}
}

func TestNew(t *testing.T) {
	sink, closer, err := New(config.TelemetryConfig{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := sink.(Nop); !ok {
		t.Errorf("disabled telemetry should be Nop, got %T", sink)
	}
	closer.Close()

	sink, closer, err = New(config.TelemetryConfig{Enabled: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := sink.(guarded); !ok {
		t.Errorf("expected guarded sink, got %T", sink)
	}
	closer.Close()

	path := filepath.Join(t.TempDir(), "usage.db")
	sink, closer, err = New(config.TelemetryConfig{Enabled: true, SQLitePath: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sink.RecordSuccess(EventStartTestServer)
	store, ok := closer.(*SQLiteSink)
	if !ok {
		t.Fatalf("expected SQLiteSink closer, got %T", closer)
	}
	events, err := store.Events()
	if err != nil || len(events) != 1 {
		t.Errorf("expected one stored event, got %v, %v", events, err)
	}
	closer.Close()

	if _, _, err := New(config.TelemetryConfig{Enabled: true, SQLitePath: filepath.Join(t.TempDir(), "missing", "dir", "usage.db")}); err == nil {
		t.Error("expected error for unopenable database path")
	}
}
