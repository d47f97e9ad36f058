// Package telemetry records best-effort usage events for the test server.
//
// Sinks are fire-and-forget: they never return errors to the caller, and a
// sink that panics is contained by Guard.
package telemetry

import (
	"fmt"
	"io"

	"addintestserver/internal/config"
	"addintestserver/pkg/logger"
)

// Event names emitted by the server.
const (
	EventStartTestServer = "startTestServer"
	EventStopTestServer  = "stopTestServer"
	EventStartListening  = "startListening"
)

// Sink receives usage events.
type Sink interface {
	RecordSuccess(event string)
	RecordException(event, message string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordSuccess(string)           {}
func (Nop) RecordException(string, string) {}

// LogSink writes events through pkg/logger.
type LogSink struct{}

func (LogSink) RecordSuccess(event string) {
	logger.Debug("[Telemetry] success", "event", event)
}

func (LogSink) RecordException(event, message string) {
	logger.Warn("[Telemetry] exception", "event", event, "message", message)
}

// Multi fans every event out to each sink in order.
type Multi []Sink

func (m Multi) RecordSuccess(event string) {
	for _, s := range m {
		s.RecordSuccess(event)
	}
}

func (m Multi) RecordException(event, message string) {
	for _, s := range m {
		s.RecordException(event, message)
	}
}

type guarded struct {
	sink Sink
}

// Guard wraps s so a panicking sink is logged instead of reaching the caller.
func Guard(s Sink) Sink {
	if s == nil {
		return Nop{}
	}
	if g, ok := s.(guarded); ok {
		return g
	}
	return guarded{sink: s}
}

func (g guarded) RecordSuccess(event string) {
	defer recoverSink(event)
	g.sink.RecordSuccess(event)
}

func (g guarded) RecordException(event, message string) {
	defer recoverSink(event)
	g.sink.RecordException(event, message)
}

func recoverSink(event string) {
	if r := recover(); r != nil {
		logger.Error("[Telemetry] sink failed", "event", event, "panic", fmt.Sprint(r))
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds the sink described by cfg. The returned closer releases any
// underlying storage and is never nil.
func New(cfg config.TelemetryConfig) (Sink, io.Closer, error) {
	if !cfg.Enabled {
		return Nop{}, nopCloser{}, nil
	}
	if cfg.SQLitePath == "" {
		return Guard(LogSink{}), nopCloser{}, nil
	}

	store, err := OpenSQLiteSink(cfg.SQLitePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open telemetry store: %w", err)
	}
	return Guard(Multi{LogSink{}, store}), store, nil
}
