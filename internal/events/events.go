// Package events defines the notifications emitted by the authentication core
// and the sinks that carry them to logs, metrics and test recorders.
package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/signalsfoundry/stellar-auth/internal/logging"
)

// Severity classifies an event.
type Severity int

const (
	ActivityLo Severity = iota
	ActivityHi
	WarningLo
	WarningHi
	Fatal
)

func (s Severity) String() string {
	switch s {
	case ActivityLo:
		return "activity_lo"
	case ActivityHi:
		return "activity_hi"
	case WarningLo:
		return "warning_lo"
	case WarningHi:
		return "warning_hi"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("severity_%d", int(s))
	}
}

// Kind identifies what happened.
type Kind string

const (
	KindTMRFailure       Kind = "tmr_failure"
	KindSEUScrubbed      Kind = "seu_scrubbed"
	KindIngressDetected  Kind = "ingress_detected"
	KindPersistenceReset Kind = "persistence_reset"
	KindAuthSuccess      Kind = "auth_success"
	KindAuthFailed       Kind = "auth_failed"
	KindStabilityAlert   Kind = "stability_alert"
	KindWindowUpdated    Kind = "window_updated"
	KindReset            Kind = "reset"
)

// Event is a single notification.
type Event struct {
	Kind     Kind
	Severity Severity
	Message  string
	Fields   []logging.Field
}

// Field returns the value of the named field and whether it was present.
func (e Event) Field(key string) (any, bool) {
	for _, f := range e.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Sink receives events. Publish must not block for long: it runs inside the
// per-tick evaluation.
type Sink interface {
	Publish(ctx context.Context, ev Event)
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Publish(context.Context, Event) {}

// Fanout publishes to every member in order.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, ev Event) {
	for _, s := range f {
		if s != nil {
			s.Publish(ctx, ev)
		}
	}
}

// LogSink mirrors events to a structured logger.
type LogSink struct {
	Log logging.Logger
}

func (s LogSink) Publish(ctx context.Context, ev Event) {
	log := s.Log
	if log == nil {
		return
	}
	fields := make([]logging.Field, 0, len(ev.Fields)+2)
	fields = append(fields, logging.String("event", string(ev.Kind)), logging.String("severity", ev.Severity.String()))
	fields = append(fields, ev.Fields...)

	switch ev.Severity {
	case Fatal:
		log.Error(ctx, ev.Message, fields...)
	case WarningHi:
		log.Warn(ctx, ev.Message, fields...)
	default:
		log.Info(ctx, ev.Message, fields...)
	}
}

// Recorder keeps an in-memory history of events. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	history []Event
}

// NewRecorder constructs an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Publish(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, ev)
}

// Events returns a copy of the history.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.history...)
}

// Count returns how many events of kind were recorded.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.history {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// Filter returns the recorded events of kind.
func (r *Recorder) Filter(kind Kind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.history {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// Clear drops the history.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = nil
}
