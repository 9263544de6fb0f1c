package events

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/signalsfoundry/stellar-auth/internal/logging"
)

func TestRecorderCountsAndFilters(t *testing.T) {
	rec := NewRecorder()
	ctx := context.Background()
	rec.Publish(ctx, Event{Kind: KindAuthSuccess, Severity: ActivityHi})
	rec.Publish(ctx, Event{Kind: KindSEUScrubbed, Severity: WarningLo, Fields: []logging.Field{logging.String("replica", "B")}})
	rec.Publish(ctx, Event{Kind: KindAuthSuccess, Severity: ActivityHi})

	if got := rec.Count(KindAuthSuccess); got != 2 {
		t.Fatalf("Count(auth_success) = %d, want 2", got)
	}
	scrubs := rec.Filter(KindSEUScrubbed)
	if len(scrubs) != 1 {
		t.Fatalf("Filter(seu_scrubbed) len = %d, want 1", len(scrubs))
	}
	if v, ok := scrubs[0].Field("replica"); !ok || v != "B" {
		t.Fatalf("replica field = %v (%v), want B", v, ok)
	}
	if _, ok := scrubs[0].Field("missing"); ok {
		t.Fatalf("Field(missing) reported present")
	}

	rec.Clear()
	if got := len(rec.Events()); got != 0 {
		t.Fatalf("Events after Clear = %d, want 0", got)
	}
}

func TestFanoutSkipsNil(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	Fanout{a, nil, b}.Publish(context.Background(), Event{Kind: KindReset})
	if a.Count(KindReset) != 1 || b.Count(KindReset) != 1 {
		t.Fatalf("fanout did not reach both recorders")
	}
}

func TestLogSinkMapsSeverity(t *testing.T) {
	var buf bytes.Buffer
	sink := LogSink{Log: logging.New(textConfig(&buf))}

	sink.Publish(context.Background(), Event{Kind: KindTMRFailure, Severity: Fatal, Message: "tmr majority lost"})
	sink.Publish(context.Background(), Event{Kind: KindStabilityAlert, Severity: WarningHi, Message: "stability alert"})

	out := buf.String()
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "event=tmr_failure") {
		t.Fatalf("fatal event not logged at error: %q", out)
	}
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "severity=warning_hi") {
		t.Fatalf("warning_hi event not logged at warn: %q", out)
	}
}

func TestSeverityString(t *testing.T) {
	if got := Severity(42).String(); got != "severity_42" {
		t.Fatalf("String() = %q", got)
	}
}

func textConfig(buf *bytes.Buffer) logging.Config {
	return logging.Config{Level: "debug", Output: buf}
}
