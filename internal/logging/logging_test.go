package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestJSONLoggerWritesFieldsAndCommandID(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	ctx := ContextWithCommandID(context.Background(), "cmd-1")
	log.With(String("component", "auth")).Warn(ctx, "stuck sensor", Float32("light", 50), Err(errors.New("boom")))

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("unmarshal log line %q: %v", buf.String(), err)
	}
	if rec["msg"] != "stuck sensor" {
		t.Fatalf("msg = %v, want stuck sensor", rec["msg"])
	}
	if rec["level"] != "WARN" {
		t.Fatalf("level = %v, want WARN", rec["level"])
	}
	if rec["component"] != "auth" || rec["command_id"] != "cmd-1" || rec["error"] != "boom" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})
	log.Info(context.Background(), "dropped")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %q", buf.String())
	}
	log.Error(context.Background(), "kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("error line missing: %q", buf.String())
	}
}

func TestEnsureCommandIDIsStable(t *testing.T) {
	ctx, id := EnsureCommandID(context.Background())
	if id == "" {
		t.Fatalf("EnsureCommandID returned empty id")
	}
	ctx2, id2 := EnsureCommandID(ctx)
	if id2 != id || CommandIDFromContext(ctx2) != id {
		t.Fatalf("EnsureCommandID replaced id %q with %q", id, id2)
	}
}

func TestNoopLogger(t *testing.T) {
	log := Noop().With(String("k", "v"))
	log.Error(context.Background(), "ignored")
}
