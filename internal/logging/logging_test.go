package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	log.With(String("session_id", "s-1")).Warn(context.Background(), "classifier failed",
		Err(errors.New("boom")),
		Int("tick", 3),
		Float("battery", 41.5),
	)

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if rec["msg"] != "classifier failed" || rec["level"] != "WARN" {
		t.Fatalf("unexpected record: %v", rec)
	}
	if rec["session_id"] != "s-1" || rec["error"] != "boom" || rec["tick"] != float64(3) || rec["battery"] != 41.5 {
		t.Fatalf("missing fields in record: %v", rec)
	}
}

func TestDurationRendersHumanReadable(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Format: "json", Output: &buf})
	log.Info(context.Background(), "session started", Duration("tick", time.Second), Duration("timeout", 250*time.Millisecond))

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if rec["tick"] != "1s" || rec["timeout"] != "250ms" {
		t.Fatalf("durations rendered as %v and %v", rec["tick"], rec["timeout"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})
	log.Info(context.Background(), "hidden")
	log.Error(context.Background(), "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("level filtering failed: %q", out)
	}
}

func TestEnsureRequestIDKeepsExisting(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "abc")
	ctx, id := EnsureRequestID(ctx)
	if id != "abc" || RequestIDFromContext(ctx) != "abc" {
		t.Fatalf("EnsureRequestID replaced existing id: %q", id)
	}

	_, fresh := EnsureRequestID(context.Background())
	if fresh == "" {
		t.Fatalf("EnsureRequestID returned empty id")
	}
}

func TestSessionLogger(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Format: "json", Output: &buf})
	ctx, log := WithSessionLogger(context.Background(), base, "sess-9")
	if SessionIDFromContext(ctx) != "sess-9" {
		t.Fatalf("session id not stored on context")
	}
	log.Info(ctx, "tick")
	if !strings.Contains(buf.String(), `"session_id":"sess-9"`) {
		t.Fatalf("session id missing from log: %q", buf.String())
	}
}

func TestLoggerFromContext(t *testing.T) {
	if LoggerFromContext(context.Background()) != nil {
		t.Fatalf("expected nil logger on empty context")
	}
	ctx := ContextWithLogger(context.Background(), nil)
	if LoggerFromContext(ctx) == nil {
		t.Fatalf("expected noop logger to be stored")
	}
}
