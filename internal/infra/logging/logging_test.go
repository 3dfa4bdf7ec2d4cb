package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"mindspace/internal/config"
)

func TestWith_AddsContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := NewWriter(&buf, config.LogConfig{Level: "debug", Format: "json"}, false)

	ctx := WithTraceID(context.Background(), "t-1")
	ctx = WithPseudonymID(ctx, "p-1")
	ctx = WithSessID(ctx, "s-1")
	With(ctx, base).Info().Msg("hello")

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal log line: %v (%s)", err, buf.String())
	}
	for k, want := range map[string]string{"trace_id": "t-1", "pseudonym_id": "p-1", "session_id": "s-1", "message": "hello"} {
		if got[k] != want {
			t.Errorf("%s = %v, want %s", k, got[k], want)
		}
	}
	if TraceID(ctx) != "t-1" {
		t.Errorf("TraceID = %q", TraceID(ctx))
	}
}

func TestRedact(t *testing.T) {
	if Redact("abc", false) != "***" {
		t.Error("short value not masked")
	}
	if got := Redact("0123456789abcdef", false); got != "0123...ef" {
		t.Errorf("Redact = %q", got)
	}
	if Redact("0123456789abcdef", true) != "0123456789abcdef" {
		t.Error("dev must not redact")
	}
}
