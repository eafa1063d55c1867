package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestInfoWritesJSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Output: &buf})
	defer Init(Config{})

	Info("preprocess_ok", map[string]any{"rows": 3})
	Debug("hidden", nil)

	var got map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &got); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
	}
	if got["message"] != "preprocess_ok" || got["level"] != "info" {
		t.Fatalf("unexpected entry: %v", got)
	}
	if got["rows"] != float64(3) {
		t.Fatalf("fields not flattened: %v", got)
	}
}

func TestCtxCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Output: &buf})
	defer Init(Config{})

	ctx := WithRequestID(context.Background(), "req-1")
	l := Ctx(ctx)
	l.Info().Msg("hello")
	if !bytes.Contains(buf.Bytes(), []byte(`"request_id":"req-1"`)) {
		t.Fatalf("request id missing: %s", buf.String())
	}
	if RequestID(context.Background()) != "" {
		t.Fatalf("empty ctx should have no id")
	}
	if NewRequestID() == NewRequestID() {
		t.Fatalf("ids should differ")
	}
}
