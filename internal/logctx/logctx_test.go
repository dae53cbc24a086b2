package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestHandlerAddsGroups(t *testing.T) {
	var buf bytes.Buffer
	log := New(slog.NewJSONHandler(&buf, nil)).With("component", "test")

	ctx := WithRequestData(context.Background(), &RequestData{RequestID: "r1", Method: "GET", Path: "/x"})
	ctx = WithTokenData(ctx, &TokenData{KeyID: "k1", Subject: "s1"})
	log.InfoContext(ctx, "hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	req, _ := rec["req"].(map[string]any)
	if req["id"] != "r1" || req["method"] != "GET" || req["path"] != "/x" {
		t.Fatalf("req group: %v", rec)
	}
	tok, _ := rec["token"].(map[string]any)
	if tok["kid"] != "k1" || tok["sub"] != "s1" {
		t.Fatalf("token group: %v", rec)
	}
	if rec["component"] != "test" {
		t.Fatalf("WithAttrs lost: %v", rec)
	}
}

func TestHandlerWithoutContextData(t *testing.T) {
	var buf bytes.Buffer
	New(slog.NewJSONHandler(&buf, nil)).Info("plain")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := rec["req"]; ok {
		t.Fatalf("unexpected req group: %v", rec)
	}
	if _, ok := rec["token"]; ok {
		t.Fatalf("unexpected token group: %v", rec)
	}
}

func TestNewNilHandler(t *testing.T) {
	New(nil).Info("discarded")
}
