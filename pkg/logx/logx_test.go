package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestWriterLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "download"))
	log.Warn("tier failed", String("tier", "primary_api"), Err(errors.New("boom")))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", buf.String(), err)
	}
	if m["comp"] != "download" || m["tier"] != "primary_api" || m["err"] != "boom" {
		t.Fatalf("unexpected fields: %v", m)
	}
	if m["level"] != "warn" {
		t.Fatalf("expected level warn, got %v", m["level"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}
	if log.Enabled(LevelDebug) {
		t.Fatalf("expected debug to be disabled")
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var log Logger
	if !log.IsZero() {
		t.Fatalf("expected zero logger")
	}
	log.Error("nothing happens")
}

func TestFormatLogLine(t *testing.T) {
	out := formatLogLine([]byte(`{"level":"error","message":"resolve failed","id":"abc","err":"x"}`))
	if !strings.HasPrefix(out, "[ERROR] resolve failed") {
		t.Fatalf("unexpected header: %q", out)
	}
	if !strings.Contains(out, "- err=x\n- id=abc") {
		t.Fatalf("expected sorted fields, got %q", out)
	}
}
