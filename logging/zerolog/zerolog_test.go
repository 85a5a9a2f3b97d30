package zerolog

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/goliatone/go-query-cache/logging"
)

func TestLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "debug", false)

	l.Info("query fetched", logging.Fields{"key": "expenses::food", "attempts": 1})

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected json line, got %q: %v", buf.String(), err)
	}
	if line["message"] != "query fetched" {
		t.Errorf("message = %v", line["message"])
	}
	if line["key"] != "expenses::food" {
		t.Errorf("key = %v", line["key"])
	}
	if line["level"] != "info" {
		t.Errorf("level = %v", line["level"])
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn", false)

	l.Debug("hidden", nil)
	l.Info("hidden", nil)
	if buf.Len() != 0 {
		t.Fatalf("expected nothing below warn, got %q", buf.String())
	}

	l.Warn("shown", nil)
	if buf.Len() == 0 {
		t.Fatal("expected warn line")
	}
}

func TestUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "loud", false)

	l.Debug("hidden", nil)
	if buf.Len() != 0 {
		t.Fatalf("expected debug to be filtered, got %q", buf.String())
	}
	l.Info("shown", nil)
	if buf.Len() == 0 {
		t.Fatal("expected info line")
	}
}
