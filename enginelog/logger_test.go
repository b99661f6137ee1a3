package enginelog

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLoggerFiltersBelowMinLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Warn, &buf)
	l.Info("should not appear")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below min level, got %q", buf.String())
	}
}

func TestLoggerWritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	l := New(Debug, &buf)
	l.Info("order placed", ComponentField("matching"), AssetField(7), OrderIDField(42), UserField("alice"))

	var entry Entry
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected valid JSON line: %v raw=%s", err, buf.String())
	}
	if entry.Level != "INFO" || entry.Message != "order placed" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.Component != "matching" || entry.Asset != 7 || entry.OrderID != 42 || entry.User != "alice" {
		t.Fatalf("fields not applied: %+v", entry)
	}
}

func TestLoggerIncludesErrorMessage(t *testing.T) {
	var buf bytes.Buffer
	l := New(Debug, &buf)
	l.Error("match failed", errors.New("boom"))

	if !strings.Contains(buf.String(), "boom") {
		t.Fatalf("expected error text in output, got %s", buf.String())
	}
}

func TestAnyFieldPopulatesExtra(t *testing.T) {
	var buf bytes.Buffer
	l := New(Debug, &buf)
	l.Info("sized", Any("size", 100))

	var entry Entry
	json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry)
	if entry.Extra["size"] != float64(100) {
		t.Fatalf("expected extra field, got %+v", entry.Extra)
	}
}

func TestSetLevelChangesFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Error, &buf)
	l.Warn("ignored")
	if buf.Len() != 0 {
		t.Fatalf("expected warn suppressed at error level")
	}
	l.SetLevel(Warn)
	l.Warn("now visible")
	if buf.Len() == 0 {
		t.Fatalf("expected warn visible after SetLevel")
	}
}

func TestLoggerWritesToMultipleOutputs(t *testing.T) {
	var a, b bytes.Buffer
	l := New(Debug, &a, &b)
	l.Info("fanned out")
	if a.Len() == 0 || b.Len() == 0 {
		t.Fatalf("expected both outputs written, a=%d b=%d", a.Len(), b.Len())
	}
}
