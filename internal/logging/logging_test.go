package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New("info", &buf)
	logger.WithField("component", "ledger").Info("compacted")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "compacted" {
		t.Errorf("expected msg 'compacted', got %v", entry["msg"])
	}
	if entry["component"] != "ledger" {
		t.Errorf("expected component field, got %v", entry["component"])
	}
}

func TestNewLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{" error ", logrus.ErrorLevel},
		{"", logrus.WarnLevel},
		{"loud", logrus.WarnLevel},
	}
	for _, tt := range tests {
		if got := New(tt.in, &bytes.Buffer{}).GetLevel(); got != tt.want {
			t.Errorf("New(%q) level = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestOrDiscard(t *testing.T) {
	if OrDiscard(nil) == nil {
		t.Fatal("expected non-nil logger")
	}
	l := New("info", &bytes.Buffer{})
	if OrDiscard(l) != l {
		t.Error("expected the given logger back")
	}
}
