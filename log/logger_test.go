package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestLogger_SessionFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(SessionMeta{SessionID: "s-1", Detector: "HPGe"}, zapcore.InfoLevel).WithOutput(&buf)

	l.Info("acquisition started", map[string]any{"preset": "Real"})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	if entry["message"] != "acquisition started" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
	if entry["session_id"] != "s-1" {
		t.Errorf("session_id = %v, want s-1", entry["session_id"])
	}
	if entry["detector"] != "HPGe" {
		t.Errorf("detector = %v, want HPGe", entry["detector"])
	}
	if _, ok := entry["device"]; ok {
		t.Error("empty device field should be omitted")
	}
	fields, _ := entry["fields"].(map[string]any)
	if fields["preset"] != "Real" {
		t.Errorf("fields.preset = %v, want Real", fields["preset"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("missing timestamp")
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(SessionMeta{}, zapcore.WarnLevel).WithOutput(&buf)

	l.Debug("debug", nil)
	l.Info("info", nil)
	l.Warn("ramping", nil)
	l.Error("failed", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), buf.String())
	}
	if l.Enabled(zapcore.DebugLevel) {
		t.Error("debug should be disabled at warn level")
	}
}

func TestLogger_WithSession(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(SessionMeta{}, zapcore.DebugLevel).WithOutput(&buf).
		WithSession(SessionMeta{SessionID: "s-2", Device: "sim"})

	l.Debug("poll", nil)

	if !strings.Contains(buf.String(), `"session_id":"s-2"`) {
		t.Errorf("missing session_id in %q", buf.String())
	}
	if !strings.Contains(buf.String(), `"device":"sim"`) {
		t.Errorf("missing device in %q", buf.String())
	}
}

func TestLevelForVerbosity(t *testing.T) {
	tests := []struct {
		v       int
		want    zapcore.Level
		wantErr bool
	}{
		{0, zapcore.ErrorLevel, false},
		{1, zapcore.WarnLevel, false},
		{2, zapcore.InfoLevel, false},
		{3, zapcore.DebugLevel, false},
		{4, zapcore.InfoLevel, true},
		{-1, zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		got, err := LevelForVerbosity(tt.v)
		if (err != nil) != tt.wantErr {
			t.Errorf("LevelForVerbosity(%d) error = %v, wantErr %v", tt.v, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("LevelForVerbosity(%d) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestSugaredLogger(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogger(SessionMeta{SessionID: "s-3"}, zapcore.InfoLevel).WithOutput(&buf).Sugar()

	s.With("chunk", 2).Infof("rotated to %s", "file_2.csv")

	out := buf.String()
	if !strings.Contains(out, "rotated to file_2.csv") || !strings.Contains(out, `"chunk":2`) {
		t.Errorf("unexpected output %q", out)
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Info("discarded", nil)
	l.Sugar().Warnf("discarded %d", 1)
}
