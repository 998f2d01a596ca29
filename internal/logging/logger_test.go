package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestLoggerEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	lg := newLogger(&buf, logrus.InfoLevel)

	lg.Info("record written", map[string]interface{}{"table": "memories", "id": "m1"})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}

	if entry["msg"] != "record written" {
		t.Errorf("msg = %v, want %q", entry["msg"], "record written")
	}
	if entry["table"] != "memories" {
		t.Errorf("table field = %v, want memories", entry["table"])
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	lg := newLogger(&buf, logrus.WarnLevel)

	lg.Debug("not emitted")
	lg.Info("not emitted either")

	if buf.Len() != 0 {
		t.Errorf("expected no output below warn level, got %q", buf.String())
	}

	lg.Warn("emitted")
	if buf.Len() == 0 {
		t.Error("expected warn output")
	}
}

func TestErrorIncludesCause(t *testing.T) {
	var buf bytes.Buffer
	lg := newLogger(&buf, logrus.InfoLevel)

	lg.Error("sync dispatch failed", errors.New("connection refused"),
		map[string]interface{}{"entity_type": "memory"})

	if !strings.Contains(buf.String(), "connection refused") {
		t.Errorf("output missing error cause: %q", buf.String())
	}
}

func TestErrorWithCode(t *testing.T) {
	var buf bytes.Buffer
	lg := newLogger(&buf, logrus.InfoLevel)

	lg.ErrorWithCode("entry abandoned", "SYNC_ABANDONED", nil)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["error_code"] != "SYNC_ABANDONED" {
		t.Errorf("error_code = %v, want SYNC_ABANDONED", entry["error_code"])
	}
}
