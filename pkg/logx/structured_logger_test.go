package logx

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func newTestLogger(buf *bytes.Buffer, format Format) *StructuredLogger {
	logger, err := NewStructuredLogger(&StructuredLoggerConfig{
		Level:         TRACE,
		Output:        buf,
		Format:        format,
		IncludeCaller: false,
	})
	if err != nil {
		panic(err)
	}
	return logger
}

func TestStructuredLoggerTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, FormatText)

	logger.WithComponent("directory").Info("loaded container", map[string]interface{}{"name": "tbl0"})

	out := buf.String()
	if !strings.Contains(out, "[INFO]") {
		t.Errorf("missing level tag: %q", out)
	}
	if !strings.Contains(out, "loaded container") {
		t.Errorf("missing message: %q", out)
	}
	if !strings.Contains(out, "component=directory") {
		t.Errorf("missing component field: %q", out)
	}
}

func TestStructuredLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, FormatJSON)

	logger.Error("checksum mismatch", map[string]interface{}{"page": 3})

	var entry Entry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode JSON entry: %v", err)
	}
	if entry.Level != "ERROR" {
		t.Errorf("expected level ERROR, got %s", entry.Level)
	}
	if entry.Message != "checksum mismatch" {
		t.Errorf("expected message, got %s", entry.Message)
	}
}

func TestStructuredLoggerComponentLevelOverride(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, FormatText)
	logger.SetLevel(ERROR)
	logger.SetComponentLevel("kernel", DEBUG)

	kernelLogger := logger.WithComponent("kernel")
	kernelLogger.Debug("evaluating expression")

	if !strings.Contains(buf.String(), "evaluating expression") {
		t.Error("expected component-level override to allow debug log")
	}
}

func TestStructuredLoggerWithFieldIsImmutable(t *testing.T) {
	var buf bytes.Buffer
	base := newTestLogger(&buf, FormatText)

	child := base.WithField("worker", 1)
	base.Info("base message")
	child.Info("child message")

	out := buf.String()
	if strings.Contains(out, "worker=1") && strings.Count(out, "worker=1") != 1 {
		t.Errorf("expected field isolation between loggers, got: %q", out)
	}
}
