package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestNewLogger_RequiresWriter(t *testing.T) {
	if _, err := NewLogger(context.Background(), &LoggerOptions{}); err == nil {
		t.Fatal("expected error without writers")
	}
	var buf bytes.Buffer
	_, err := NewLogger(context.Background(), &LoggerOptions{Writers: []io.Writer{&buf}, Format: "xml"})
	if err == nil || !strings.Contains(err.Error(), "unknown log format") {
		t.Fatalf("err = %v, want unknown log format", err)
	}
}

func TestNewLogger_JSONFanOut(t *testing.T) {
	var a, b bytes.Buffer
	l, err := NewLogger(context.Background(), &LoggerOptions{
		Writers:    []io.Writer{&a, &b},
		Level:      slog.LevelInfo,
		SampleRate: 1,
		Fields:     map[string]string{"region": "eu"},
	})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	l.Slogger.Debug("hidden")
	l.Slogger.Info("workflow completed", "workflow_id", "order-1")

	for _, buf := range []*bytes.Buffer{&a, &b} {
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 1 {
			t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
			t.Fatalf("invalid json: %v", err)
		}
		if rec["msg"] != "workflow completed" || rec["workflow_id"] != "order-1" || rec["region"] != "eu" {
			t.Errorf("record = %v", rec)
		}
	}
	if err := l.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestDebugHandler(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewDebugHandler(&buf, slog.LevelDebug)).With("run_id", "r1").WithGroup("task")
	l.Debug("processing", "attempt", 2, "wait", 1500*time.Millisecond)

	out := buf.String()
	for _, want := range []string{"processing", `run_id="r1"`, "task.attempt=2", "task.wait=1.5s", "DEBUG"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}

	buf.Reset()
	quiet := slog.New(NewDebugHandler(&buf, slog.LevelWarn))
	quiet.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info record written below level: %q", buf.String())
	}
}

func TestSamplingHandler_KeepsWarnings(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger(context.Background(), &LoggerOptions{
		Writers:    []io.Writer{&buf},
		Format:     "text",
		Level:      slog.LevelDebug,
		SampleRate: 0,
	})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	for range 10 {
		l.Slogger.Info("sampled out")
	}
	l.Slogger.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "sampled out") {
		t.Errorf("info records were not sampled: %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("warning was dropped: %q", out)
	}
}
