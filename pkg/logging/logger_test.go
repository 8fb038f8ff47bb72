package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var output map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &output); err != nil {
		t.Fatalf("failed to parse JSON output %q: %v", buf.String(), err)
	}
	return output
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("expected default level to be info, got %s", cfg.Level)
	}
	if cfg.Component != "voxreel" {
		t.Errorf("expected default component 'voxreel', got %s", cfg.Component)
	}
	if cfg.JSONFormat {
		t.Error("expected default JSONFormat to be false")
	}
}

func TestNewLogger_NilConfig(t *testing.T) {
	if NewLogger(nil) == nil {
		t.Error("expected non-nil logger with nil config")
	}
}

func TestLogger_JSONFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewLogger(&Config{
		Level:      LevelDebug,
		Component:  "scanner",
		JSONFormat: true,
		Output:     buf,
	})

	log.Info("segment skipped", F("path", "a.wav"))

	output := decodeLine(t, buf)
	if output["message"] != "segment skipped" {
		t.Errorf("expected message 'segment skipped', got %v", output["message"])
	}
	if output["component"] != "scanner" {
		t.Errorf("expected component 'scanner', got %v", output["component"])
	}
	if output["path"] != "a.wav" {
		t.Errorf("expected path 'a.wav', got %v", output["path"])
	}
	if _, ok := output["time"]; !ok {
		t.Error("expected timestamp field 'time' in output")
	}
	if output["level"] != "info" {
		t.Errorf("expected level 'info', got %v", output["level"])
	}
}

func TestLogger_AllLevels(t *testing.T) {
	tests := []struct {
		name     string
		logFunc  func(Logger)
		expected string
	}{
		{"debug", func(l Logger) { l.Debug("debug message") }, "debug"},
		{"info", func(l Logger) { l.Info("info message") }, "info"},
		{"warn", func(l Logger) { l.Warn("warn message") }, "warn"},
		{"error", func(l Logger) { l.Error("error message") }, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			log := NewLogger(&Config{Level: LevelDebug, JSONFormat: true, Output: buf})

			tt.logFunc(log)

			output := decodeLine(t, buf)
			if output["level"] != tt.expected {
				t.Errorf("expected level %s, got %v", tt.expected, output["level"])
			}
		})
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewLogger(&Config{Level: LevelWarn, JSONFormat: true, Output: buf})

	log.Debug("hidden")
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected debug/info to be filtered at warn level, got %q", buf.String())
	}

	log.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("expected warn message to be written, got %q", buf.String())
	}
}

func TestLogger_WithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewLogger(&Config{Level: LevelInfo, JSONFormat: true, Output: buf})

	child := log.With(F("stage", "compile"), F("segments", 3))
	child.Info("planned")

	output := decodeLine(t, buf)
	if output["stage"] != "compile" {
		t.Errorf("expected stage 'compile', got %v", output["stage"])
	}
	if output["segments"] != float64(3) {
		t.Errorf("expected segments 3, got %v", output["segments"])
	}
}

func TestLogger_WithContext(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewLogger(&Config{Level: LevelInfo, JSONFormat: true, Output: buf})

	ctx := WithRunID(context.Background(), "run-42")
	ctx = context.WithValue(ctx, ArtifactIDKey, "art-7")
	log.WithContext(ctx).Info("compiling")

	output := decodeLine(t, buf)
	if output["run_id"] != "run-42" {
		t.Errorf("expected run_id 'run-42', got %v", output["run_id"])
	}
	if output["artifact_id"] != "art-7" {
		t.Errorf("expected artifact_id 'art-7', got %v", output["artifact_id"])
	}
}

func TestLogger_WithContext_EmptyContext(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewLogger(&Config{Level: LevelInfo, JSONFormat: true, Output: buf})

	log.WithContext(context.Background()).Info("plain")

	output := decodeLine(t, buf)
	if _, ok := output["run_id"]; ok {
		t.Error("run_id should be absent for an empty context")
	}
}

func TestLogger_FieldTypes(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewLogger(&Config{Level: LevelInfo, JSONFormat: true, Output: buf})

	log.Info("types",
		F("s", "x"),
		F("i", 7),
		F("i64", int64(8)),
		F("f", 1.5),
		F("b", true),
		F("d", 1500*time.Millisecond),
		F("ids", []string{"a", "b"}),
		Err(errors.New("bad")),
	)

	output := decodeLine(t, buf)
	if output["s"] != "x" || output["i"] != float64(7) || output["i64"] != float64(8) {
		t.Errorf("unexpected scalar fields: %v", output)
	}
	if output["f"] != 1.5 || output["b"] != true {
		t.Errorf("unexpected float/bool fields: %v", output)
	}
	if output["error"] != "bad" {
		t.Errorf("expected error 'bad', got %v", output["error"])
	}
	ids, ok := output["ids"].([]interface{})
	if !ok || len(ids) != 2 {
		t.Errorf("expected ids array of 2, got %v", output["ids"])
	}
}

func TestLogger_ConsoleFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewLogger(&Config{Level: LevelInfo, Output: buf})

	log.Info("console output test", F("segment", "a.wav"))

	output := buf.String()
	if !strings.Contains(output, "console output test") {
		t.Errorf("console output should contain message: %s", output)
	}
	if !strings.Contains(output, "INF") {
		t.Errorf("console output should contain level indicator: %s", output)
	}
	if strings.Contains(output, "\x1b[") {
		t.Errorf("non-terminal output should not contain colour codes: %q", output)
	}
}

func TestNopLogger(t *testing.T) {
	log := NewNopLogger()
	log.Info("nothing")
	log.With(F("a", 1)).WithContext(context.Background()).Error("still nothing")
	if log.Zerolog().GetLevel() != zerolog.Disabled {
		t.Errorf("nop zerolog should be disabled, got %v", log.Zerolog().GetLevel())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   Level
		want zerolog.Level
	}{
		{LevelDebug, zerolog.DebugLevel},
		{LevelInfo, zerolog.InfoLevel},
		{LevelWarn, zerolog.WarnLevel},
		{LevelError, zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
