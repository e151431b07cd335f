package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// syncLogger ignores the "invalid argument" Linux returns when syncing stdout.
func syncLogger(t testing.TB, logger *Logger) {
	t.Helper()
	if err := logger.Sync(); err != nil && !strings.Contains(err.Error(), "invalid argument") {
		t.Logf("Sync() warning: %v", err)
	}
}

func readLogLines(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var entries []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("log line is not JSON: %q", scanner.Text())
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestNewLogger_WritesJSONFile(t *testing.T) {
	tests := []struct {
		name string
		dev  bool
	}{
		{"development", true},
		{"production", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logPath := filepath.Join(t.TempDir(), "stega.log")

			logger, err := NewLogger(tt.dev, logPath)
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}
			if logger.IsDevelopment() != tt.dev {
				t.Errorf("IsDevelopment() = %v, want %v", logger.IsDevelopment(), tt.dev)
			}
			if logger.LogFilePath() != logPath {
				t.Errorf("LogFilePath() = %q, want %q", logger.LogFilePath(), logPath)
			}

			logger.Info("model loaded", zap.String("dir", "saved_models/a"))
			syncLogger(t, logger)

			entries := readLogLines(t, logPath)
			if len(entries) != 1 {
				t.Fatalf("got %d entries, want 1", len(entries))
			}
			if entries[0][FieldMessage] != "model loaded" || entries[0]["dir"] != "saved_models/a" {
				t.Errorf("entry = %v", entries[0])
			}
			if entries[0][FieldLevel] != "info" {
				t.Errorf("level = %v, want info", entries[0][FieldLevel])
			}
		})
	}
}

func TestNewLogger_DefaultLevels(t *testing.T) {
	dir := t.TempDir()

	prod, err := NewLogger(false, filepath.Join(dir, "prod.log"))
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	prod.Debug("hidden")
	syncLogger(t, prod)
	if entries := readLogLines(t, filepath.Join(dir, "prod.log")); len(entries) != 0 {
		t.Errorf("production logger wrote debug entry: %v", entries)
	}

	dev, err := NewLogger(true, filepath.Join(dir, "dev.log"))
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	dev.Debug("visible")
	syncLogger(t, dev)
	if entries := readLogLines(t, filepath.Join(dir, "dev.log")); len(entries) != 1 {
		t.Errorf("development logger wrote %d debug entries, want 1", len(entries))
	}
}

func TestNewLoggerWithConfig_LevelOverride(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	level := zapcore.WarnLevel

	logger, err := NewLoggerWithConfig(Config{Development: true, Level: &level, FilePath: logPath})
	if err != nil {
		t.Fatalf("NewLoggerWithConfig() error = %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept")
	syncLogger(t, logger)

	entries := readLogLines(t, logPath)
	if len(entries) != 1 || entries[0][FieldMessage] != "kept" {
		t.Errorf("entries = %v, want only the warning", entries)
	}
}

func TestNewLoggerWithConfig_RequiresPath(t *testing.T) {
	if _, err := NewLoggerWithConfig(Config{}); err == nil {
		t.Error("NewLoggerWithConfig() with empty path expected error")
	}
}

func TestLogger_RedactsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewFromZap(zap.New(core))

	logger.Info("auth",
		zap.String("api_token", "plain-text-token"),
		zap.String("header", "Bearer abcdefghijklmnop"),
		zap.String("model", "stegastamp"),
	)
	logger.Infow("auth", "authorization", "Bearer xyz", "path", "/api/v1/decode")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	fields := entries[0].ContextMap()
	if fields["api_token"] != RedactedPlaceholder {
		t.Errorf("api_token = %v, want redacted", fields["api_token"])
	}
	if fields["header"] != RedactedPlaceholder {
		t.Errorf("header = %v, want redacted", fields["header"])
	}
	if fields["model"] != "stegastamp" {
		t.Errorf("model = %v, want unchanged", fields["model"])
	}

	sugared := entries[1].ContextMap()
	if sugared["authorization"] != RedactedPlaceholder || sugared["path"] != "/api/v1/decode" {
		t.Errorf("sugared fields = %v", sugared)
	}
}

func TestLogger_WithAndNamed(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := NewFromZap(zap.New(core)).Named("watermark").With(zap.String("request_id", "r-1"))

	logger.Info("hide complete")

	entry := logs.All()[0]
	if entry.LoggerName != "watermark" {
		t.Errorf("LoggerName = %q, want watermark", entry.LoggerName)
	}
	if entry.ContextMap()["request_id"] != "r-1" {
		t.Errorf("request_id = %v", entry.ContextMap()["request_id"])
	}
}

func TestNewNop(t *testing.T) {
	logger := NewNop()
	logger.Info("discarded")
	logger.Errorw("discarded", "k", "v")
	if err := logger.Sync(); err != nil {
		t.Errorf("Sync() error = %v", err)
	}

	var nilLogger *Logger
	if err := nilLogger.Sync(); err != nil {
		t.Errorf("nil Sync() error = %v", err)
	}
}

func TestOperationFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := NewFromZap(zap.New(core))

	logger.Info("reveal complete", OperationFields(OperationMetrics{
		Operation: "reveal",
		Model:     "stega_v1",
		RequestID: "abc",
		Duration:  1500 * time.Millisecond,
		Success:   true,
		Found:     false,
	}))

	op, ok := logs.All()[0].ContextMap()["operation"].(map[string]interface{})
	if !ok {
		t.Fatalf("operation field = %T, want object", logs.All()[0].ContextMap()["operation"])
	}
	if op["model"] != "stega_v1" || op["request_id"] != "abc" {
		t.Errorf("operation = %v", op)
	}
	if op["duration_ms"] != int64(1500) {
		t.Errorf("duration_ms = %v (%T), want 1500", op["duration_ms"], op["duration_ms"])
	}
	if op["found"] != false {
		t.Errorf("found = %v, want false", op["found"])
	}
}

func TestOperationMetrics_HideOmitsFound(t *testing.T) {
	enc := zapcore.NewMapObjectEncoder()
	m := OperationMetrics{Operation: "hide", Model: "m", Success: true}
	if err := m.MarshalLogObject(enc); err != nil {
		t.Fatalf("MarshalLogObject() error = %v", err)
	}
	if _, ok := enc.Fields["found"]; ok {
		t.Error("hide metrics include found")
	}
	if _, ok := enc.Fields["request_id"]; ok {
		t.Error("empty request_id was encoded")
	}
}

func TestOperationTimer(t *testing.T) {
	timer := StartOperation("hide", "")
	time.Sleep(5 * time.Millisecond)
	timer.Acquired()
	timer.SetModel("stega_v2")

	m := timer.Stop(true, false)
	if m.Operation != "hide" || m.Model != "stega_v2" || !m.Success {
		t.Errorf("Stop() = %+v", m)
	}
	if m.LockWait < 5*time.Millisecond {
		t.Errorf("LockWait = %v, want >= 5ms", m.LockWait)
	}
	if m.Duration < m.LockWait {
		t.Errorf("Duration %v < LockWait %v", m.Duration, m.LockWait)
	}
}

func TestTimingFields(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	fields := TimingFields(start, start.Add(2*time.Second))
	if len(fields) != 3 || fields[2].Key != "duration" || time.Duration(fields[2].Integer) != 2*time.Second {
		t.Errorf("TimingFields() = %v", fields)
	}
}
