package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := New(&buf, Options{Level: "info", Format: "json"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer cleanup()

	logger.Debug("hidden")
	logger.Info("collected", "source", "acme")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if entry["msg"] != "collected" || entry["source"] != "acme" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestNew_DebugOverridesLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(&buf, Options{Level: "error", Format: "text", Debug: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("expected debug output, got %q", buf.String())
	}
}

func TestNew_FanoutToFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "jobcatalog.log")
	logger, cleanup, err := New(&buf, Options{Format: "text", File: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Warn("storage slow", "op", "insert")
	if err := cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"msg":"storage slow"`) {
		t.Errorf("file missing JSON entry: %q", data)
	}
	if !strings.Contains(buf.String(), "storage slow") {
		t.Errorf("primary writer missing entry: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
