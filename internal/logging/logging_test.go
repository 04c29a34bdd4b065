package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNew_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "autopilot.log")
	logger, err := New(Options{Level: "warn", File: path})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Debug("file gets every level", zap.String("subtask", "s1"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"subtask":"s1"`) {
		t.Errorf("log file missing entry: %s", data)
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New(Options{Level: "loud", Console: true}); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNew_NoDestinations(t *testing.T) {
	logger, err := New(Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if logger.Core().Enabled(zap.ErrorLevel) {
		t.Error("expected a no-op logger")
	}
}

func TestDefaultFile(t *testing.T) {
	want := filepath.Join("/repo", ".autopilot", "logs", "autopilot.log")
	if got := DefaultFile("/repo"); got != want {
		t.Errorf("DefaultFile() = %q, want %q", got, want)
	}
}
