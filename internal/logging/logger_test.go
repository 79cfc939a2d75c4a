package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesToFile(t *testing.T) {
	dir := t.TempDir()

	logger, err := New(Name("test-logger"), Path(dir), Level("debug"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Infow("session started", "sessionId", "sess-1")
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "test-logger.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "session started") {
		t.Errorf("log = %q, want it to contain the message", data)
	}
	if !strings.Contains(string(data), `"sessionId":"sess-1"`) {
		t.Errorf("log = %q, want structured field", data)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(Path(t.TempDir()), Level("loud")); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	dir := t.TempDir()

	logger, err := New(Name("filtered"), Path(dir), Level("warn"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Debugf("chunk %d dropped", 3)
	logger.Warnf("probe failed")
	_ = logger.Sync()

	data, _ := os.ReadFile(filepath.Join(dir, "filtered.log"))
	if strings.Contains(string(data), "dropped") {
		t.Error("debug line should be filtered at warn level")
	}
	if !strings.Contains(string(data), "probe failed") {
		t.Error("warn line should be written")
	}
}
