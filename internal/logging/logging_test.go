package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("Expected level info, got %s", cfg.Level)
	}
	if len(cfg.Writers) != 1 || cfg.Writers[0] != WriterConsole {
		t.Errorf("Expected console writer, got %v", cfg.Writers)
	}
}

func TestNewFileWriter(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Writers = []string{WriterFile}
	cfg.File = filepath.Join(dir, "nested", "argus.log")
	cfg.Level = "debug"

	logger, closer, err := New(cfg)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	logger.Debug().Str("requestID", "abc").Msg("hello")
	if err := closer.Close(); err != nil {
		t.Fatalf("Expected clean close, got %v", err)
	}

	data, err := os.ReadFile(cfg.File)
	if err != nil {
		t.Fatalf("Expected log file, got %v", err)
	}
	if !strings.Contains(string(data), `"requestID":"abc"`) {
		t.Errorf("Expected structured field in log file, got %s", data)
	}
}

func TestNewLevelFilters(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Writers = []string{WriterFile}
	cfg.File = filepath.Join(dir, "argus.log")
	cfg.Level = "warn"

	logger, closer, err := New(cfg)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	logger.Info().Msg("dropped")
	logger.Warn().Msg("kept")
	closer.Close()

	data, _ := os.ReadFile(cfg.File)
	if strings.Contains(string(data), "dropped") {
		t.Error("Expected info message to be filtered")
	}
	if !strings.Contains(string(data), "kept") {
		t.Error("Expected warn message to be written")
	}
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad level", Config{Level: "loud"}},
		{"unknown writer", Config{Writers: []string{"syslog"}}},
		{"file without path", Config{Writers: []string{WriterFile}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := New(tt.cfg); err == nil {
				t.Error("Expected error")
			}
		})
	}
}
