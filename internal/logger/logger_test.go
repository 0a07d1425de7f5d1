package logger

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in    string
		isNil bool
	}{
		{in: "debug"},
		{in: "info"},
		{in: "warn"},
		{in: "error"},
		{in: "verbose", isNil: true},
		{in: "", isNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseLevel(tt.in); (got == nil) != tt.isNil {
				t.Errorf("parseLevel(%q) = %v, want nil=%v", tt.in, got, tt.isNil)
			}
		})
	}
}

func TestNewWithFileWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shelf.log")

	log := NewWithFile("info", false, FileOptions{Path: path})
	log.With(String("component", "test")).Info("hello", Int("n", 1))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if len(data) == 0 || data[0] != '{' {
		t.Errorf("expected a JSON line, got %q", string(data))
	}
}

func TestNop(t *testing.T) {
	log := Nop()
	log.Info("dropped")
	if err := log.Sync(); err != nil {
		t.Errorf("Nop().Sync() error = %v", err)
	}
}
