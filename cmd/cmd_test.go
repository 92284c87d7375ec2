package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestValidatePipeline(t *testing.T) {
	tests := []struct {
		pipeline string
		wantErr  bool
	}{
		{"", false},
		{"r", false},
		{"RDP", false},
		{"rd", false},
		{"rm", true},
		{"x", true},
	}

	for _, tt := range tests {
		pipeline = tt.pipeline
		err := validatePipeline()
		if (err != nil) != tt.wantErr {
			t.Errorf("validatePipeline(%q) error = %v, wantErr %v", tt.pipeline, err, tt.wantErr)
		}
	}
	pipeline = ""
}

func TestLatestRecording(t *testing.T) {
	dir := t.TempDir()

	if _, err := latestRecording(dir); err == nil {
		t.Error("Expected error for a directory without recordings")
	}

	old := time.Now().Add(-time.Hour)
	files := map[string]time.Time{
		"clipcapture-recording.webm":  old,
		"clipcapture-recording-1.mkv": time.Now(),
		"notes.txt":                   time.Now().Add(time.Hour),
	}
	for name, mtime := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatal(err)
		}
	}

	got, err := latestRecording(dir)
	if err != nil {
		t.Fatalf("latestRecording failed: %v", err)
	}
	if filepath.Base(got) != "clipcapture-recording-1.mkv" {
		t.Errorf("Expected the newest recording, got %s", got)
	}
}

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfgFile, profile = "", ""
	defer func() { cfgFile, cfg = "", nil }()

	if err := loadConfig(); err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg == nil || cfg.Capture.Backend != "auto" {
		t.Errorf("Expected built-in defaults, got %+v", cfg)
	}

	cfgFile = filepath.Join(t.TempDir(), "missing.yaml")
	if err := loadConfig(); err == nil {
		t.Error("Expected an error for an explicit missing config file")
	}
}
