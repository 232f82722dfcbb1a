package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ANNOTATOR_API_URL", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg != Default() {
		t.Errorf("Expected defaults, got %+v", cfg)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("ANNOTATOR_API_URL", "http://api:9000")
	t.Setenv("ANNOTATOR_USER", "alice")
	t.Setenv("ANNOTATOR_PAGE_SIZE", "25")
	t.Setenv("ANNOTATOR_POLL_INTERVAL", "10s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg.APIURL != "http://api:9000" || cfg.UserID != "alice" || cfg.PageSize != 25 || cfg.PollInterval != 10*time.Second {
		t.Errorf("Expected env values, got %+v", cfg)
	}
	if cfg.Debounce != 100*time.Millisecond {
		t.Errorf("Expected default debounce kept, got %v", cfg.Debounce)
	}
}

func TestLoadEnvErrors(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"ANNOTATOR_MAX_HISTORY", "lots"},
		{"ANNOTATOR_CACHE_TTL", "2"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(""); err == nil {
				t.Errorf("Expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestLoadFileOverlaysEnv(t *testing.T) {
	t.Setenv("ANNOTATOR_DATASET", "from-env")
	t.Setenv("ANNOTATOR_USER", "alice")

	path := filepath.Join(t.TempDir(), "annotator.yaml")
	content := "dataset: from-file\ndebounce: 250ms\nmaxHistory: 10\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg.DatasetID != "from-file" || cfg.Debounce != 250*time.Millisecond || cfg.MaxHistory != 10 {
		t.Errorf("Expected file values, got %+v", cfg)
	}
	if cfg.UserID != "alice" {
		t.Errorf("Expected env value kept where the file is silent, got %q", cfg.UserID)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}
