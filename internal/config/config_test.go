package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.ModelPath != "models/" || cfg.ImageDir != "../dataset/images_tiny" {
		t.Fatalf("unexpected default paths: %+v", cfg)
	}
	if cfg.LogStep != 10 || cfg.SaveStep != 1000 || cfg.NumEpochs != 5 {
		t.Fatalf("unexpected default cadence: %+v", cfg)
	}
	if cfg.BatchSize != 128 || cfg.NumWorkers != 2 || cfg.LearningRate != 0.001 {
		t.Fatalf("unexpected default loader/optimizer values: %+v", cfg)
	}
}

func TestLoadLayersOverDefaults(t *testing.T) {
	path := writeConfig(t, "image_dir: /data/cats\nbatch_size: 16\nlearning_rate: 0.01\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.ImageDir != "/data/cats" || cfg.BatchSize != 16 || cfg.LearningRate != 0.01 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.NumEpochs != 5 || cfg.LogStep != 10 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.BatchSize != 128 {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	_, err := Load(writeConfig(t, "epochs: 3\n"))
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	if !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestApplyOverridesZeroEpochs(t *testing.T) {
	cfg := Default()
	zero := 0
	dir := "/tmp/images"
	cfg.ApplyOverrides(Overrides{NumEpochs: &zero, ImageDir: &dir})
	if cfg.NumEpochs != 0 {
		t.Fatalf("explicit zero override ignored: %d", cfg.NumEpochs)
	}
	if cfg.ImageDir != dir {
		t.Fatalf("image_dir=%s want %s", cfg.ImageDir, dir)
	}
	if cfg.BatchSize != 128 {
		t.Fatalf("unset override changed batch size: %d", cfg.BatchSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("zero epochs should validate: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"empty image dir":   func(c *Config) { c.ImageDir = "" },
		"zero log step":     func(c *Config) { c.LogStep = 0 },
		"negative epochs":   func(c *Config) { c.NumEpochs = -1 },
		"zero batch":        func(c *Config) { c.BatchSize = 0 },
		"negative workers":  func(c *Config) { c.NumWorkers = -2 },
		"negative lr":       func(c *Config) { c.LearningRate = -0.1 },
		"odd image size":    func(c *Config) { c.ImageSize = 30 },
		"save without path": func(c *Config) { c.Save = true; c.ModelPath = "" },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "train.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
