package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Config captures the runtime knobs for a training run.
type Config struct {
	ModelPath    string  `yaml:"model_path"`
	ImageDir     string  `yaml:"image_dir"`
	LogStep      int     `yaml:"log_step"`
	SaveStep     int     `yaml:"save_step"`
	NumEpochs    int     `yaml:"num_epochs"`
	BatchSize    int     `yaml:"batch_size"`
	NumWorkers   int     `yaml:"num_workers"`
	LearningRate float64 `yaml:"learning_rate"`
	Seed         int64   `yaml:"seed"`
	ImageSize    int     `yaml:"image_size"`
	Shuffle      bool    `yaml:"shuffle"`
	Save         bool    `yaml:"save"`
}

// Overrides captures CLI supplied values. A nil field was not given on the
// command line and leaves the config untouched.
type Overrides struct {
	ModelPath    *string
	ImageDir     *string
	LogStep      *int
	SaveStep     *int
	NumEpochs    *int
	BatchSize    *int
	NumWorkers   *int
	LearningRate *float64
	Seed         *int64
	ImageSize    *int
	Shuffle      *bool
	Save         *bool
}

// Default returns the stock configuration of the training entry point.
func Default() *Config {
	return &Config{
		ModelPath:    "models/",
		ImageDir:     "../dataset/images_tiny",
		LogStep:      10,
		SaveStep:     1000,
		NumEpochs:    5,
		BatchSize:    128,
		NumWorkers:   2,
		LearningRate: 0.001,
		Seed:         42,
		ImageSize:    64,
		Shuffle:      true,
	}
}

// Load reads a YAML config layered over Default. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ApplyOverrides updates cfg using every override that was set.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.ModelPath != nil {
		c.ModelPath = *o.ModelPath
	}
	if o.ImageDir != nil {
		c.ImageDir = *o.ImageDir
	}
	if o.LogStep != nil {
		c.LogStep = *o.LogStep
	}
	if o.SaveStep != nil {
		c.SaveStep = *o.SaveStep
	}
	if o.NumEpochs != nil {
		c.NumEpochs = *o.NumEpochs
	}
	if o.BatchSize != nil {
		c.BatchSize = *o.BatchSize
	}
	if o.NumWorkers != nil {
		c.NumWorkers = *o.NumWorkers
	}
	if o.LearningRate != nil {
		c.LearningRate = *o.LearningRate
	}
	if o.Seed != nil {
		c.Seed = *o.Seed
	}
	if o.ImageSize != nil {
		c.ImageSize = *o.ImageSize
	}
	if o.Shuffle != nil {
		c.Shuffle = *o.Shuffle
	}
	if o.Save != nil {
		c.Save = *o.Save
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.ImageDir == "" {
		return errors.New("image_dir must be set")
	}
	if c.LogStep <= 0 {
		return fmt.Errorf("log_step must be > 0 (got %d)", c.LogStep)
	}
	if c.SaveStep <= 0 {
		return fmt.Errorf("save_step must be > 0 (got %d)", c.SaveStep)
	}
	if c.NumEpochs < 0 {
		return fmt.Errorf("num_epochs must be >= 0 (got %d)", c.NumEpochs)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.NumWorkers < 0 {
		return fmt.Errorf("num_workers must be >= 0 (got %d)", c.NumWorkers)
	}
	if c.LearningRate < 0 || math.IsNaN(c.LearningRate) || math.IsInf(c.LearningRate, 0) {
		return fmt.Errorf("learning_rate must be a finite value >= 0 (got %v)", c.LearningRate)
	}
	if c.ImageSize <= 0 || c.ImageSize%4 != 0 {
		return fmt.Errorf("image_size must be a positive multiple of 4 (got %d)", c.ImageSize)
	}
	if c.Save && c.ModelPath == "" {
		return errors.New("model_path must be set when save is enabled")
	}
	return nil
}
