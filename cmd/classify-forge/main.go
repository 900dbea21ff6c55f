package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"classify-forge/internal/config"
	"classify-forge/internal/trainer"
)

func main() {
	defaults := config.Default()

	cfgPath := flag.String("config", "", "Optional path to YAML config")
	modelPath := flag.String("model_path", defaults.ModelPath, "path for saving trained models")
	imageDir := flag.String("image_dir", defaults.ImageDir, "directory for input images")
	logStep := flag.Int("log_step", defaults.LogStep, "step size for printing log info")
	saveStep := flag.Int("save_step", defaults.SaveStep, "step size for saving trained models")
	numEpochs := flag.Int("num_epochs", defaults.NumEpochs, "number of passes over the dataset")
	batchSize := flag.Int("batch_size", defaults.BatchSize, "samples per batch")
	numWorkers := flag.Int("num_workers", defaults.NumWorkers, "number of data loader workers")
	learningRate := flag.Float64("learning_rate", defaults.LearningRate, "optimizer step size")
	seed := flag.Int64("seed", defaults.Seed, "PRNG seed for shuffling and initialization")
	imageSize := flag.Int("image_size", defaults.ImageSize, "square input size, a multiple of 4")
	shuffle := flag.Bool("shuffle", defaults.Shuffle, "reshuffle samples every epoch")
	save := flag.Bool("save", defaults.Save, "write checkpoints to model_path every save_step steps")

	flag.Parse()

	cfg := defaults
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}

	var o config.Overrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "model_path":
			o.ModelPath = modelPath
		case "image_dir":
			o.ImageDir = imageDir
		case "log_step":
			o.LogStep = logStep
		case "save_step":
			o.SaveStep = saveStep
		case "num_epochs":
			o.NumEpochs = numEpochs
		case "batch_size":
			o.BatchSize = batchSize
		case "num_workers":
			o.NumWorkers = numWorkers
		case "learning_rate":
			o.LearningRate = learningRate
		case "seed":
			o.Seed = seed
		case "image_size":
			o.ImageSize = imageSize
		case "shuffle":
			o.Shuffle = shuffle
		case "save":
			o.Save = save
		}
	})
	cfg.ApplyOverrides(o)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runCfg := trainer.RunConfig{
		ImageDir:     cfg.ImageDir,
		ModelPath:    cfg.ModelPath,
		NumEpochs:    cfg.NumEpochs,
		BatchSize:    cfg.BatchSize,
		NumWorkers:   cfg.NumWorkers,
		LearningRate: cfg.LearningRate,
		LogStep:      cfg.LogStep,
		SaveStep:     cfg.SaveStep,
		ImageSize:    cfg.ImageSize,
		Seed:         cfg.Seed,
		Shuffle:      cfg.Shuffle,
		Save:         cfg.Save,
		Stdout:       os.Stdout,
	}

	if _, err := trainer.Run(ctx, runCfg); err != nil {
		stop()
		log.Fatalf("training failed: %v", err)
	}
}
