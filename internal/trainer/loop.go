package trainer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"classify-forge/internal/checkpoint"
	"classify-forge/internal/dataset"
	"classify-forge/internal/device"
	"classify-forge/internal/metrics"
	"classify-forge/internal/model"
	"classify-forge/internal/nn"
	"classify-forge/internal/optim"
	"classify-forge/internal/transform"
)

// RunConfig captures the knobs required by a full training run.
type RunConfig struct {
	ImageDir     string
	ModelPath    string
	NumEpochs    int
	BatchSize    int
	NumWorkers   int
	LearningRate float64
	LogStep      int
	SaveStep     int
	ImageSize    int
	Seed         int64
	Shuffle      bool
	Save         bool

	// Stdout receives the device line and the loss lines. Nil means os.Stdout.
	Stdout io.Writer
}

// TrainConfig drives Train.
type TrainConfig struct {
	NumEpochs    int
	LearningRate float64
	LogStep      int

	// Checkpoint enables periodic saves when non-nil.
	Checkpoint *CheckpointConfig
}

// CheckpointConfig describes where and how often Train saves the model.
type CheckpointConfig struct {
	Dir        string
	Every      int
	RunID      string
	ImageSize  int
	NumClasses int
	Classes    []string
}

// BatchSource yields one finite batch sequence per epoch.
type BatchSource interface {
	Len() int
	Epoch(ctx context.Context, epoch int) (<-chan model.Batch, <-chan error)
}

// Summary reports what Train did.
type Summary struct {
	Steps       int
	LastLoss    float64
	Checkpoints []string
}

// Run opens the dataset, reports the device, builds the model and trains it.
func Run(ctx context.Context, cfg RunConfig) (Summary, error) {
	out := cfg.Stdout
	if out == nil {
		out = os.Stdout
	}

	idx, err := dataset.Open(ctx, cfg.ImageDir)
	if err != nil {
		return Summary{}, err
	}
	loader, err := dataset.NewLoader(idx, transform.Pretrained(cfg.ImageSize), dataset.LoaderOptions{
		BatchSize:  cfg.BatchSize,
		Shuffle:    cfg.Shuffle,
		NumWorkers: cfg.NumWorkers,
		Seed:       cfg.Seed,
	})
	if err != nil {
		return Summary{}, err
	}

	dev := device.Select()
	fmt.Fprintln(out, "training on", dev)
	log.Printf("device=%s %s", dev.Name, dev.Detail)
	log.Printf("root=%s classes=%d samples=%d batches=%d", idx.Root, idx.NumClasses, len(idx.Samples), loader.Len())

	mdl, err := model.NewClassificationCNN(cfg.ImageSize, idx.NumClasses, cfg.Seed)
	if err != nil {
		return Summary{}, err
	}

	tc := TrainConfig{
		NumEpochs:    cfg.NumEpochs,
		LearningRate: cfg.LearningRate,
		LogStep:      cfg.LogStep,
	}
	if cfg.Save {
		tc.Checkpoint = &CheckpointConfig{
			Dir:        cfg.ModelPath,
			Every:      cfg.SaveStep,
			RunID:      checkpoint.NewRunID(),
			ImageSize:  cfg.ImageSize,
			NumClasses: idx.NumClasses,
			Classes:    idx.Classes,
		}
	}
	return Train(ctx, tc, mdl, loader, out)
}

// Train runs NumEpochs passes over src, printing a loss line to out every
// LogStep batches of an epoch.
func Train(ctx context.Context, cfg TrainConfig, mdl model.Model, src BatchSource, out io.Writer) (Summary, error) {
	if cfg.NumEpochs < 0 {
		return Summary{}, errors.New("trainer: num epochs must be >= 0")
	}
	if cfg.LogStep <= 0 {
		return Summary{}, errors.New("trainer: log step must be > 0")
	}
	if cfg.Checkpoint != nil && cfg.Checkpoint.Every <= 0 {
		return Summary{}, errors.New("trainer: checkpoint interval must be > 0")
	}

	t := &run{
		cfg:   cfg,
		mdl:   mdl,
		src:   src,
		out:   out,
		opt:   optim.NewAdam(mdl.Parameters(), cfg.LearningRate),
		total: src.Len(),
	}
	for epoch := 0; epoch < cfg.NumEpochs; epoch++ {
		if err := t.epoch(ctx, epoch); err != nil {
			return t.summary, err
		}
	}
	if cfg.Checkpoint != nil && t.summary.Steps > 0 && t.summary.Steps%cfg.Checkpoint.Every != 0 {
		if err := t.save(cfg.NumEpochs - 1); err != nil {
			return t.summary, err
		}
	}
	return t.summary, nil
}

type run struct {
	cfg       TrainConfig
	mdl       model.Model
	src       BatchSource
	out       io.Writer
	opt       *optim.Adam
	criterion nn.BCELoss
	window    metrics.Window
	total     int
	summary   Summary
}

func (t *run) epoch(parent context.Context, epoch int) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	batches, errs := t.src.Epoch(ctx, epoch)
	i := 0
	startData := time.Now()
	for batch := range batches {
		dataTime := time.Since(startData)

		startCompute := time.Now()
		loss := t.step(batch)
		computeTime := time.Since(startCompute)

		t.window.Record(batch.Size(), dataTime, computeTime, loss)
		t.summary.Steps++
		t.summary.LastLoss = loss

		if i%t.cfg.LogStep == 0 {
			fmt.Fprintf(t.out, "Epoch [%d/%d], Step [%d/%d], Loss: %.4f\n",
				epoch, t.cfg.NumEpochs, i, t.total, loss)
			snap := t.window.Snapshot()
			log.Printf("epoch=%d step=%d images_per_sec=%.1f data_ms=%.2f compute_ms=%.2f avg_loss=%.4f",
				epoch,
				i,
				snap.ImagesPerSec,
				snap.AvgDataMS,
				snap.AvgComputeMS,
				snap.AvgLoss,
			)
		}
		if ck := t.cfg.Checkpoint; ck != nil && t.summary.Steps%ck.Every == 0 {
			if err := t.save(epoch); err != nil {
				return err
			}
		}

		i++
		startData = time.Now()
	}
	if err := <-errs; err != nil {
		return fmt.Errorf("epoch %d: %w", epoch, err)
	}
	return ctx.Err()
}

// step is forward, loss, zero grad, backward, optimizer update.
func (t *run) step(batch model.Batch) float64 {
	outputs := t.mdl.Forward(batch.Images)
	loss := t.criterion.Forward(outputs, batch.Targets)
	t.mdl.ZeroGrad()
	t.mdl.Backward(t.criterion.Backward(outputs, batch.Targets))
	t.opt.Step()
	return loss
}

func (t *run) save(epoch int) error {
	ck := t.cfg.Checkpoint
	f := &checkpoint.File{
		RunID:      ck.RunID,
		Epoch:      epoch,
		Step:       t.summary.Steps,
		ImageSize:  ck.ImageSize,
		NumClasses: ck.NumClasses,
		Classes:    ck.Classes,
	}
	if err := f.Snapshot(t.mdl.Parameters()); err != nil {
		return err
	}
	path, err := checkpoint.Save(ck.Dir, f)
	if err != nil {
		return err
	}
	t.summary.Checkpoints = append(t.summary.Checkpoints, path)
	log.Printf("checkpoint=%s step=%d", path, t.summary.Steps)
	return nil
}
