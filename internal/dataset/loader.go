package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/mat"

	"classify-forge/internal/model"
	"classify-forge/internal/transform"
)

// LoaderOptions configures batching and decode parallelism.
type LoaderOptions struct {
	BatchSize  int
	Shuffle    bool
	NumWorkers int
	Seed       int64
}

// Loader yields batches of preprocessed samples, one pass per epoch.
type Loader struct {
	index *Index
	tf    transform.Transform
	opts  LoaderOptions
}

// NewLoader builds a loader over idx.
func NewLoader(idx *Index, tf transform.Transform, opts LoaderOptions) (*Loader, error) {
	if idx == nil || len(idx.Samples) == 0 {
		return nil, ErrEmpty
	}
	if tf == nil {
		return nil, errors.New("loader: transform is nil")
	}
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("loader: batch size must be > 0 (got %d)", opts.BatchSize)
	}
	if opts.NumWorkers < 0 {
		opts.NumWorkers = 0
	}
	return &Loader{index: idx, tf: tf, opts: opts}, nil
}

// Len is the number of batches per epoch. The final batch may be short.
func (l *Loader) Len() int {
	n := len(l.index.Samples)
	return (n + l.opts.BatchSize - 1) / l.opts.BatchSize
}

// NumClasses is the width of the one-hot target rows.
func (l *Loader) NumClasses() int {
	return l.index.NumClasses
}

// Order returns the sample visiting order for epoch.
func (l *Loader) Order(epoch int) []int {
	n := len(l.index.Samples)
	if !l.opts.Shuffle {
		order := make([]int, n)
		for i := range order {
			order[i] = i
		}
		return order
	}
	rng := rand.New(rand.NewSource(l.opts.Seed + int64(epoch)))
	return rng.Perm(n)
}

type decoded struct {
	pos    int
	tensor *transform.Tensor
	label  int
	err    error
}

// Epoch streams the batches of one pass. The batch channel closes when the
// pass ends or fails; the error channel then yields the failure, if any.
func (l *Loader) Epoch(parent context.Context, epoch int) (<-chan model.Batch, <-chan error) {
	ctx, cancel := context.WithCancel(parent)
	order := l.Order(epoch)

	workers := l.opts.NumWorkers
	out := make(chan model.Batch, max(workers, 1))
	errCh := make(chan error, 1)
	results := make(chan decoded, max(workers, 1)*2)

	if workers == 0 {
		go func() {
			defer close(results)
			for pos, idx := range order {
				select {
				case <-ctx.Done():
					return
				case results <- l.decode(pos, idx):
				}
			}
		}()
	} else {
		jobs := make(chan int, workers)
		go func() {
			defer close(jobs)
			for pos := range order {
				select {
				case <-ctx.Done():
					return
				case jobs <- pos:
				}
			}
		}()

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for pos := range jobs {
					select {
					case <-ctx.Done():
						return
					case results <- l.decode(pos, order[pos]):
					}
				}
			}()
		}
		go func() {
			wg.Wait()
			close(results)
		}()
	}

	go func() {
		defer cancel()
		defer close(errCh)
		defer close(out)
		if err := l.assemble(ctx, results, out, len(order)); err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

// assemble restores visiting order from the worker results and cuts batches.
func (l *Loader) assemble(ctx context.Context, results <-chan decoded, out chan<- model.Batch, total int) error {
	pending := make(map[int]decoded)
	group := make([]decoded, 0, l.opts.BatchSize)
	for next := 0; next < total; {
		d, ok := pending[next]
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case r, open := <-results:
				if !open {
					if err := ctx.Err(); err != nil {
						return err
					}
					return fmt.Errorf("loader: decode stream ended at sample %d of %d", next, total)
				}
				pending[r.pos] = r
			}
			continue
		}
		delete(pending, next)
		if d.err != nil {
			return d.err
		}
		group = append(group, d)
		next++

		if len(group) == l.opts.BatchSize || next == total {
			batch, err := l.collate(group)
			if err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- batch:
			}
			group = group[:0]
		}
	}
	return nil
}

func (l *Loader) decode(pos, idx int) decoded {
	sample := l.index.Samples[idx]
	raw, err := sample.encoded()
	if err != nil {
		return decoded{pos: pos, err: fmt.Errorf("read %s: %w", sampleName(sample), err)}
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return decoded{pos: pos, err: fmt.Errorf("decode %s: %w", sampleName(sample), err)}
	}
	tensor, err := l.tf.Apply(img)
	if err != nil {
		return decoded{pos: pos, err: fmt.Errorf("transform %s: %w", sampleName(sample), err)}
	}
	return decoded{pos: pos, tensor: tensor, label: sample.Label}
}

func (l *Loader) collate(group []decoded) (model.Batch, error) {
	width := len(group[0].tensor.Data)
	images := mat.NewDense(len(group), width, nil)
	targets := mat.NewDense(len(group), l.index.NumClasses, nil)
	labels := make([]int, len(group))
	for i, d := range group {
		if len(d.tensor.Data) != width {
			return model.Batch{}, fmt.Errorf("loader: sample %d has %d values, batch expects %d", d.pos, len(d.tensor.Data), width)
		}
		images.SetRow(i, d.tensor.Data)
		targets.Set(i, d.label, 1)
		labels[i] = d.label
	}
	return model.Batch{Images: images, Targets: targets, Labels: labels}, nil
}

func sampleName(s Sample) string {
	if s.Path != "" {
		return s.Path
	}
	return s.Key
}
