// Package checkpoint persists classifier parameters between runs.
package checkpoint

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"classify-forge/internal/nn"
)

// ErrShape is returned when a stored tensor does not fit the live model.
var ErrShape = errors.New("checkpoint: tensor shape mismatch")

// Tensor is one named parameter in gonum binary form.
type Tensor struct {
	Name string
	Blob []byte
}

// File is the on-disk checkpoint record.
type File struct {
	RunID      string
	Epoch      int
	Step       int
	ImageSize  int
	NumClasses int
	Classes    []string
	Params     []Tensor
}

// NewRunID returns a fresh identifier for a training run.
func NewRunID() string {
	return uuid.New().String()
}

// Snapshot captures params into f.
func (f *File) Snapshot(params []*nn.Param) error {
	f.Params = make([]Tensor, 0, len(params))
	for _, p := range params {
		blob, err := p.Value.MarshalBinary()
		if err != nil {
			return fmt.Errorf("checkpoint: marshal %s: %w", p.Name, err)
		}
		f.Params = append(f.Params, Tensor{Name: p.Name, Blob: blob})
	}
	return nil
}

// Restore copies stored tensors into params, matched by name.
func (f *File) Restore(params []*nn.Param) error {
	stored := make(map[string][]byte, len(f.Params))
	for _, t := range f.Params {
		stored[t.Name] = t.Blob
	}
	for _, p := range params {
		blob, ok := stored[p.Name]
		if !ok {
			return fmt.Errorf("checkpoint: missing tensor %s", p.Name)
		}
		var m mat.Dense
		if err := m.UnmarshalBinary(blob); err != nil {
			return fmt.Errorf("checkpoint: unmarshal %s: %w", p.Name, err)
		}
		r, c := m.Dims()
		if pr, pc := p.Value.Dims(); pr != r || pc != c {
			return fmt.Errorf("%w: %s stored %dx%d, model %dx%d", ErrShape, p.Name, r, c, pr, pc)
		}
		p.Value.Copy(&m)
	}
	return nil
}

// Name is the file name used for f.
func (f *File) Name() string {
	return fmt.Sprintf("cnn-%s-e%d-s%d.ckpt", f.RunID, f.Epoch, f.Step)
}

// Save writes f into dir and returns the final path. The file is written
// under a temporary name and renamed into place.
func Save(dir string, f *File) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("checkpoint: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".ckpt-*")
	if err != nil {
		return "", fmt.Errorf("checkpoint: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(f); err != nil {
		tmp.Close()
		return "", fmt.Errorf("checkpoint: encode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("checkpoint: close: %w", err)
	}
	path := filepath.Join(dir, f.Name())
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("checkpoint: rename: %w", err)
	}
	return path, nil
}

// Load reads a checkpoint written by Save.
func Load(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open: %w", err)
	}
	defer fh.Close()

	f := &File{}
	if err := gob.NewDecoder(fh).Decode(f); err != nil {
		return nil, fmt.Errorf("checkpoint: decode: %w", err)
	}
	return f, nil
}
