// Package nn holds the layers, loss and parameter type of the classifier.
//
// Activations travel as *mat.Dense with one row per sample; image
// activations are flattened channel-major (C, H, W) within the row.
package nn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Param is a trainable tensor with its accumulated gradient.
type Param struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
}

// NewParam allocates a zeroed rows x cols parameter.
func NewParam(name string, rows, cols int) *Param {
	return &Param{
		Name:  name,
		Value: mat.NewDense(rows, cols, nil),
		Grad:  mat.NewDense(rows, cols, nil),
	}
}

// ZeroGrad clears the accumulated gradient.
func (p *Param) ZeroGrad() {
	p.Grad.Zero()
}

// initUniform fills p with U(-1/sqrt(fanIn), 1/sqrt(fanIn)).
func (p *Param) initUniform(rng *rand.Rand, fanIn int) {
	bound := 1 / math.Sqrt(float64(fanIn))
	raw := p.Value.RawMatrix()
	for i := 0; i < raw.Rows; i++ {
		row := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
		for j := range row {
			row[j] = (rng.Float64()*2 - 1) * bound
		}
	}
}

// Shape is the per-sample extent of an image activation.
type Shape struct {
	C, H, W int
}

// Size is the flattened length C*H*W.
func (s Shape) Size() int {
	return s.C * s.H * s.W
}

// Layer is one differentiable stage. Backward must follow the Forward whose
// activations it differentiates and accumulates into parameter gradients.
type Layer interface {
	Forward(x *mat.Dense) *mat.Dense
	Backward(grad *mat.Dense) *mat.Dense
	Params() []*Param
}

// Sequential chains layers.
type Sequential []Layer

// Forward implements Layer.
func (s Sequential) Forward(x *mat.Dense) *mat.Dense {
	for _, l := range s {
		x = l.Forward(x)
	}
	return x
}

// Backward implements Layer.
func (s Sequential) Backward(grad *mat.Dense) *mat.Dense {
	for i := len(s) - 1; i >= 0; i-- {
		grad = s[i].Backward(grad)
	}
	return grad
}

// Params implements Layer.
func (s Sequential) Params() []*Param {
	var out []*Param
	for _, l := range s {
		out = append(out, l.Params()...)
	}
	return out
}
