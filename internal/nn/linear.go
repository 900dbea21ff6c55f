package nn

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Linear computes y = x Wᵀ + b.
type Linear struct {
	Weight *Param // out x in
	Bias   *Param // 1 x out

	x *mat.Dense
}

// NewLinear builds an in -> out affine layer.
func NewLinear(name string, in, out int, rng *rand.Rand) *Linear {
	l := &Linear{
		Weight: NewParam(name+".weight", out, in),
		Bias:   NewParam(name+".bias", 1, out),
	}
	l.Weight.initUniform(rng, in)
	l.Bias.initUniform(rng, in)
	return l
}

// Forward implements Layer.
func (l *Linear) Forward(x *mat.Dense) *mat.Dense {
	n, width := x.Dims()
	if _, in := l.Weight.Value.Dims(); width != in {
		panic(fmt.Sprintf("linear: input width %d, want %d", width, in))
	}
	l.x = x
	var y mat.Dense
	y.Mul(x, l.Weight.Value.T())
	bias := l.Bias.Value.RawRowView(0)
	for i := 0; i < n; i++ {
		row := y.RawRowView(i)
		for j := range row {
			row[j] += bias[j]
		}
	}
	return &y
}

// Backward implements Layer.
func (l *Linear) Backward(grad *mat.Dense) *mat.Dense {
	var dw mat.Dense
	dw.Mul(grad.T(), l.x)
	l.Weight.Grad.Add(l.Weight.Grad, &dw)

	n, out := grad.Dims()
	db := l.Bias.Grad.RawRowView(0)
	for i := 0; i < n; i++ {
		row := grad.RawRowView(i)
		for j := 0; j < out; j++ {
			db[j] += row[j]
		}
	}

	var dx mat.Dense
	dx.Mul(grad, l.Weight.Value)
	return &dx
}

// Params implements Layer.
func (l *Linear) Params() []*Param {
	return []*Param{l.Weight, l.Bias}
}
