package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ReLU is max(0, x).
type ReLU struct {
	mask *mat.Dense
}

// Forward implements Layer.
func (r *ReLU) Forward(x *mat.Dense) *mat.Dense {
	n, w := x.Dims()
	y := mat.NewDense(n, w, nil)
	r.mask = mat.NewDense(n, w, nil)
	y.Apply(func(i, j int, v float64) float64 {
		if v > 0 {
			r.mask.Set(i, j, 1)
			return v
		}
		return 0
	}, x)
	return y
}

// Backward implements Layer.
func (r *ReLU) Backward(grad *mat.Dense) *mat.Dense {
	var dx mat.Dense
	dx.MulElem(grad, r.mask)
	return &dx
}

// Params implements Layer.
func (r *ReLU) Params() []*Param { return nil }

// Sigmoid squashes to (0, 1).
type Sigmoid struct {
	y *mat.Dense
}

// Forward implements Layer.
func (s *Sigmoid) Forward(x *mat.Dense) *mat.Dense {
	var y mat.Dense
	y.Apply(func(_, _ int, v float64) float64 {
		return 1 / (1 + math.Exp(-v))
	}, x)
	s.y = &y
	return &y
}

// Backward implements Layer.
func (s *Sigmoid) Backward(grad *mat.Dense) *mat.Dense {
	var dx mat.Dense
	dx.Apply(func(i, j int, g float64) float64 {
		y := s.y.At(i, j)
		return g * y * (1 - y)
	}, grad)
	return &dx
}

// Params implements Layer.
func (s *Sigmoid) Params() []*Param { return nil }

// Flatten marks the switch from image to feature activations. Rows are
// already flat, so it only checks the width.
type Flatten struct {
	In Shape
}

// Forward implements Layer.
func (f *Flatten) Forward(x *mat.Dense) *mat.Dense {
	if _, w := x.Dims(); w != f.In.Size() {
		panic(fmt.Sprintf("flatten: input width %d, want %d", w, f.In.Size()))
	}
	return x
}

// Backward implements Layer.
func (f *Flatten) Backward(grad *mat.Dense) *mat.Dense { return grad }

// Params implements Layer.
func (f *Flatten) Params() []*Param { return nil }

// MaxPool2D takes the maximum of non-overlapping Size x Size windows.
// Trailing rows and columns that do not fill a window are dropped.
type MaxPool2D struct {
	In   Shape
	Size int

	argmax [][]int
}

// Out is the per-sample output shape.
func (m *MaxPool2D) Out() Shape {
	return Shape{C: m.In.C, H: m.In.H / m.Size, W: m.In.W / m.Size}
}

// Forward implements Layer.
func (m *MaxPool2D) Forward(x *mat.Dense) *mat.Dense {
	n, w := x.Dims()
	if w != m.In.Size() {
		panic(fmt.Sprintf("maxpool2d: input width %d, want %d", w, m.In.Size()))
	}
	out := m.Out()
	y := mat.NewDense(n, out.Size(), nil)
	m.argmax = make([][]int, n)
	for i := 0; i < n; i++ {
		src := x.RawRowView(i)
		dst := y.RawRowView(i)
		idx := make([]int, out.Size())
		for c := 0; c < out.C; c++ {
			for oy := 0; oy < out.H; oy++ {
				for ox := 0; ox < out.W; ox++ {
					best := -1
					bestVal := math.Inf(-1)
					for ky := 0; ky < m.Size; ky++ {
						for kx := 0; kx < m.Size; kx++ {
							at := (c*m.In.H+oy*m.Size+ky)*m.In.W + ox*m.Size + kx
							if src[at] > bestVal {
								bestVal = src[at]
								best = at
							}
						}
					}
					o := (c*out.H+oy)*out.W + ox
					dst[o] = bestVal
					idx[o] = best
				}
			}
		}
		m.argmax[i] = idx
	}
	return y
}

// Backward implements Layer.
func (m *MaxPool2D) Backward(grad *mat.Dense) *mat.Dense {
	n, _ := grad.Dims()
	dx := mat.NewDense(n, m.In.Size(), nil)
	for i := 0; i < n; i++ {
		g := grad.RawRowView(i)
		d := dx.RawRowView(i)
		for o, at := range m.argmax[i] {
			d[at] += g[o]
		}
	}
	return dx
}

// Params implements Layer.
func (m *MaxPool2D) Params() []*Param { return nil }
