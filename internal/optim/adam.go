// Package optim updates nn parameters from their accumulated gradients.
package optim

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"classify-forge/internal/nn"
)

// Adam is the bias corrected Adam optimizer.
type Adam struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64

	params []*nn.Param
	m, v   []*mat.Dense
	t      int
}

// NewAdam tracks params with the usual defaults (0.9, 0.999, 1e-8).
func NewAdam(params []*nn.Param, lr float64) *Adam {
	a := &Adam{
		LR:     lr,
		Beta1:  0.9,
		Beta2:  0.999,
		Eps:    1e-8,
		params: params,
		m:      make([]*mat.Dense, len(params)),
		v:      make([]*mat.Dense, len(params)),
	}
	for i, p := range params {
		r, c := p.Value.Dims()
		a.m[i] = mat.NewDense(r, c, nil)
		a.v[i] = mat.NewDense(r, c, nil)
	}
	return a
}

// ZeroGrad clears every tracked gradient.
func (a *Adam) ZeroGrad() {
	for _, p := range a.params {
		p.ZeroGrad()
	}
}

// Steps is the number of updates applied so far.
func (a *Adam) Steps() int {
	return a.t
}

// Step applies one update in place.
func (a *Adam) Step() {
	a.t++
	c1 := 1 / (1 - math.Pow(a.Beta1, float64(a.t)))
	c2 := 1 / (1 - math.Pow(a.Beta2, float64(a.t)))
	for i, p := range a.params {
		pv := p.Value.RawMatrix()
		g := p.Grad.RawMatrix()
		m := a.m[i].RawMatrix()
		v := a.v[i].RawMatrix()
		for r := 0; r < pv.Rows; r++ {
			for c := 0; c < pv.Cols; c++ {
				gi := g.Data[r*g.Stride+c]
				mi := a.Beta1*m.Data[r*m.Stride+c] + (1-a.Beta1)*gi
				vi := a.Beta2*v.Data[r*v.Stride+c] + (1-a.Beta2)*gi*gi
				m.Data[r*m.Stride+c] = mi
				v.Data[r*v.Stride+c] = vi
				pv.Data[r*pv.Stride+c] -= a.LR * (mi * c1) / (math.Sqrt(vi*c2) + a.Eps)
			}
		}
	}
}
