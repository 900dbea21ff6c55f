package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	logFloor = -100
	gradEps  = 1e-12
)

// BCELoss is the mean binary cross entropy between probabilities and
// targets. Log terms are clamped at -100 so saturated outputs stay finite.
type BCELoss struct{}

// Forward returns the mean loss over every element.
func (BCELoss) Forward(pred, target *mat.Dense) float64 {
	r, c := pred.Dims()
	if tr, tc := target.Dims(); tr != r || tc != c {
		panic(fmt.Sprintf("bce: prediction %dx%d, target %dx%d", r, c, tr, tc))
	}
	sum := 0.0
	for i := 0; i < r; i++ {
		p := pred.RawRowView(i)
		t := target.RawRowView(i)
		for j := 0; j < c; j++ {
			sum -= t[j]*clampedLog(p[j]) + (1-t[j])*clampedLog(1-p[j])
		}
	}
	return sum / float64(r*c)
}

// Backward returns dLoss/dPred.
func (BCELoss) Backward(pred, target *mat.Dense) *mat.Dense {
	r, c := pred.Dims()
	scale := 1 / float64(r*c)
	grad := mat.NewDense(r, c, nil)
	grad.Apply(func(i, j int, p float64) float64 {
		t := target.At(i, j)
		return scale * (p - t) / math.Max(p*(1-p), gradEps)
	}, pred)
	return grad
}

func clampedLog(v float64) float64 {
	if v <= 0 {
		return logFloor
	}
	return math.Max(math.Log(v), logFloor)
}
