package model

import (
	"gonum.org/v1/gonum/mat"

	"classify-forge/internal/nn"
)

// Batch represents a minibatch of images and their targets.
type Batch struct {
	Images  *mat.Dense // one flattened CHW image per row
	Targets *mat.Dense // one-hot rows, NumClasses wide
	Labels  []int
}

// Size is the number of samples in the batch.
func (b Batch) Size() int {
	if b.Images == nil {
		return 0
	}
	r, _ := b.Images.Dims()
	return r
}

// Model is the differentiable classifier driven by the training loop.
type Model interface {
	Forward(images *mat.Dense) *mat.Dense
	Backward(grad *mat.Dense)
	ZeroGrad()
	Parameters() []*nn.Param
}
