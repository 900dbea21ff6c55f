package model

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"classify-forge/internal/nn"
)

// ClassificationCNN is a two block conv net with per-class sigmoid outputs:
// conv3x3(3->8)-relu-pool, conv3x3(8->16)-relu-pool, linear, sigmoid.
type ClassificationCNN struct {
	ImageSize  int
	NumClasses int

	net nn.Sequential
}

// NewClassificationCNN builds the network for square RGB inputs of
// imageSize pixels, which must be a multiple of 4.
func NewClassificationCNN(imageSize, numClasses int, seed int64) (*ClassificationCNN, error) {
	if imageSize <= 0 || imageSize%4 != 0 {
		return nil, fmt.Errorf("model: image size must be a positive multiple of 4 (got %d)", imageSize)
	}
	if numClasses <= 0 {
		return nil, fmt.Errorf("model: num classes must be > 0 (got %d)", numClasses)
	}
	rng := rand.New(rand.NewSource(seed))

	conv1 := nn.NewConv2D("conv1", nn.Shape{C: 3, H: imageSize, W: imageSize}, 8, 3, 1, rng)
	pool1 := &nn.MaxPool2D{In: conv1.Out(), Size: 2}
	conv2 := nn.NewConv2D("conv2", pool1.Out(), 16, 3, 1, rng)
	pool2 := &nn.MaxPool2D{In: conv2.Out(), Size: 2}
	fc := nn.NewLinear("fc", pool2.Out().Size(), numClasses, rng)

	return &ClassificationCNN{
		ImageSize:  imageSize,
		NumClasses: numClasses,
		net: nn.Sequential{
			conv1, &nn.ReLU{}, pool1,
			conv2, &nn.ReLU{}, pool2,
			&nn.Flatten{In: pool2.Out()},
			fc,
			&nn.Sigmoid{},
		},
	}, nil
}

// Forward returns per-class probabilities, one row per image.
func (m *ClassificationCNN) Forward(images *mat.Dense) *mat.Dense {
	return m.net.Forward(images)
}

// Backward accumulates parameter gradients for the last Forward.
func (m *ClassificationCNN) Backward(grad *mat.Dense) {
	m.net.Backward(grad)
}

// ZeroGrad clears all parameter gradients.
func (m *ClassificationCNN) ZeroGrad() {
	for _, p := range m.net.Params() {
		p.ZeroGrad()
	}
}

// Parameters lists the trainable tensors in layer order.
func (m *ClassificationCNN) Parameters() []*nn.Param {
	return m.net.Params()
}
