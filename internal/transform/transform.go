// Package transform turns decoded images into normalized CHW tensors.
package transform

import (
	"errors"
	"fmt"
	"image"

	"github.com/nfnt/resize"
)

// Channel statistics of the ImageNet training set, used by pretrained
// backbones.
var (
	ImageNetMean = []float64{0.485, 0.456, 0.406}
	ImageNetStd  = []float64{0.229, 0.224, 0.225}
)

// Tensor is a dense channel-major image.
type Tensor struct {
	C, H, W int
	Data    []float64
}

// At returns the value at channel c, row y, column x.
func (t *Tensor) At(c, y, x int) float64 {
	return t.Data[(c*t.H+y)*t.W+x]
}

// ImageOp rewrites an image before tensor conversion.
type ImageOp func(image.Image) image.Image

// TensorOp mutates a tensor in place.
type TensorOp func(*Tensor) error

// Transform maps a decoded image to a model input.
type Transform interface {
	Apply(img image.Image) (*Tensor, error)
}

// Compose runs the image ops, converts with ToTensor, then runs the tensor
// ops in order.
type Compose struct {
	Image  []ImageOp
	Tensor []TensorOp
}

// Apply implements Transform.
func (c Compose) Apply(img image.Image) (*Tensor, error) {
	if img == nil {
		return nil, errors.New("transform: nil image")
	}
	for _, op := range c.Image {
		img = op(img)
	}
	t, err := ToTensor(img)
	if err != nil {
		return nil, err
	}
	for _, op := range c.Tensor {
		if err := op(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Pretrained is the resize + ToTensor + ImageNet normalization pipeline.
func Pretrained(size int) Compose {
	return Compose{
		Image:  []ImageOp{Resize(size)},
		Tensor: []TensorOp{Normalize(ImageNetMean, ImageNetStd)},
	}
}

// Resize scales to size x size with bilinear interpolation.
func Resize(size int) ImageOp {
	return func(img image.Image) image.Image {
		b := img.Bounds()
		if b.Dx() == size && b.Dy() == size {
			return img
		}
		return resize.Resize(uint(size), uint(size), img, resize.Bilinear)
	}
}

// ToTensor converts img to a 3 channel RGB tensor with values in [0, 1].
func ToTensor(img image.Image) (*Tensor, error) {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if width == 0 || height == 0 {
		return nil, errors.New("transform: empty image")
	}
	plane := width * height
	t := &Tensor{C: 3, H: height, W: width, Data: make([]float64, 3*plane)}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			idx := y*width + x
			t.Data[idx] = float64(r) / 65535.0
			t.Data[plane+idx] = float64(g) / 65535.0
			t.Data[2*plane+idx] = float64(bl) / 65535.0
		}
	}
	return t, nil
}

// Normalize applies (x - mean[c]) / std[c] to every channel.
func Normalize(mean, std []float64) TensorOp {
	return func(t *Tensor) error {
		if len(mean) != t.C || len(std) != t.C {
			return fmt.Errorf("normalize: %d channels, got %d means and %d stds", t.C, len(mean), len(std))
		}
		plane := t.H * t.W
		for c := 0; c < t.C; c++ {
			if std[c] == 0 {
				return fmt.Errorf("normalize: zero std for channel %d", c)
			}
			inv := 1.0 / std[c]
			ch := t.Data[c*plane : (c+1)*plane]
			for i := range ch {
				ch[i] = (ch[i] - mean[c]) * inv
			}
		}
		return nil
	}
}
