package nn

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Conv2D is a stride 1, zero padded 2D convolution computed as im2col
// followed by a matrix product.
type Conv2D struct {
	In      Shape
	Filters int
	Kernel  int
	Pad     int

	Weight *Param // Filters x (C*K*K)
	Bias   *Param // 1 x Filters

	cols []*mat.Dense
}

// NewConv2D builds a convolution over inputs of shape in.
func NewConv2D(name string, in Shape, filters, kernel, pad int, rng *rand.Rand) *Conv2D {
	fanIn := in.C * kernel * kernel
	c := &Conv2D{
		In:      in,
		Filters: filters,
		Kernel:  kernel,
		Pad:     pad,
		Weight:  NewParam(name+".weight", filters, fanIn),
		Bias:    NewParam(name+".bias", 1, filters),
	}
	c.Weight.initUniform(rng, fanIn)
	c.Bias.initUniform(rng, fanIn)
	return c
}

// Out is the per-sample output shape.
func (c *Conv2D) Out() Shape {
	return Shape{
		C: c.Filters,
		H: c.In.H + 2*c.Pad - c.Kernel + 1,
		W: c.In.W + 2*c.Pad - c.Kernel + 1,
	}
}

// Forward implements Layer.
func (c *Conv2D) Forward(x *mat.Dense) *mat.Dense {
	n, width := x.Dims()
	if width != c.In.Size() {
		panic(fmt.Sprintf("conv2d: input width %d, want %d", width, c.In.Size()))
	}
	out := c.Out()
	plane := out.H * out.W
	y := mat.NewDense(n, out.Size(), nil)
	c.cols = make([]*mat.Dense, n)

	var prod mat.Dense
	for i := 0; i < n; i++ {
		cols := c.im2col(x.RawRowView(i))
		c.cols[i] = cols
		prod.Mul(cols, c.Weight.Value.T())
		row := y.RawRowView(i)
		for f := 0; f < c.Filters; f++ {
			b := c.Bias.Value.At(0, f)
			for p := 0; p < plane; p++ {
				row[f*plane+p] = prod.At(p, f) + b
			}
		}
	}
	return y
}

// Backward implements Layer.
func (c *Conv2D) Backward(grad *mat.Dense) *mat.Dense {
	n, _ := grad.Dims()
	out := c.Out()
	plane := out.H * out.W
	dx := mat.NewDense(n, c.In.Size(), nil)

	d := mat.NewDense(plane, c.Filters, nil)
	var dw, dcols mat.Dense
	for i := 0; i < n; i++ {
		g := grad.RawRowView(i)
		for f := 0; f < c.Filters; f++ {
			sum := 0.0
			for p := 0; p < plane; p++ {
				v := g[f*plane+p]
				d.Set(p, f, v)
				sum += v
			}
			c.Bias.Grad.Set(0, f, c.Bias.Grad.At(0, f)+sum)
		}
		dw.Mul(d.T(), c.cols[i])
		c.Weight.Grad.Add(c.Weight.Grad, &dw)

		dcols.Mul(d, c.Weight.Value)
		c.col2im(&dcols, dx.RawRowView(i))
	}
	return dx
}

// Params implements Layer.
func (c *Conv2D) Params() []*Param {
	return []*Param{c.Weight, c.Bias}
}

func (c *Conv2D) im2col(src []float64) *mat.Dense {
	out := c.Out()
	k := c.Kernel
	cols := mat.NewDense(out.H*out.W, c.In.C*k*k, nil)
	for oy := 0; oy < out.H; oy++ {
		for ox := 0; ox < out.W; ox++ {
			row := cols.RawRowView(oy*out.W + ox)
			for ch := 0; ch < c.In.C; ch++ {
				for ky := 0; ky < k; ky++ {
					iy := oy + ky - c.Pad
					if iy < 0 || iy >= c.In.H {
						continue
					}
					for kx := 0; kx < k; kx++ {
						ix := ox + kx - c.Pad
						if ix < 0 || ix >= c.In.W {
							continue
						}
						row[(ch*k+ky)*k+kx] = src[(ch*c.In.H+iy)*c.In.W+ix]
					}
				}
			}
		}
	}
	return cols
}

func (c *Conv2D) col2im(cols *mat.Dense, dst []float64) {
	out := c.Out()
	k := c.Kernel
	for oy := 0; oy < out.H; oy++ {
		for ox := 0; ox < out.W; ox++ {
			row := cols.RawRowView(oy*out.W + ox)
			for ch := 0; ch < c.In.C; ch++ {
				for ky := 0; ky < k; ky++ {
					iy := oy + ky - c.Pad
					if iy < 0 || iy >= c.In.H {
						continue
					}
					for kx := 0; kx < k; kx++ {
						ix := ox + kx - c.Pad
						if ix < 0 || ix >= c.In.W {
							continue
						}
						dst[(ch*c.In.H+iy)*c.In.W+ix] += row[(ch*k+ky)*k+kx]
					}
				}
			}
		}
	}
}
