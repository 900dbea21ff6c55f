package nn

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func tinyNet(rng *rand.Rand) Sequential {
	in := Shape{C: 2, H: 4, W: 4}
	conv := NewConv2D("conv", in, 3, 3, 1, rng)
	pool := &MaxPool2D{In: conv.Out(), Size: 2}
	return Sequential{
		conv,
		&ReLU{},
		pool,
		&Flatten{In: pool.Out()},
		NewLinear("fc", pool.Out().Size(), 2, rng),
		&Sigmoid{},
	}
}

func randomDense(rng *rand.Rand, r, c int) *mat.Dense {
	data := make([]float64, r*c)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return mat.NewDense(r, c, data)
}

func TestGradientsMatchFiniteDifferences(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	net := tinyNet(rng)
	x := randomDense(rng, 2, 2*4*4)
	target := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	var loss BCELoss

	for _, p := range net.Params() {
		p.ZeroGrad()
	}
	pred := net.Forward(x)
	net.Backward(loss.Backward(pred, target))

	const eps = 1e-5
	for _, p := range net.Params() {
		raw := p.Value.RawMatrix()
		for k := range raw.Data {
			orig := raw.Data[k]
			raw.Data[k] = orig + eps
			up := loss.Forward(net.Forward(x), target)
			raw.Data[k] = orig - eps
			down := loss.Forward(net.Forward(x), target)
			raw.Data[k] = orig

			numeric := (up - down) / (2 * eps)
			analytic := p.Grad.RawMatrix().Data[k]
			if diff := math.Abs(numeric - analytic); diff > 1e-5+1e-3*math.Abs(numeric) {
				t.Fatalf("%s[%d]: analytic %g numeric %g", p.Name, k, analytic, numeric)
			}
		}
	}
}

func TestConvOutputShape(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	conv := NewConv2D("c", Shape{C: 3, H: 8, W: 6}, 4, 3, 1, rng)
	if got := conv.Out(); got != (Shape{C: 4, H: 8, W: 6}) {
		t.Fatalf("padded conv out %+v", got)
	}
	y := conv.Forward(randomDense(rng, 5, 3*8*6))
	if r, c := y.Dims(); r != 5 || c != 4*8*6 {
		t.Fatalf("forward dims %dx%d", r, c)
	}
}

func TestConvIdentityKernel(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	conv := NewConv2D("c", Shape{C: 1, H: 3, W: 3}, 1, 3, 1, rng)
	conv.Weight.Value.Zero()
	conv.Weight.Value.Set(0, 4, 1)
	conv.Bias.Value.Set(0, 0, 0.5)

	x := mat.NewDense(1, 9, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9})
	y := conv.Forward(x)
	for j := 0; j < 9; j++ {
		if got, want := y.At(0, j), x.At(0, j)+0.5; got != want {
			t.Fatalf("y[%d]=%f want %f", j, got, want)
		}
	}
}

func TestMaxPoolRoutesGradient(t *testing.T) {
	pool := &MaxPool2D{In: Shape{C: 1, H: 2, W: 2}, Size: 2}
	y := pool.Forward(mat.NewDense(1, 4, []float64{0.1, 0.9, 0.3, 0.2}))
	if y.At(0, 0) != 0.9 {
		t.Fatalf("max=%f want 0.9", y.At(0, 0))
	}
	dx := pool.Backward(mat.NewDense(1, 1, []float64{2}))
	want := []float64{0, 2, 0, 0}
	for j, w := range want {
		if dx.At(0, j) != w {
			t.Fatalf("dx[%d]=%f want %f", j, dx.At(0, j), w)
		}
	}
}

func TestBCELossClampsSaturation(t *testing.T) {
	var loss BCELoss
	pred := mat.NewDense(1, 2, []float64{0, 1})
	target := mat.NewDense(1, 2, []float64{1, 0})
	if got := loss.Forward(pred, target); got != 100 {
		t.Fatalf("saturated loss %f want 100", got)
	}
	perfect := loss.Forward(mat.NewDense(1, 2, []float64{1, 0}), mat.NewDense(1, 2, []float64{1, 0}))
	if perfect != 0 {
		t.Fatalf("perfect loss %f want 0", perfect)
	}
	grad := loss.Backward(pred, target)
	for j := 0; j < 2; j++ {
		if v := grad.At(0, j); math.IsInf(v, 0) || math.IsNaN(v) {
			t.Fatalf("grad[%d] not finite: %f", j, v)
		}
	}
}

func TestZeroGrad(t *testing.T) {
	p := NewParam("w", 2, 2)
	p.Grad.Set(1, 1, 3)
	p.ZeroGrad()
	if mat.Sum(p.Grad) != 0 {
		t.Fatal("gradient not cleared")
	}
}
