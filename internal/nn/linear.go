package nn

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/strata/internal/tensor"
)

// LinearConfig configures a fully connected layer.
type LinearConfig struct {
	InFeatures  int
	OutFeatures int
	NoBias      bool
	InitialW    []float32 // optional, OutFeatures*InFeatures values
	InitialB    []float32 // optional, OutFeatures values
	Initializer Initializer
}

// Linear implements a fully connected (dense) layer.
//
// Performs the transformation: y = x @ W.T + b
// where:
//   - x is the input, Shape{InFeatures} per sample
//   - W is the weight matrix [OutFeatures, InFeatures]
//   - b is the bias vector [OutFeatures]
//   - y is the output, Shape{OutFeatures} per sample
//
// The whole batch is one matrix product (gonum blas32.Gemm).
//
// Example:
//
//	layer, err := nn.NewLinear(nn.LinearConfig{InFeatures: 784, OutFeatures: 128})
//	y, ctx, err := layer.Forward(x) // [784] x batch -> [128] x batch
type Linear struct {
	in, out int

	Weight *Parameter // [out, in]
	Bias   *Parameter // [out], nil when NoBias

	mu sync.Mutex
}

// NewLinear validates cfg and builds the layer.
func NewLinear(cfg LinearConfig) (*Linear, error) {
	const name = "linear"
	if cfg.InFeatures <= 0 || cfg.OutFeatures <= 0 {
		return nil, fmt.Errorf("%s: features %d->%d: %w", name, cfg.InFeatures, cfg.OutFeatures, ErrInvalidConfig)
	}

	shape := tensor.Shape{cfg.OutFeatures, cfg.InFeatures}
	w, err := initWeights(name, "weight", cfg.InitialW, shape.NumElements(),
		cfg.InFeatures, cfg.OutFeatures, cfg.Initializer)
	if err != nil {
		return nil, err
	}

	l := &Linear{
		in:     cfg.InFeatures,
		out:    cfg.OutFeatures,
		Weight: NewParameter(name+".weight", tensor.MustWrap(w, shape, 1)),
	}
	if !cfg.NoBias {
		b, err := initBias(name, cfg.InitialB, cfg.OutFeatures)
		if err != nil {
			return nil, err
		}
		l.Bias = NewParameter(name+".bias", tensor.MustWrap(b, tensor.Shape{cfg.OutFeatures}, 1))
	}
	return l, nil
}

// Name returns "linear".
func (l *Linear) Name() string {
	return "linear"
}

// Parameters returns weight and bias parameters.
func (l *Linear) Parameters() []*Parameter {
	if l.Bias != nil {
		return []*Parameter{l.Weight, l.Bias}
	}
	return []*Parameter{l.Weight}
}

// InFeatures returns the input feature count.
func (l *Linear) InFeatures() int {
	return l.in
}

// OutFeatures returns the output feature count.
func (l *Linear) OutFeatures() int {
	return l.out
}

func matrix(rows, cols int, data []float32) blas32.General {
	return blas32.General{Rows: rows, Cols: cols, Stride: cols, Data: data}
}

// Forward computes x @ W.T + b for every sample.
func (l *Linear) Forward(x *tensor.Tensor) (*tensor.Tensor, *Context, error) {
	if x.Length() != l.in {
		return nil, nil, fmt.Errorf("%s: input shape %v, want %d features: %w",
			l.Name(), x.Shape(), l.in, ErrShapeMismatch)
	}

	batch := x.BatchCount()
	y := make([]float32, batch*l.out)
	if l.Bias != nil {
		for b := 0; b < batch; b++ {
			copy(y[b*l.out:], l.Bias.Data.Data())
		}
	}

	blas32.Gemm(blas.NoTrans, blas.Trans, 1,
		matrix(batch, l.in, x.Data()),
		matrix(l.out, l.in, l.Weight.Data.Data()),
		1, matrix(batch, l.out, y))

	out := tensor.MustWrap(y, tensor.Shape{l.out}, batch)
	return out, newContext(l, x, out), nil
}

// Backward accumulates gW += gy.T @ x and gb += Σ gy, and returns gy @ W.
func (l *Linear) Backward(ctx *Context, gy *tensor.Tensor) (*tensor.Tensor, error) {
	if err := ctx.take(l, gy); err != nil {
		return nil, fmt.Errorf("%s: %w", l.Name(), err)
	}
	x := ctx.Input()

	batch := x.BatchCount()
	g := matrix(batch, l.out, gy.Data())

	gx := make([]float32, batch*l.in)
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, g, matrix(l.out, l.in, l.Weight.Data.Data()),
		0, matrix(batch, l.in, gx))

	l.mu.Lock()
	defer l.mu.Unlock()

	blas32.Gemm(blas.Trans, blas.NoTrans, 1, g, matrix(batch, l.in, x.Data()),
		1, matrix(l.out, l.in, l.Weight.Grad.Data()))
	if l.Bias != nil {
		gb := l.Bias.Grad.Data()
		gyd := gy.Data()
		for b := 0; b < batch; b++ {
			for j := 0; j < l.out; j++ {
				gb[j] += gyd[b*l.out+j]
			}
		}
	}

	return tensor.MustWrap(gx, x.Shape(), batch), nil
}
