package nn

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/born-ml/strata/internal/tensor"
)

// Pointwise applies a scalar function to every element.
// Backward computes gx = gy * f'(x) from the cached input.
type Pointwise struct {
	name string
	f    func(x float32) float32
	df   func(x float32) float32
}

// NewArcSin creates y = asin(x). Inputs outside [-1, 1] produce NaN.
func NewArcSin() *Pointwise {
	return &Pointwise{
		name: "arcsin",
		f:    math32.Asin,
		df:   func(x float32) float32 { return 1 / math32.Sqrt(1-x*x) },
	}
}

// NewArcCos creates y = acos(x). Inputs outside [-1, 1] produce NaN.
func NewArcCos() *Pointwise {
	return &Pointwise{
		name: "arccos",
		f:    math32.Acos,
		df:   func(x float32) float32 { return -1 / math32.Sqrt(1-x*x) },
	}
}

// NewArcTan creates y = atan(x).
func NewArcTan() *Pointwise {
	return &Pointwise{
		name: "arctan",
		f:    math32.Atan,
		df:   func(x float32) float32 { return 1 / (1 + x*x) },
	}
}

// NewSin creates y = sin(x).
func NewSin() *Pointwise {
	return &Pointwise{
		name: "sin",
		f:    math32.Sin,
		df:   math32.Cos,
	}
}

// NewCos creates y = cos(x).
func NewCos() *Pointwise {
	return &Pointwise{
		name: "cos",
		f:    math32.Cos,
		df:   func(x float32) float32 { return -math32.Sin(x) },
	}
}

func (p *Pointwise) Name() string {
	return p.name
}

// Parameters returns nil (no trainable parameters).
func (p *Pointwise) Parameters() []*Parameter {
	return nil
}

func (p *Pointwise) Forward(x *tensor.Tensor) (*tensor.Tensor, *Context, error) {
	xd := x.Data()
	y := make([]float32, len(xd))
	for i, v := range xd {
		y[i] = p.f(v)
	}
	out := tensor.MustWrap(y, x.Shape(), x.BatchCount())
	return out, newContext(p, x, out), nil
}

func (p *Pointwise) Backward(ctx *Context, gy *tensor.Tensor) (*tensor.Tensor, error) {
	if err := ctx.take(p, gy); err != nil {
		return nil, fmt.Errorf("%s: %w", p.name, err)
	}
	x := ctx.Input()

	xd, gyd := x.Data(), gy.Data()
	gx := make([]float32, len(xd))
	for i, v := range xd {
		gx[i] = gyd[i] * p.df(v)
	}
	return tensor.MustWrap(gx, x.Shape(), x.BatchCount()), nil
}

// ActivationLayer applies an Activation as a standalone layer.
type ActivationLayer struct {
	act Activation
}

// Activate wraps act as a layer.
//
// Example:
//
//	model := nn.NewSequential(conv, nn.Activate(nn.ReLU{}), pool)
func Activate(act Activation) *ActivationLayer {
	return &ActivationLayer{act: act}
}

// Activation returns the wrapped activation.
func (a *ActivationLayer) Activation() Activation {
	return a.act
}

func (a *ActivationLayer) Name() string {
	return a.act.Name()
}

// Parameters returns nil (no trainable parameters).
func (a *ActivationLayer) Parameters() []*Parameter {
	return nil
}

func (a *ActivationLayer) Forward(x *tensor.Tensor) (*tensor.Tensor, *Context, error) {
	xd := x.Data()
	y := make([]float32, len(xd))
	for i, v := range xd {
		y[i] = a.act.Forward(v)
	}
	out := tensor.MustWrap(y, x.Shape(), x.BatchCount())
	return out, newContext(a, x, out), nil
}

// Backward uses the cached output, like the fused activations of the
// convolution layers.
func (a *ActivationLayer) Backward(ctx *Context, gy *tensor.Tensor) (*tensor.Tensor, error) {
	if err := ctx.take(a, gy); err != nil {
		return nil, fmt.Errorf("%s: %w", a.Name(), err)
	}
	y := ctx.Output()

	yd, gyd := y.Data(), gy.Data()
	gx := make([]float32, len(yd))
	for i := range yd {
		gx[i] = a.act.Backward(gyd[i], yd[i])
	}
	return tensor.MustWrap(gx, y.Shape(), y.BatchCount()), nil
}
