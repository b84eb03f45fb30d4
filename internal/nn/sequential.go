package nn

import (
	"fmt"

	"github.com/born-ml/strata/internal/tensor"
)

// Sequential is a container layer that chains multiple layers together.
//
// Each layer's output becomes the next layer's input, creating a
// sequential pipeline of transformations.
//
// Example:
//
//	model := nn.NewSequential(
//	    embed,
//	    nn.NewArcTan(),
//	    up,
//	)
//
//	y, ctx, err := model.Forward(ids)
//	_, err = model.Backward(ctx, gy)
//
// Only the first layer may be terminal (return a nil input gradient); a nil
// gradient further down the chain fails with ErrTerminalGradient.
type Sequential struct {
	layers []Layer
}

// NewSequential creates a new Sequential container.
func NewSequential(layers ...Layer) *Sequential {
	return &Sequential{
		layers: layers,
	}
}

// Add appends a layer.
func (s *Sequential) Add(l Layer) {
	s.layers = append(s.layers, l)
}

// Layers returns the chained layers.
func (s *Sequential) Layers() []Layer {
	return s.layers
}

// Len returns the number of layers.
func (s *Sequential) Len() int {
	return len(s.layers)
}

// Name returns "sequential".
func (s *Sequential) Name() string {
	return "sequential"
}

// Parameters collects parameters from all layers.
func (s *Sequential) Parameters() []*Parameter {
	var params []*Parameter
	for _, l := range s.layers {
		params = append(params, l.Parameters()...)
	}
	return params
}

// Forward applies all layers in sequence.
func (s *Sequential) Forward(x *tensor.Tensor) (*tensor.Tensor, *Context, error) {
	ctxs := make([]*Context, len(s.layers))
	out := x
	for i, l := range s.layers {
		y, ctx, err := l.Forward(out)
		if err != nil {
			return nil, nil, fmt.Errorf("sequential: layer %d (%s): %w", i, l.Name(), err)
		}
		ctxs[i] = ctx
		out = y
	}

	ctx := newContext(s, x, out)
	ctx.extra = ctxs
	return out, ctx, nil
}

// Backward runs the layers' Backward in reverse order.
//
// When a layer fails, the gradients of that layer and of every layer after it
// are zeroed, including anything they held before the call.
func (s *Sequential) Backward(ctx *Context, gy *tensor.Tensor) (*tensor.Tensor, error) {
	if err := ctx.take(s, gy); err != nil {
		return nil, fmt.Errorf("sequential: %w", err)
	}
	ctxs, _ := ctx.extra.([]*Context)

	g := gy
	for i := len(s.layers) - 1; i >= 0; i-- {
		l := s.layers[i]
		gx, err := l.Backward(ctxs[i], g)
		if err == nil && gx == nil && i > 0 {
			err = ErrTerminalGradient
		}
		if err != nil {
			s.zeroFrom(i)
			return nil, fmt.Errorf("sequential: layer %d (%s): %w", i, l.Name(), err)
		}
		g = gx
	}
	return g, nil
}

// zeroFrom clears the gradients of layers[i:].
func (s *Sequential) zeroFrom(i int) {
	for _, l := range s.layers[i:] {
		for _, p := range l.Parameters() {
			p.ZeroGrad()
		}
	}
}
