// Package nn implements the differentiable layers of the strata engine.
//
// This package provides building blocks for constructing neural networks:
//   - Layer interface: Forward returns the output plus a Context, Backward consumes it
//   - Parameter: Trainable tensors with accumulated gradients
//   - Deconvolution2D: Transposed convolution with CPU and accelerator paths
//   - Convolution2D, MaxPooling2D, EmbedID: Spatial and lookup layers
//   - Pointwise math (ArcSin, ArcCos, ArcTan, Sin, Cos) and activations
//   - Sequential: Container for stacking layers
//
// Backward never relies on state hidden inside the layer: everything the
// gradient needs travels in the Context returned by Forward, so one layer may
// serve several in-flight forward passes.
package nn

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/born-ml/strata/internal/tensor"
)

// Sentinel errors returned (wrapped) by layer constructors and passes.
var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrShapeMismatch    = errors.New("shape mismatch")
	ErrContextConsumed  = errors.New("context already consumed by backward")
	ErrNoForward        = errors.New("backward without a matching forward")
	ErrForeignContext   = errors.New("context was produced by another layer")
	ErrTerminalGradient = errors.New("layer does not propagate gradient to its input")
	ErrIndexOutOfRange  = errors.New("index out of range")
)

// Layer is the contract shared by every differentiable component.
//
// Example:
//
//	y, ctx, err := layer.Forward(x)
//	...
//	gx, err := layer.Backward(ctx, gy)
//
// Forward may be called concurrently. Backward accumulates (+=) into the
// gradients of Parameters; callers zero them between training steps (the
// optimizers in package optim do this after every Step).
type Layer interface {
	// Name identifies the layer in errors and logs.
	Name() string

	// Forward computes the output for x and returns the Context that the
	// matching Backward needs.
	Forward(x *tensor.Tensor) (*tensor.Tensor, *Context, error)

	// Backward consumes ctx, accumulates parameter gradients and returns the
	// gradient with respect to the forward input. A nil gradient with a nil
	// error means the layer is terminal (its input is not differentiable).
	Backward(ctx *Context, gy *tensor.Tensor) (*tensor.Tensor, error)

	// Parameters returns the trainable parameters, or nil.
	Parameters() []*Parameter
}

// Context carries what one Backward call needs from its Forward call.
// A Context can be consumed once.
type Context struct {
	owner    Layer
	input    *tensor.Tensor
	output   *tensor.Tensor
	extra    any
	gradSize int // checked instead of the output layout when output is nil
	consumed atomic.Bool
}

func newContext(owner Layer, input, output *tensor.Tensor) *Context {
	return &Context{owner: owner, input: input, output: output}
}

// Layer returns the layer whose Forward produced the context.
func (c *Context) Layer() Layer {
	return c.owner
}

// Input returns the forward input.
func (c *Context) Input() *tensor.Tensor {
	return c.input
}

// Output returns the forward output.
func (c *Context) Output() *tensor.Tensor {
	return c.output
}

// Consumed reports whether Backward already used the context.
func (c *Context) Consumed() bool {
	return c.consumed.Load()
}

// take marks the context consumed by owner. gy is checked against the
// forward output first, so a rejected gradient leaves the context usable.
func (c *Context) take(owner Layer, gy *tensor.Tensor) error {
	if c == nil {
		return ErrNoForward
	}
	if c.owner != owner {
		return ErrForeignContext
	}
	if c.consumed.Load() {
		return ErrContextConsumed
	}
	if err := c.accepts(gy); err != nil {
		return err
	}
	if !c.consumed.CompareAndSwap(false, true) {
		return ErrContextConsumed
	}
	return nil
}

// accepts reports whether gy can flow back through the context. Contexts
// without a cached output only constrain the gradient's size.
func (c *Context) accepts(gy *tensor.Tensor) error {
	switch y := c.output; {
	case gy == nil:
		return fmt.Errorf("nil gradient: %w", ErrShapeMismatch)
	case y != nil && !gy.SameLayout(y):
		return fmt.Errorf("gradient shape %v x %d, want %v x %d: %w",
			gy.Shape(), gy.BatchCount(), y.Shape(), y.BatchCount(), ErrShapeMismatch)
	case y == nil && gy.Size() != c.gradSize:
		return fmt.Errorf("gradient has %d values, want %d: %w", gy.Size(), c.gradSize, ErrShapeMismatch)
	}
	return nil
}
