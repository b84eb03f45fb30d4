// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/born-ml/strata/internal/nn"
	"github.com/born-ml/strata/tensor"
)

// Errors returned (wrapped) by layers.
var (
	ErrInvalidConfig    = nn.ErrInvalidConfig
	ErrShapeMismatch    = nn.ErrShapeMismatch
	ErrContextConsumed  = nn.ErrContextConsumed
	ErrNoForward        = nn.ErrNoForward
	ErrForeignContext   = nn.ErrForeignContext
	ErrTerminalGradient = nn.ErrTerminalGradient
	ErrIndexOutOfRange  = nn.ErrIndexOutOfRange
)

// Layer is the interface implemented by every differentiable layer.
type Layer = nn.Layer

// Context carries what Backward needs from the matching Forward.
type Context = nn.Context

// Stack keeps the contexts of repeated forward passes through one layer.
type Stack = nn.Stack

// NewStack wraps layer with a last-in first-out context stack.
func NewStack(layer Layer) *Stack {
	return nn.NewStack(layer)
}

// Parameter represents a trainable parameter in a neural network.
type Parameter = nn.Parameter

// NewParameter creates a new parameter with a zeroed gradient.
func NewParameter(name string, t *tensor.Tensor) *Parameter {
	return nn.NewParameter(name, t)
}

// Initialization

// Initializer fills a weight buffer.
type Initializer = nn.Initializer

// Xavier is the Glorot initializer.
type Xavier = nn.Xavier

// DefaultSeed seeds the initializer used when a config leaves it nil.
const DefaultSeed = nn.DefaultSeed

// NewXavier creates a Xavier-normal initializer.
func NewXavier(seed uint64) *Xavier {
	return nn.NewXavier(seed)
}

// NewXavierUniform creates a Xavier-uniform initializer.
func NewXavierUniform(seed uint64) *Xavier {
	return nn.NewXavierUniform(seed)
}

// Activations

// Activation is an element-wise function that can be fused into a layer.
type Activation = nn.Activation

// ReLU is max(0, x).
type ReLU = nn.ReLU

// LeakyReLU is x for x > 0, Slope*x otherwise.
type LeakyReLU = nn.LeakyReLU

// Sigmoid is 1/(1+exp(-x)).
type Sigmoid = nn.Sigmoid

// Tanh is the hyperbolic tangent.
type Tanh = nn.Tanh

// ActivationLayer applies an Activation as a standalone layer.
type ActivationLayer = nn.ActivationLayer

// Activate wraps act as a layer.
func Activate(act Activation) *ActivationLayer {
	return nn.Activate(act)
}

// Layers

// Deconvolution2D is a 2D transposed convolution.
type Deconvolution2D = nn.Deconvolution2D

// Deconvolution2DConfig configures a Deconvolution2D.
type Deconvolution2DConfig = nn.Deconvolution2DConfig

// NewDeconvolution2D creates a transposed convolution.
//
// Example:
//
//	up, err := nn.NewDeconvolution2D(nn.Deconvolution2DConfig{
//	    InChannels: 8, OutChannels: 1, KernelSize: 3, Stride: 2,
//	})
func NewDeconvolution2D(cfg Deconvolution2DConfig) (*Deconvolution2D, error) {
	return nn.NewDeconvolution2D(cfg)
}

// Convolution2D is a 2D convolution.
type Convolution2D = nn.Convolution2D

// Convolution2DConfig configures a Convolution2D.
type Convolution2DConfig = nn.Convolution2DConfig

// NewConvolution2D creates a convolution.
func NewConvolution2D(cfg Convolution2DConfig) (*Convolution2D, error) {
	return nn.NewConvolution2D(cfg)
}

// MaxPooling2D is a 2D max pooling layer.
type MaxPooling2D = nn.MaxPooling2D

// NewMaxPooling2D creates a max pooling layer.
//
// Example:
//
//	pool, err := nn.NewMaxPooling2D(2, 2, 0)
func NewMaxPooling2D(kernelSize, stride, pad int) (*MaxPooling2D, error) {
	return nn.NewMaxPooling2D(kernelSize, stride, pad)
}

// EmbedID is an embedding lookup table.
type EmbedID = nn.EmbedID

// EmbedIDConfig configures an EmbedID.
type EmbedIDConfig = nn.EmbedIDConfig

// NewEmbedID creates an embedding table.
func NewEmbedID(cfg EmbedIDConfig) (*EmbedID, error) {
	return nn.NewEmbedID(cfg)
}

// Linear is a fully connected layer.
type Linear = nn.Linear

// LinearConfig configures a Linear layer.
type LinearConfig = nn.LinearConfig

// NewLinear creates a fully connected layer.
func NewLinear(cfg LinearConfig) (*Linear, error) {
	return nn.NewLinear(cfg)
}

// Pointwise applies a scalar math function element-wise.
type Pointwise = nn.Pointwise

// NewArcSin creates y = asin(x).
func NewArcSin() *Pointwise { return nn.NewArcSin() }

// NewArcCos creates y = acos(x).
func NewArcCos() *Pointwise { return nn.NewArcCos() }

// NewArcTan creates y = atan(x).
func NewArcTan() *Pointwise { return nn.NewArcTan() }

// NewSin creates y = sin(x).
func NewSin() *Pointwise { return nn.NewSin() }

// NewCos creates y = cos(x).
func NewCos() *Pointwise { return nn.NewCos() }

// Sequential is a container that chains layers.
type Sequential = nn.Sequential

// NewSequential creates a new sequential container.
func NewSequential(layers ...Layer) *Sequential {
	return nn.NewSequential(layers...)
}

// Loss functions

// MeanSquaredError returns the mean squared error and its gradient with
// respect to predictions.
func MeanSquaredError(predictions, targets *tensor.Tensor) (float32, *tensor.Tensor, error) {
	return nn.MeanSquaredError(predictions, targets)
}
