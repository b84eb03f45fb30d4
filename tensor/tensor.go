// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/strata/internal/tensor"
)

// Tensor is a fixed-shape batch of float32 samples.
type Tensor = tensor.Tensor

// Shape holds the per-sample dimensions (the batch is not part of it).
type Shape = tensor.Shape

// ErrShapeMismatch is returned when a buffer does not match its shape.
var ErrShapeMismatch = tensor.ErrShapeMismatch

// New creates a tensor owning a copy of data.
//
// Example:
//
//	x, err := tensor.New([]float32{1, 2, 3, 4}, tensor.Shape{2, 2}, 1)
func New(data []float32, shape Shape, batch int) (*Tensor, error) {
	return tensor.New(data, shape, batch)
}

// Wrap creates a tensor that aliases data.
func Wrap(data []float32, shape Shape, batch int) (*Tensor, error) {
	return tensor.Wrap(data, shape, batch)
}

// MustWrap is like Wrap but panics on a layout mismatch.
func MustWrap(data []float32, shape Shape, batch int) *Tensor {
	return tensor.MustWrap(data, shape, batch)
}

// Zeros creates a single-sample tensor filled with zeros.
func Zeros(shape ...int) *Tensor {
	return tensor.Zeros(shape...)
}

// ZerosBatch creates a zero tensor holding batch samples.
func ZerosBatch(batch int, shape ...int) *Tensor {
	return tensor.ZerosBatch(batch, shape...)
}

// Ones creates a single-sample tensor filled with ones.
func Ones(shape ...int) *Tensor {
	return tensor.Ones(shape...)
}

// Full creates a single-sample tensor filled with value.
func Full(value float32, shape ...int) *Tensor {
	return tensor.Full(value, shape...)
}

// ZerosLike creates a zero tensor with the layout of t.
func ZerosLike(t *Tensor) *Tensor {
	return tensor.ZerosLike(t)
}

// OnesLike creates a tensor of ones with the layout of t.
func OnesLike(t *Tensor) *Tensor {
	return tensor.OnesLike(t)
}
