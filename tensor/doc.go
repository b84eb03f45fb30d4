// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the float32 tensor container of the strata engine.
//
// # Overview
//
// A Tensor holds a batch of samples that share one Shape. The batch count is
// kept apart from the shape and is the outermost stride of the flat buffer:
//
//	x, err := tensor.New(pixels, tensor.Shape{3, 32, 32}, 8) // 8 RGB images
//
// New copies the source buffer; Wrap aliases it. Every layer in package nn
// consumes and produces Tensors.
//
// # Factories
//
//	zeros := tensor.Zeros(2, 3)
//	batch := tensor.ZerosBatch(4, 2, 3)
//	ones := tensor.OnesLike(zeros)
package tensor
