// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides neural network layers and building blocks.
//
// # Overview
//
// This package contains:
//   - Layers: Deconvolution2D, Convolution2D, MaxPooling2D, EmbedID, Linear
//   - Pointwise math: ArcSin, ArcCos, ArcTan, Sin, Cos
//   - Activations: ReLU, LeakyReLU, Sigmoid, Tanh (fused or standalone)
//   - Loss functions: MeanSquaredError
//   - Utilities: Sequential, Stack, Parameter, Xavier initialization
//
// # Forward and Backward
//
// Forward returns the output together with a Context. Backward takes that
// Context back and consumes it; passing it twice is an error. Parameter
// gradients accumulate until an optimizer steps.
//
//	deconv, err := nn.NewDeconvolution2D(nn.Deconvolution2DConfig{
//	    InChannels:  16,
//	    OutChannels: 3,
//	    KernelSize:  4,
//	    Stride:      2,
//	    Trim:        1,
//	    Activation:  nn.Sigmoid{},
//	})
//
//	y, ctx, err := deconv.Forward(x)       // [16, H, W] -> [3, 2H, 2W]
//	_, gy, err := nn.MeanSquaredError(y, target)
//	gx, err := deconv.Backward(ctx, gy)
//
// # Accelerators
//
// Deconvolution2D can run its three passes on an accel.Queue (see package
// accel). The CPU and accelerator paths produce the same values.
package nn
