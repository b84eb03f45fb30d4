// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package accel defines the accelerator interface used to offload layer
// passes.
//
// A Queue owns device memory and runs kernels in submission order. Two
// implementations ship with the engine:
//   - accel/software: an emulated device running kernels on CPU goroutines
//   - accel/webgpu: a WebGPU device running WGSL kernels (Windows only)
//
// Example:
//
//	q := software.New(software.Config{})
//	defer q.Close()
//
//	up, err := nn.NewDeconvolution2D(nn.Deconvolution2DConfig{
//	    InChannels: 8, OutChannels: 1, KernelSize: 3, Stride: 2,
//	    Accelerator: q,
//	})
package accel

import (
	"github.com/born-ml/strata/internal/accel"
)

// Queue is an in-order accelerator command queue.
type Queue = accel.Queue

// Buffer is device memory owned by a Queue.
type Buffer = accel.Buffer

// Kernel is a compute kernel with its WGSL source and host implementation.
type Kernel = accel.Kernel

// Arg is a kernel argument: a buffer or an integer scalar.
type Arg = accel.Arg

// Errors returned (wrapped) by queues.
var (
	ErrClosed        = accel.ErrClosed
	ErrForeignBuffer = accel.ErrForeignBuffer
	ErrReleased      = accel.ErrReleased
	ErrBadArgument   = accel.ErrBadArgument
	ErrNoKernelCode  = accel.ErrNoKernelCode
)

// Buf wraps a buffer as a kernel argument.
func Buf(b Buffer) Arg { return accel.Buf(b) }

// Int wraps an integer as a kernel argument.
func Int(v int) Arg { return accel.Int(v) }
