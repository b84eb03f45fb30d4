//go:build windows

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU accelerator.
//
// WebGPU is a cross-platform graphics and compute API that works on:
//   - Windows (via Dawn/D3D12)
//   - macOS (via Dawn/Metal)
//   - Linux (via Dawn/Vulkan)
//
// Example:
//
//	if !webgpu.IsAvailable() {
//	    return
//	}
//	gpu, err := webgpu.New(slog.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer gpu.Close()
package webgpu

import (
	"log/slog"

	"github.com/born-ml/strata/internal/accel/webgpu"
)

// Queue is a WebGPU device queue.
type Queue = webgpu.Queue

// New opens the default adapter. A nil logger means slog.Default().
func New(logger *slog.Logger) (*Queue, error) {
	return webgpu.New(logger)
}

// IsAvailable reports whether a WebGPU adapter can be opened.
func IsAvailable() bool {
	return webgpu.IsAvailable()
}
