// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package software provides an emulated accelerator that runs kernels on CPU
// goroutines behind a real command queue. It is always available.
package software

import (
	"github.com/born-ml/strata/internal/accel/software"
)

// Queue is the emulated device queue.
type Queue = software.Queue

// Config controls the emulated device.
type Config = software.Config

// New starts an emulated device. Close it when done.
func New(cfg Config) *Queue {
	return software.New(cfg)
}
