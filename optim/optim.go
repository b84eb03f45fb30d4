// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides optimizers that update nn.Parameter values from
// their accumulated gradients.
//
// Example:
//
//	optimizer, err := optim.NewAdam(model.Parameters(), optim.AdamConfig{LR: 0.001})
//	if err != nil {
//	    return err
//	}
//	for step := range steps {
//	    y, ctx, _ := model.Forward(x)
//	    _, gy, _ := nn.MeanSquaredError(y, target)
//	    _, _ = model.Backward(ctx, gy)
//	    if err := optimizer.Step(); err != nil {
//	        return err
//	    }
//	}
package optim

import (
	"github.com/born-ml/strata/internal/optim"
	"github.com/born-ml/strata/nn"
)

// Optimizer interface defines the common interface for all optimizers.
type Optimizer = optim.Optimizer

// ErrGradientLayout is returned when a gradient does not match its parameter.
var ErrGradientLayout = optim.ErrGradientLayout

// ErrDuplicateParameter is returned when a parameter is listed twice.
var ErrDuplicateParameter = optim.ErrDuplicateParameter

// SGD represents the SGD optimizer with optional momentum.
type SGD = optim.SGD

// SGDConfig contains configuration for SGD optimizer.
type SGDConfig = optim.SGDConfig

// NewSGD creates a new SGD optimizer.
func NewSGD(params []*nn.Parameter, config SGDConfig) (*SGD, error) {
	return optim.NewSGD(params, config)
}

// Adam represents the Adam optimizer.
type Adam = optim.Adam

// AdamConfig contains configuration for Adam optimizer.
type AdamConfig = optim.AdamConfig

// NewAdam creates a new Adam optimizer with bias correction.
//
// Example:
//
//	optimizer, err := optim.NewAdam(model.Parameters(), optim.AdamConfig{
//	    LR:    0.001,
//	    Betas: [2]float32{0.9, 0.999},
//	    Eps:   1e-8,
//	})
func NewAdam(params []*nn.Parameter, config AdamConfig) (*Adam, error) {
	return optim.NewAdam(params, config)
}
