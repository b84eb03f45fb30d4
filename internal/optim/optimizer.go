// Package optim implements optimization algorithms for training neural networks.
//
// This package provides:
//   - Optimizer interface: Base interface for all optimizers
//   - SGD: Stochastic Gradient Descent with momentum
//   - Adam: Adaptive Moment Estimation
//
// Optimizers read the gradients accumulated in nn.Parameter.Grad by the layers'
// Backward calls, update the parameter values in place and zero the gradients.
//
// Example usage:
//
//	optimizer, err := optim.NewAdam(model.Parameters(), optim.AdamConfig{
//	    LR: 0.001,
//	})
//	if err != nil {
//	    return err
//	}
//
//	// Training loop
//	for epoch := range epochs {
//	    y, ctx, _ := model.Forward(x)
//	    _, gy, _ := nn.MeanSquaredError(y, targets)
//	    _, _ = model.Backward(ctx, gy)
//
//	    // Update parameters and clear gradients
//	    if err := optimizer.Step(); err != nil {
//	        return err
//	    }
//	}
package optim

import (
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/born-ml/strata/internal/nn"
)

// ErrGradientLayout is returned when a parameter's gradient does not match its
// values.
var ErrGradientLayout = errors.New("gradient layout does not match parameter")

// ErrDuplicateParameter is returned when a parameter is passed to an optimizer
// more than once.
var ErrDuplicateParameter = errors.New("parameter listed more than once")

// Optimizer is the base interface for all optimization algorithms.
//
// Optimizers update model parameters based on the accumulated gradients to
// minimize the loss function during training.
type Optimizer interface {
	// Step applies one update to every parameter, then zeroes all gradients.
	Step() error

	// ZeroGrad clears all parameter gradients without updating.
	ZeroGrad()

	// LR returns the current learning rate.
	LR() float32

	// SetLR changes the learning rate (for scheduling).
	SetLR(lr float32)
}

// checkParams rejects a parameter list that names the same parameter twice.
// Steps update parameters concurrently, so a duplicate would race with itself.
func checkParams(params []*nn.Parameter) error {
	seen := make(map[*nn.Parameter]int, len(params))
	for i, p := range params {
		if j, ok := seen[p]; ok {
			return fmt.Errorf("optim: parameter %s at %d and %d: %w", p.Name(), j, i, ErrDuplicateParameter)
		}
		seen[p] = i
	}
	return nil
}

// forEachParam runs update once per parameter, at most GOMAXPROCS at a time.
// Each parameter is touched by exactly one goroutine, so no locking is needed.
// All layouts are checked first, so a failed step updates nothing.
func forEachParam(params []*nn.Parameter, update func(i int, p *nn.Parameter)) error {
	for _, p := range params {
		if !p.Grad.SameLayout(p.Data) {
			return fmt.Errorf("optim: parameter %s: %w", p.Name(), ErrGradientLayout)
		}
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, p := range params {
		g.Go(func() error {
			update(i, p)
			return nil
		})
	}
	return g.Wait()
}

func zeroGrads(params []*nn.Parameter) {
	for _, p := range params {
		p.ZeroGrad()
	}
}
