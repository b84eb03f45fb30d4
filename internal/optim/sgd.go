package optim

import (
	"github.com/born-ml/strata/internal/nn"
)

// SGD implements Stochastic Gradient Descent optimizer with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
//
// Example:
//
//	optimizer, err := optim.NewSGD(model.Parameters(), optim.SGDConfig{
//	    LR:       0.01,
//	    Momentum: 0.9,
//	})
type SGD struct {
	params     []*nn.Parameter
	lr         float32
	momentum   float32
	velocities [][]float32 // nil without momentum
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR       float32 // Learning rate (default: 0.01)
	Momentum float32 // Momentum factor (default: 0.0, range: [0, 1))
}

// NewSGD creates a new SGD optimizer bound to params. Listing a parameter
// twice returns ErrDuplicateParameter.
func NewSGD(params []*nn.Parameter, config SGDConfig) (*SGD, error) {
	if err := checkParams(params); err != nil {
		return nil, err
	}
	if config.LR == 0 {
		config.LR = 0.01
	}

	s := &SGD{
		params:   params,
		lr:       config.LR,
		momentum: config.Momentum,
	}
	if config.Momentum != 0 {
		s.velocities = make([][]float32, len(params))
		for i, p := range params {
			s.velocities[i] = make([]float32, p.Len())
		}
	}
	return s, nil
}

// Step performs a single optimization step and zeroes the gradients.
func (s *SGD) Step() error {
	err := forEachParam(s.params, func(i int, p *nn.Parameter) {
		data, grad := p.Data.Data(), p.Grad.Data()
		if s.velocities == nil {
			for j, g := range grad {
				data[j] -= s.lr * g
			}
			return
		}
		vel := s.velocities[i]
		for j, g := range grad {
			vel[j] = s.momentum*vel[j] + g
			data[j] -= s.lr * vel[j]
		}
	})
	if err != nil {
		return err
	}

	zeroGrads(s.params)
	return nil
}

// ZeroGrad clears all parameter gradients.
func (s *SGD) ZeroGrad() {
	zeroGrads(s.params)
}

// LR returns the current learning rate.
func (s *SGD) LR() float32 {
	return s.lr
}

// SetLR changes the learning rate.
func (s *SGD) SetLR(lr float32) {
	s.lr = lr
}
