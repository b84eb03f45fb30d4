package optim

import (
	"math"

	"github.com/chewxy/math32"

	"github.com/born-ml/strata/internal/nn"
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer.
//
// Adam combines ideas from RMSprop and momentum:
//   - Maintains exponential moving averages of gradients (first moment)
//   - Maintains exponential moving averages of squared gradients (second moment)
//   - Applies bias correction to compensate for initialization at zero
//
// Update rule, with the bias corrections folded into the step size:
//
//	lr_t = lr * sqrt(1 - beta2^t) / (1 - beta1^t)
//	m    = m + (1-beta1) * (g - m)
//	v    = v + (1-beta2) * (g² - v)
//	p    = p - lr_t * m / (sqrt(v) + eps)
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
//
// Example:
//
//	optimizer, err := optim.NewAdam(model.Parameters(), optim.AdamConfig{
//	    LR:    0.001,
//	    Betas: [2]float32{0.9, 0.999},
//	    Eps:   1e-8,
//	})
type Adam struct {
	params []*nn.Parameter
	lr     float32
	beta1  float32
	beta2  float32
	eps    float32
	t      int         // Timestep for bias correction
	m      [][]float32 // First moment estimates, one per parameter
	v      [][]float32 // Second moment estimates, one per parameter
}

// AdamConfig holds configuration for Adam optimizer.
type AdamConfig struct {
	LR    float32    // Learning rate (default: 0.001)
	Betas [2]float32 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps   float32    // Term for numerical stability (default: 1e-8)
}

// NewAdam creates a new Adam optimizer bound to params.
//
// Both moment buffers are allocated zeroed here, one element per parameter
// value, and live as long as the optimizer. Listing a parameter twice returns
// ErrDuplicateParameter.
//
// Default hyperparameters:
//   - LR: 0.001
//   - Beta1: 0.9
//   - Beta2: 0.999
//   - Eps: 1e-8
func NewAdam(params []*nn.Parameter, config AdamConfig) (*Adam, error) {
	if err := checkParams(params); err != nil {
		return nil, err
	}

	// Set defaults
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}

	m := make([][]float32, len(params))
	v := make([][]float32, len(params))
	for i, p := range params {
		m[i] = make([]float32, p.Len())
		v[i] = make([]float32, p.Len())
	}

	return &Adam{
		params: params,
		lr:     config.LR,
		beta1:  config.Betas[0],
		beta2:  config.Betas[1],
		eps:    config.Eps,
		m:      m,
		v:      v,
	}, nil
}

// Step performs a single optimization step and zeroes the gradients.
func (a *Adam) Step() error {
	a.t++

	fix1 := 1 - math.Pow(float64(a.beta1), float64(a.t))
	fix2 := 1 - math.Pow(float64(a.beta2), float64(a.t))
	lr := float32(float64(a.lr) * math.Sqrt(fix2) / fix1)

	err := forEachParam(a.params, func(i int, p *nn.Parameter) {
		data, grad := p.Data.Data(), p.Grad.Data()
		m, v := a.m[i], a.v[i]
		for j, g := range grad {
			m[j] += (1 - a.beta1) * (g - m[j])
			v[j] += (1 - a.beta2) * (g*g - v[j])
			data[j] -= lr * m[j] / (math32.Sqrt(v[j]) + a.eps)
		}
	})
	if err != nil {
		a.t--
		return err
	}

	zeroGrads(a.params)
	return nil
}

// ZeroGrad clears all parameter gradients.
func (a *Adam) ZeroGrad() {
	zeroGrads(a.params)
}

// LR returns the base learning rate.
func (a *Adam) LR() float32 {
	return a.lr
}

// SetLR changes the base learning rate.
func (a *Adam) SetLR(lr float32) {
	a.lr = lr
}

// Timestep returns the number of completed steps.
func (a *Adam) Timestep() int {
	return a.t
}

// Moments returns copies of the first and second moment estimates of
// parameter i.
func (a *Adam) Moments(i int) (m, v []float32) {
	return append([]float32(nil), a.m[i]...), append([]float32(nil), a.v[i]...)
}
