package nn

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultSeed seeds the initializer used when a layer config leaves
// Initializer and the initial values unset.
const DefaultSeed = 0x5eed

// Initializer fills a freshly allocated weight buffer.
//
// fanIn and fanOut are the number of inputs feeding one output unit and the
// number of outputs fed by one input unit.
type Initializer interface {
	Initialize(w []float32, fanIn, fanOut int)
}

// Xavier (Glorot) initialization for weights.
//
// With Uniform set, values are drawn from
// U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out))); otherwise from
// N(0, 2/(fan_in + fan_out)).
//
// The random source is explicit so runs are reproducible. Xavier is safe for
// concurrent use.
type Xavier struct {
	Uniform bool

	mu  sync.Mutex
	src rand.Source
}

// NewXavier creates a normal Xavier initializer seeded with seed.
func NewXavier(seed uint64) *Xavier {
	return &Xavier{src: rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)}
}

// NewXavierUniform creates a uniform Xavier initializer seeded with seed.
func NewXavierUniform(seed uint64) *Xavier {
	x := NewXavier(seed)
	x.Uniform = true
	return x
}

// Initialize fills w.
func (x *Xavier) Initialize(w []float32, fanIn, fanOut int) {
	x.mu.Lock()
	defer x.mu.Unlock()

	var dist interface{ Rand() float64 }
	if x.Uniform {
		bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
		dist = distuv.Uniform{Min: -bound, Max: bound, Src: x.src}
	} else {
		dist = distuv.Normal{Mu: 0, Sigma: math.Sqrt(2.0 / float64(fanIn+fanOut)), Src: x.src}
	}
	for i := range w {
		w[i] = float32(dist.Rand())
	}
}

var defaultInitializer = NewXavier(DefaultSeed)

// initWeights returns the initial values of a weight parameter: a copy of
// initial when given (its length must be n), otherwise n values drawn from
// init, or from the package default initializer when init is nil.
func initWeights(layer, what string, initial []float32, n, fanIn, fanOut int, init Initializer) ([]float32, error) {
	w := make([]float32, n)
	if initial != nil {
		if len(initial) != n {
			return nil, fmt.Errorf("%s: initial %s has %d values, want %d: %w",
				layer, what, len(initial), n, ErrInvalidConfig)
		}
		copy(w, initial)
		return w, nil
	}
	if init == nil {
		init = defaultInitializer
	}
	init.Initialize(w, fanIn, fanOut)
	return w, nil
}

// initBias returns a copy of initial (length n) or zeros.
func initBias(layer string, initial []float32, n int) ([]float32, error) {
	b := make([]float32, n)
	if initial != nil {
		if len(initial) != n {
			return nil, fmt.Errorf("%s: initial bias has %d values, want %d: %w",
				layer, len(initial), n, ErrInvalidConfig)
		}
		copy(b, initial)
	}
	return b, nil
}
