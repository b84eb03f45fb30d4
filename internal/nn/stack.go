package nn

import (
	"fmt"
	"sync"

	"github.com/born-ml/strata/internal/tensor"
)

// Stack adapts a Layer to nested call order: every Forward pushes its
// Context and every Backward pops the most recent one.
//
// Example:
//
//	s := nn.NewStack(layer)
//	h1, _ := s.Forward(x1)
//	h2, _ := s.Forward(x2)
//	g2, _ := s.Backward(gy2) // uses the context of x2
//	g1, _ := s.Backward(gy1) // uses the context of x1
type Stack struct {
	layer Layer

	mu   sync.Mutex
	ctxs []*Context
}

// NewStack wraps layer.
func NewStack(layer Layer) *Stack {
	return &Stack{layer: layer}
}

// Layer returns the wrapped layer.
func (s *Stack) Layer() Layer {
	return s.layer
}

// Forward runs the wrapped layer and records its context.
func (s *Stack) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	y, ctx, err := s.layer.Forward(x)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.ctxs = append(s.ctxs, ctx)
	s.mu.Unlock()
	return y, nil
}

// Backward pops the most recent context and runs the wrapped layer's Backward.
func (s *Stack) Backward(gy *tensor.Tensor) (*tensor.Tensor, error) {
	s.mu.Lock()
	if len(s.ctxs) == 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", s.layer.Name(), ErrNoForward)
	}
	ctx := s.ctxs[len(s.ctxs)-1]
	s.ctxs[len(s.ctxs)-1] = nil
	s.ctxs = s.ctxs[:len(s.ctxs)-1]
	s.mu.Unlock()

	gx, err := s.layer.Backward(ctx, gy)
	if err != nil && !ctx.Consumed() {
		// A rejected gradient leaves the context pending for a retry.
		s.mu.Lock()
		s.ctxs = append(s.ctxs, ctx)
		s.mu.Unlock()
	}
	return gx, err
}

// Depth returns the number of pending contexts.
func (s *Stack) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ctxs)
}

// Reset drops all pending contexts.
func (s *Stack) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.ctxs)
	s.ctxs = s.ctxs[:0]
}
