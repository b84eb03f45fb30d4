package nn

import (
	"github.com/born-ml/strata/internal/tensor"
)

// Parameter represents a trainable parameter in a neural network.
//
// Data holds the values read by Forward. Grad has the same layout and is
// allocated zeroed at creation; Backward calls accumulate into it.
//
// Example:
//
//	// Create a weight parameter
//	weight := nn.NewParameter("deconvolution2d.weight", w)
//
//	// After one or more backward passes
//	g := weight.Grad.Data()
type Parameter struct {
	name string
	Data *tensor.Tensor // Parameter values
	Grad *tensor.Tensor // Accumulated gradient, same shape as Data
}

// NewParameter creates a new trainable parameter around data.
//
// Parameters:
//   - name: Descriptive name for this parameter (e.g., "embed_id.weight")
//   - data: The initialized parameter tensor, owned by the parameter from now on
//
// Returns a new Parameter with a zero gradient.
func NewParameter(name string, data *tensor.Tensor) *Parameter {
	return &Parameter{
		name: name,
		Data: data,
		Grad: tensor.ZerosLike(data),
	}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Len returns the number of scalar values.
func (p *Parameter) Len() int {
	return p.Data.Size()
}

// ZeroGrad re-zeroes the gradient.
//
// Optimizers call this after each Step so gradients never leak across
// training steps.
func (p *Parameter) ZeroGrad() {
	p.Grad.Zero()
}

// accumulate adds src, laid out like dst, into dst.
func accumulate(dst *tensor.Tensor, src []float32) {
	dst.AddScaled(1, tensor.MustWrap(src, dst.Shape(), dst.BatchCount()))
}
