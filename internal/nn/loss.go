package nn

import (
	"fmt"

	"github.com/born-ml/strata/internal/tensor"
)

// MeanSquaredError computes Mean Squared Error loss and its gradient.
//
// Loss = mean((predictions - targets)²)
// Grad = 2 * (predictions - targets) / N
//
// MSE is commonly used for regression tasks where the goal is to predict
// continuous values. The returned gradient has the layout of predictions and
// is what the last layer's Backward expects.
//
// Example:
//
//	y, ctx, _ := model.Forward(x)
//	loss, gy, err := nn.MeanSquaredError(y, targets)
//	_, err = model.Backward(ctx, gy)
func MeanSquaredError(predictions, targets *tensor.Tensor) (float32, *tensor.Tensor, error) {
	if !predictions.SameLayout(targets) {
		return 0, nil, fmt.Errorf("mean_squared_error: predictions %v, targets %v: %w",
			predictions, targets, ErrShapeMismatch)
	}

	p, t := predictions.Data(), targets.Data()
	n := float32(len(p))
	grad := make([]float32, len(p))

	var sum float32
	for i := range p {
		d := p[i] - t[i]
		sum += d * d
		grad[i] = 2 * d / n
	}

	return sum / n, tensor.MustWrap(grad, predictions.Shape(), predictions.BatchCount()), nil
}
