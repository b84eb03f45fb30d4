package nn_test

import (
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"

	"github.com/born-ml/strata/internal/nn"
	"github.com/born-ml/strata/internal/tensor"
)

// Central differences in float32 need a coarse step; the matching tolerance
// is relative to the magnitude of the expected value.
var fdSettings = &fd.Settings{Formula: fd.Central, Step: 1e-2}

// The loss is summed in float64, but each layer output is still rounded to
// float32 (about 1e-7 relative) before the difference is divided by 2*Step.
// That leaves errors near 1e-4 on the larger layers, well inside gradTol.
const gradTol = 2e-3

func randomData(rng *rand.Rand, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = rng.Float32()*2 - 1
	}
	return out
}

func randomTensor(t *testing.T, rng *rand.Rand, shape tensor.Shape, batch int) *tensor.Tensor {
	t.Helper()
	x, err := tensor.New(randomData(rng, shape.NumElements()*batch), shape, batch)
	require.NoError(t, err)
	return x
}

// projectedLoss returns Σ y·r, whose gradient with respect to y is r.
func projectedLoss(t *testing.T, l nn.Layer, x, r *tensor.Tensor) float64 {
	t.Helper()
	y, _, err := l.Forward(x)
	require.NoError(t, err)
	require.Equal(t, r.Size(), y.Size())

	var sum float64
	for i, v := range y.Data() {
		sum += float64(v) * float64(r.Data()[i])
	}
	return sum
}

// numericGradient differentiates f with respect to data, which f reads.
// data is restored afterwards.
func numericGradient(data []float32, f func() float64) []float64 {
	orig := slices.Clone(data)
	defer copy(data, orig)

	x0 := make([]float64, len(data))
	for i, v := range data {
		x0[i] = float64(v)
	}
	return fd.Gradient(nil, func(v []float64) float64 {
		for i := range v {
			data[i] = float32(v[i])
		}
		return f()
	}, x0, fdSettings)
}

func assertGradient(t *testing.T, what string, want []float64, got []float32) {
	t.Helper()
	require.Len(t, got, len(want), what)
	for i := range want {
		tol := gradTol * math.Max(1, math.Abs(want[i]))
		assert.InDeltaf(t, want[i], float64(got[i]), tol, "%s[%d]", what, i)
	}
}

// checkGradients compares the analytic input and parameter gradients of l at
// x against central differences. Parameter gradients must be zero on entry.
func checkGradients(t *testing.T, l nn.Layer, x *tensor.Tensor, rng *rand.Rand) {
	t.Helper()

	y, ctx, err := l.Forward(x)
	require.NoError(t, err)
	r := randomTensor(t, rng, y.Shape(), y.BatchCount())

	gx, err := l.Backward(ctx, r)
	require.NoError(t, err)

	loss := func() float64 { return projectedLoss(t, l, x, r) }

	if gx != nil {
		assertGradient(t, "gx", numericGradient(x.Data(), loss), gx.Data())
	}
	for _, p := range l.Parameters() {
		assertGradient(t, p.Name(), numericGradient(p.Data.Data(), loss), p.Grad.Data())
	}
}

func assertAllClose(t *testing.T, want, got []float32, delta float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDeltaf(t, want[i], got[i], delta, "index %d", i)
	}
}
