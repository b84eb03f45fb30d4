package nn_test

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/strata/internal/nn"
	"github.com/born-ml/strata/internal/tensor"
)

func TestActivations_Forward(t *testing.T) {
	tests := []struct {
		act  nn.Activation
		in   float32
		want float32
	}{
		{nn.ReLU{}, -2, 0},
		{nn.ReLU{}, 3, 3},
		{nn.LeakyReLU{Slope: 0.1}, -2, -0.2},
		{nn.LeakyReLU{Slope: 0.1}, 2, 2},
		{nn.Sigmoid{}, 0, 0.5},
		{nn.Tanh{}, 0, 0},
		{nn.Tanh{}, 1, float32(math.Tanh(1))},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, tt.act.Forward(tt.in), 1e-6, "%s(%v)", tt.act.Name(), tt.in)
	}
}

// Backward takes the forward output; check it against d/dx f at x.
func TestActivations_BackwardFromOutput(t *testing.T) {
	acts := []nn.Activation{nn.ReLU{}, nn.LeakyReLU{Slope: 0.2}, nn.Sigmoid{}, nn.Tanh{}}
	const h = 1e-3

	for _, act := range acts {
		for _, x := range []float32{-1.5, -0.3, 0.4, 2} {
			y := act.Forward(x)
			numeric := (float64(act.Forward(x+h)) - float64(act.Forward(x-h))) / (2 * h)
			assert.InDelta(t, numeric, act.Backward(1, y), 1e-2, "%s at %v", act.Name(), x)
			assert.InDelta(t, 3*numeric, act.Backward(3, y), 3e-2, "%s scales gy", act.Name())
		}
	}
}

func TestActivations_KernelSource(t *testing.T) {
	for _, act := range []nn.Activation{nn.ReLU{}, nn.LeakyReLU{Slope: 0.2}, nn.Sigmoid{}, nn.Tanh{}} {
		assert.Contains(t, act.KernelSource(), "fn activate(x: f32) -> f32", act.Name())
	}
	assert.Contains(t, nn.LeakyReLU{Slope: 0.2}.KernelSource(), "2e-01f")
	assert.NotEqual(t, nn.LeakyReLU{Slope: 0.2}.Name(), nn.LeakyReLU{Slope: 0.3}.Name())
}

func TestActivate_Layer(t *testing.T) {
	layer := nn.Activate(nn.ReLU{})
	assert.Equal(t, "relu", layer.Name())
	assert.Nil(t, layer.Parameters())

	x, err := tensor.New([]float32{-1, 2, -3, 4}, tensor.Shape{2, 2}, 1)
	require.NoError(t, err)

	y, ctx, err := layer.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 2, 0, 4}, y.Data())

	gx, err := layer.Backward(ctx, tensor.OnesLike(y))
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 0, 1}, gx.Data())

	rng := rand.New(rand.NewPCG(2, 2))
	checkGradients(t, nn.Activate(nn.Sigmoid{}), randomTensor(t, rng, tensor.Shape{3, 4}, 2), rng)
}

func TestPointwise_Values(t *testing.T) {
	x, err := tensor.New([]float32{0, 0.5}, tensor.Shape{2}, 1)
	require.NoError(t, err)

	tests := []struct {
		layer *nn.Pointwise
		f     func(float64) float64
	}{
		{nn.NewArcSin(), math.Asin},
		{nn.NewArcCos(), math.Acos},
		{nn.NewArcTan(), math.Atan},
		{nn.NewSin(), math.Sin},
		{nn.NewCos(), math.Cos},
	}
	for _, tt := range tests {
		y, _, err := tt.layer.Forward(x)
		require.NoError(t, err)
		for i, v := range x.Data() {
			assert.InDelta(t, tt.f(float64(v)), y.Data()[i], 1e-6, "%s(%v)", tt.layer.Name(), v)
		}
	}
}

func TestPointwise_Gradients(t *testing.T) {
	rng := rand.New(rand.NewPCG(4, 4))

	for _, layer := range []*nn.Pointwise{nn.NewArcSin(), nn.NewArcCos(), nn.NewArcTan(), nn.NewSin(), nn.NewCos()} {
		t.Run(layer.Name(), func(t *testing.T) {
			// Stay inside (-1, 1) away from the arcsin/arccos poles.
			x := randomTensor(t, rng, tensor.Shape{6}, 2)
			for i := range x.Data() {
				x.Data()[i] *= 0.8
			}
			checkGradients(t, layer, x, rng)
		})
	}
}

func TestPointwise_ArcSinOutsideDomain(t *testing.T) {
	x, err := tensor.New([]float32{2}, tensor.Shape{1}, 1)
	require.NoError(t, err)

	y, _, err := nn.NewArcSin().Forward(x)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(float64(y.Data()[0])))
}
