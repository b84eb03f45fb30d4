package nn_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/strata/internal/nn"
	"github.com/born-ml/strata/internal/parallel"
	"github.com/born-ml/strata/internal/tensor"
)

func sequence(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i + 1)
	}
	return out
}

// TestMaxPooling2D_Creation tests layer creation and validation.
func TestMaxPooling2D_Creation(t *testing.T) {
	pool, err := nn.NewMaxPooling2D(2, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, pool.KernelSize())
	assert.Equal(t, 2, pool.Stride())
	assert.Empty(t, pool.Parameters())

	pool, err = nn.NewMaxPooling2D(3, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, pool.Stride(), "stride defaults to 1")

	for _, bad := range [][3]int{{0, 1, 0}, {2, -1, 0}, {2, 1, -1}, {2, 1, 2}} {
		_, err := nn.NewMaxPooling2D(bad[0], bad[1], bad[2])
		assert.ErrorIs(t, err, nn.ErrInvalidConfig, "%v", bad)
	}
}

// TestMaxPooling2D_ForwardValues tests forward pass with known values.
func TestMaxPooling2D_ForwardValues(t *testing.T) {
	pool, err := nn.NewMaxPooling2D(2, 2, 0)
	require.NoError(t, err)

	// [[1,2,3,4],      -> [[6,8],
	//  [5,6,7,8],         [14,16]]
	//  [9,10,11,12],
	//  [13,14,15,16]]
	x, err := tensor.New(sequence(16), tensor.Shape{1, 4, 4}, 1)
	require.NoError(t, err)

	y, _, err := pool.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 2, 2}, y.Shape())
	assert.Equal(t, []float32{6, 8, 14, 16}, y.Data())
}

func TestMaxPooling2D_OutputShape(t *testing.T) {
	tests := []struct {
		h, w, k, s, p int
		wantH, wantW  int
	}{
		{h: 28, w: 28, k: 2, s: 2, p: 0, wantH: 14, wantW: 14},
		{h: 5, w: 5, k: 3, s: 2, p: 1, wantH: 3, wantW: 3},
		{h: 7, w: 4, k: 3, s: 1, p: 0, wantH: 5, wantW: 2},
		{h: 5, w: 6, k: 2, s: 2, p: 0, wantH: 2, wantW: 3}, // floor
	}
	for _, tt := range tests {
		pool, err := nn.NewMaxPooling2D(tt.k, tt.s, tt.p)
		require.NoError(t, err)

		y, _, err := pool.Forward(tensor.ZerosBatch(3, 2, tt.h, tt.w))
		require.NoError(t, err)
		assert.Equal(t, tensor.Shape{2, tt.wantH, tt.wantW}, y.Shape(), "%+v", tt)
		assert.Equal(t, 3, y.BatchCount())
	}
}

func TestMaxPooling2D_PaddingNeverWins(t *testing.T) {
	pool, err := nn.NewMaxPooling2D(3, 2, 1)
	require.NoError(t, err)

	x, err := tensor.New([]float32{-5, -4, -3, -2}, tensor.Shape{1, 2, 2}, 1)
	require.NoError(t, err)

	y, _, err := pool.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, []float32{-2}, y.Data())
}

func TestMaxPooling2D_BackwardFirstMatch(t *testing.T) {
	pool, err := nn.NewMaxPooling2D(2, 2, 0)
	require.NoError(t, err)

	x, err := tensor.New([]float32{
		5, 5, 1, 7,
		5, 5, 7, 2,
	}, tensor.Shape{1, 2, 4}, 1)
	require.NoError(t, err)

	y, ctx, err := pool.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 7}, y.Data())

	gy, err := tensor.New([]float32{1, 2}, y.Shape(), 1)
	require.NoError(t, err)
	gx, err := pool.Backward(ctx, gy)
	require.NoError(t, err)

	assert.Equal(t, []float32{
		1, 0, 0, 2,
		0, 0, 0, 0,
	}, gx.Data())
}

func TestMaxPooling2D_OverlappingWindowsAccumulate(t *testing.T) {
	pool, err := nn.NewMaxPooling2D(2, 1, 0)
	require.NoError(t, err)

	x, err := tensor.New([]float32{
		1, 9, 2,
		0, 0, 0,
	}, tensor.Shape{1, 2, 3}, 1)
	require.NoError(t, err)

	y, ctx, err := pool.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, []float32{9, 9}, y.Data())

	gy, err := tensor.New([]float32{0.5, 0.25}, y.Shape(), 1)
	require.NoError(t, err)
	gx, err := pool.Backward(ctx, gy)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0.75, 0, 0, 0, 0}, gx.Data())
}

func TestMaxPooling2D_Gradients(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 9))

	// Distinct values spaced well beyond the finite-difference step.
	const n = 2 * 5 * 5 * 2
	vals := make([]float32, n)
	for i, j := range rng.Perm(n) {
		vals[i] = float32(j) * 0.1
	}
	x, err := tensor.New(vals, tensor.Shape{2, 5, 5}, 2)
	require.NoError(t, err)

	pool, err := nn.NewMaxPooling2D(3, 2, 1)
	require.NoError(t, err)
	checkGradients(t, pool.WithParallel(parallel.Config{Enabled: true, NumWorkers: 2, MinChunkSize: 1}), x, rng)
}
