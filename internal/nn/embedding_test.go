package nn_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/strata/internal/nn"
	"github.com/born-ml/strata/internal/tensor"
)

func newTable(t *testing.T) *nn.EmbedID {
	t.Helper()
	e, err := nn.NewEmbedID(nn.EmbedIDConfig{
		InputCount:  3,
		OutputCount: 2,
		InitialW:    []float32{1, 2, 3, 4, 5, 6},
	})
	require.NoError(t, err)
	return e
}

func TestEmbedID_Forward(t *testing.T) {
	e := newTable(t)

	ids, err := tensor.New([]float32{0, 2, 1}, tensor.Shape{3}, 1)
	require.NoError(t, err)

	y, _, err := e.Forward(ids)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 2}, y.Shape())
	assert.Equal(t, []float32{1, 2, 5, 6, 3, 4}, y.Data())
}

func TestEmbedID_ForwardKeepsInputShape(t *testing.T) {
	e := newTable(t)

	ids, err := tensor.New([]float32{0, 1, 2, 2, 1, 0, 1, 1, 1, 0, 0, 0}, tensor.Shape{2, 3}, 2)
	require.NoError(t, err)

	y, _, err := e.Forward(ids)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3, 2}, y.Shape())
	assert.Equal(t, 2, y.BatchCount())
	assert.Equal(t, float32(5), y.At(0, 0, 2, 0))
	assert.Equal(t, float32(1), y.At(1, 1, 2, 0))
}

func TestEmbedID_BackwardScatterAdds(t *testing.T) {
	e := newTable(t)

	ids, err := tensor.New([]float32{1, 1, 2}, tensor.Shape{3}, 1)
	require.NoError(t, err)
	_, ctx, err := e.Forward(ids)
	require.NoError(t, err)

	gy, err := tensor.New([]float32{1, 1, 2, 2, 10, 20}, tensor.Shape{3, 2}, 1)
	require.NoError(t, err)

	gx, err := e.Backward(ctx, gy)
	require.NoError(t, err)
	assert.Nil(t, gx, "embedding lookup is terminal")
	assert.Equal(t, []float32{0, 0, 3, 3, 10, 20}, e.Weight.Grad.Data())

	_, err = e.Backward(ctx, gy)
	assert.ErrorIs(t, err, nn.ErrContextConsumed)
}

func TestEmbedID_RejectsBadIndices(t *testing.T) {
	e := newTable(t)

	for _, v := range []float32{-1, 3, 1.5} {
		ids, err := tensor.New([]float32{0, v}, tensor.Shape{2}, 1)
		require.NoError(t, err)
		_, _, err = e.Forward(ids)
		assert.ErrorIs(t, err, nn.ErrIndexOutOfRange, "%v", v)
	}
}

func TestEmbedID_Config(t *testing.T) {
	_, err := nn.NewEmbedID(nn.EmbedIDConfig{InputCount: 0, OutputCount: 4})
	assert.ErrorIs(t, err, nn.ErrInvalidConfig)

	_, err = nn.NewEmbedID(nn.EmbedIDConfig{InputCount: 2, OutputCount: 2, InitialW: []float32{1}})
	assert.ErrorIs(t, err, nn.ErrInvalidConfig)

	e, err := nn.NewEmbedID(nn.EmbedIDConfig{InputCount: 10, OutputCount: 4, Initializer: nn.NewXavier(1)})
	require.NoError(t, err)
	assert.Equal(t, 10, e.VocabSize())
	assert.Equal(t, 4, e.Width())
	assert.Len(t, e.Parameters(), 1)
}
