package nn

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/strata/internal/tensor"
)

// EmbedIDConfig configures an embedding lookup table.
type EmbedIDConfig struct {
	InputCount  int       // vocabulary size
	OutputCount int       // embedding width
	InitialW    []float32 // optional, InputCount*OutputCount values
	Initializer Initializer
}

// EmbedID maps integer indices to rows of a learned table.
//
// Input: any shape holding integer-valued floats in [0, InputCount).
// Output: the input shape with OutputCount appended, same batch count.
//
// EmbedID is terminal: Backward scatter-adds into the table gradient and
// returns a nil input gradient.
//
// Example:
//
//	embed, err := nn.NewEmbedID(nn.EmbedIDConfig{InputCount: 50000, OutputCount: 512})
//	ids, _ := tensor.New([]float32{15496, 11, 995}, tensor.Shape{3}, 1)
//	vectors, ctx, err := embed.Forward(ids) // [3] -> [3, 512]
type EmbedID struct {
	vocab, width int
	Weight       *Parameter // [vocab, width]

	mu sync.Mutex
}

// NewEmbedID validates cfg and builds the table.
func NewEmbedID(cfg EmbedIDConfig) (*EmbedID, error) {
	const name = "embed_id"
	if cfg.InputCount <= 0 || cfg.OutputCount <= 0 {
		return nil, fmt.Errorf("%s: vocabulary %d, width %d: %w",
			name, cfg.InputCount, cfg.OutputCount, ErrInvalidConfig)
	}

	shape := tensor.Shape{cfg.InputCount, cfg.OutputCount}
	w, err := initWeights(name, "weight", cfg.InitialW, shape.NumElements(),
		cfg.InputCount, cfg.OutputCount, cfg.Initializer)
	if err != nil {
		return nil, err
	}

	return &EmbedID{
		vocab:  cfg.InputCount,
		width:  cfg.OutputCount,
		Weight: NewParameter(name+".weight", tensor.MustWrap(w, shape, 1)),
	}, nil
}

// Name returns "embed_id".
func (e *EmbedID) Name() string {
	return "embed_id"
}

// Parameters returns the table.
func (e *EmbedID) Parameters() []*Parameter {
	return []*Parameter{e.Weight}
}

// VocabSize returns the number of rows.
func (e *EmbedID) VocabSize() int {
	return e.vocab
}

// Width returns the embedding width.
func (e *EmbedID) Width() int {
	return e.width
}

// rows validates every index in ids.
func (e *EmbedID) rows(ids []float32) ([]int, error) {
	rows := make([]int, len(ids))
	for i, v := range ids {
		r := int(v)
		if float32(r) != v {
			return nil, fmt.Errorf("%s: index %v at %d is not an integer: %w", e.Name(), v, i, ErrIndexOutOfRange)
		}
		if r < 0 || r >= e.vocab {
			return nil, fmt.Errorf("%s: index %d at %d outside vocabulary of %d: %w",
				e.Name(), r, i, e.vocab, ErrIndexOutOfRange)
		}
		rows[i] = r
	}
	return rows, nil
}

func (e *EmbedID) row(data []float32, r int) blas32.Vector {
	return blas32.Vector{N: e.width, Data: data[r*e.width : (r+1)*e.width], Inc: 1}
}

// Forward copies one table row per index.
func (e *EmbedID) Forward(x *tensor.Tensor) (*tensor.Tensor, *Context, error) {
	rows, err := e.rows(x.Data())
	if err != nil {
		return nil, nil, err
	}

	w := e.Weight.Data.Data()
	y := make([]float32, len(rows)*e.width)
	for i, r := range rows {
		blas32.Copy(e.row(w, r), e.row(y, i))
	}

	out := tensor.MustWrap(y, x.Shape().Append(e.width), x.BatchCount())
	ctx := newContext(e, x, nil)
	ctx.extra = rows
	ctx.gradSize = len(y)
	return out, ctx, nil
}

// Backward adds each gradient row into the table row it was read from.
// It always returns a nil input gradient.
func (e *EmbedID) Backward(ctx *Context, gy *tensor.Tensor) (*tensor.Tensor, error) {
	if err := ctx.take(e, gy); err != nil {
		return nil, fmt.Errorf("%s: %w", e.Name(), err)
	}
	rows, _ := ctx.extra.([]int)

	e.mu.Lock()
	defer e.mu.Unlock()

	gw := e.Weight.Grad.Data()
	gyd := gy.Data()
	for i, r := range rows {
		blas32.Axpy(1, e.row(gyd, i), e.row(gw, r))
	}
	return nil, nil
}
