package tokenizer

import (
	"errors"
	"fmt"

	"github.com/born-ml/strata/internal/tensor"
)

// ErrSequenceLength is returned when a requested sequence length is not positive.
var ErrSequenceLength = errors.New("tokenizer: sequence length must be > 0")

// ErrEmptyBatch is returned when no texts are given.
var ErrEmptyBatch = errors.New("tokenizer: empty batch")

// Tokenizer is the core interface for text tokenization.
type Tokenizer interface {
	// Encode converts text to token IDs.
	Encode(text string) ([]int32, error)

	// Decode converts token IDs back to text.
	Decode(tokens []int32) (string, error)

	// VocabSize returns the total vocabulary size.
	VocabSize() int
}

// Indices encodes each text with tok and packs the raw token IDs into a tensor
// of Shape{seqLen} with one sample per text. Longer sequences are truncated,
// shorter ones are filled with pad.
//
// The result feeds an nn.EmbedID whose InputCount is tok.VocabSize().
func Indices(tok Tokenizer, texts []string, seqLen int, pad int32) (*tensor.Tensor, error) {
	return pack(texts, seqLen, func(text string, dst []float32) error {
		ids, err := tok.Encode(text)
		if err != nil {
			return err
		}
		fill(dst, float32(pad))
		for i := 0; i < len(dst) && i < len(ids); i++ {
			dst[i] = float32(ids[i])
		}
		return nil
	})
}

// pack allocates a [seqLen] x len(texts) tensor and lets encode write each row.
func pack(texts []string, seqLen int, encode func(text string, dst []float32) error) (*tensor.Tensor, error) {
	if seqLen <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrSequenceLength, seqLen)
	}
	if len(texts) == 0 {
		return nil, ErrEmptyBatch
	}

	data := make([]float32, seqLen*len(texts))
	for b, text := range texts {
		if err := encode(text, data[b*seqLen:(b+1)*seqLen]); err != nil {
			return nil, fmt.Errorf("tokenizer: text %d: %w", b, err)
		}
	}
	return tensor.MustWrap(data, tensor.Shape{seqLen}, len(texts)), nil
}

func fill(dst []float32, v float32) {
	for i := range dst {
		dst[i] = v
	}
}
