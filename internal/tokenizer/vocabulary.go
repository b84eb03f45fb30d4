package tokenizer

import (
	"fmt"
	"slices"

	"github.com/born-ml/strata/internal/tensor"
)

// Reserved dense indices.
const (
	// PadIndex fills positions past the end of a sequence.
	PadIndex = 0
	// UnknownIndex stands for tokens that were not in the corpus.
	UnknownIndex = 1

	reserved = 2
)

// Vocabulary maps the token IDs that occur in a corpus onto the dense range
// [0, Size()). Dense indices are assigned in ascending token ID order after
// the reserved PadIndex and UnknownIndex, so the mapping does not depend on
// the order of the corpus.
type Vocabulary struct {
	tok    Tokenizer
	dense  map[int32]int
	tokens []int32 // dense index - reserved -> token ID
}

// NewVocabulary encodes every text of corpus with tok and collects the
// distinct token IDs.
func NewVocabulary(tok Tokenizer, corpus []string) (*Vocabulary, error) {
	seen := make(map[int32]struct{})
	for i, text := range corpus {
		ids, err := tok.Encode(text)
		if err != nil {
			return nil, fmt.Errorf("tokenizer: corpus text %d: %w", i, err)
		}
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}

	tokens := make([]int32, 0, len(seen))
	for id := range seen {
		tokens = append(tokens, id)
	}
	slices.Sort(tokens)

	dense := make(map[int32]int, len(tokens))
	for i, id := range tokens {
		dense[id] = i + reserved
	}
	return &Vocabulary{tok: tok, dense: dense, tokens: tokens}, nil
}

// Size returns the number of dense indices, including the reserved ones.
// Use it as the InputCount of an nn.EmbedID.
func (v *Vocabulary) Size() int {
	return len(v.tokens) + reserved
}

// Lookup encodes text into dense indices.
func (v *Vocabulary) Lookup(text string) ([]int, error) {
	ids, err := v.tok.Encode(text)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = v.index(id)
	}
	return out, nil
}

func (v *Vocabulary) index(id int32) int {
	if d, ok := v.dense[id]; ok {
		return d
	}
	return UnknownIndex
}

// Batch packs texts into a tensor of Shape{seqLen} with one sample per text,
// truncating long texts and padding short ones with PadIndex.
func (v *Vocabulary) Batch(texts []string, seqLen int) (*tensor.Tensor, error) {
	return pack(texts, seqLen, func(text string, dst []float32) error {
		ids, err := v.Lookup(text)
		if err != nil {
			return err
		}
		fill(dst, PadIndex)
		for i := 0; i < len(dst) && i < len(ids); i++ {
			dst[i] = float32(ids[i])
		}
		return nil
	})
}

// Decode converts dense indices back to text. Padding is skipped; unknown
// tokens cannot be recovered and make Decode fail.
func (v *Vocabulary) Decode(indices []int) (string, error) {
	ids := make([]int32, 0, len(indices))
	for i, d := range indices {
		switch {
		case d == PadIndex:
			continue
		case d == UnknownIndex:
			return "", fmt.Errorf("tokenizer: position %d holds the unknown index", i)
		case d < 0 || d >= v.Size():
			return "", fmt.Errorf("tokenizer: position %d: index %d outside [0, %d)", i, d, v.Size())
		}
		ids = append(ids, v.tokens[d-reserved])
	}
	return v.tok.Decode(ids)
}
