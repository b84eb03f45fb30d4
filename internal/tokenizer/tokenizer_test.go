package tokenizer

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/strata/internal/nn"
	"github.com/born-ml/strata/internal/tensor"
)

// wordTokenizer assigns fixed IDs to space-separated words.
type wordTokenizer struct {
	ids   map[string]int32
	words map[int32]string
}

var errUnknownWord = errors.New("unknown word")

func newWordTokenizer(words ...string) *wordTokenizer {
	w := &wordTokenizer{ids: map[string]int32{}, words: map[int32]string{}}
	for i, word := range words {
		id := int32(10 * (len(words) - i)) // reverse order on purpose
		w.ids[word] = id
		w.words[id] = word
	}
	return w
}

func (w *wordTokenizer) Encode(text string) ([]int32, error) {
	fields := strings.Fields(text)
	out := make([]int32, len(fields))
	for i, f := range fields {
		id, ok := w.ids[f]
		if !ok {
			return nil, errUnknownWord
		}
		out[i] = id
	}
	return out, nil
}

func (w *wordTokenizer) Decode(tokens []int32) (string, error) {
	words := make([]string, len(tokens))
	for i, id := range tokens {
		words[i] = w.words[id]
	}
	return strings.Join(words, " "), nil
}

func (w *wordTokenizer) VocabSize() int { return 10*len(w.ids) + 1 }

func TestIndices_PadsAndTruncates(t *testing.T) {
	tok := newWordTokenizer("a", "b", "c")

	ids, err := Indices(tok, []string{"a b c", "c"}, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2}, ids.Shape())
	assert.Equal(t, []float32{30, 20, 10, 0}, ids.Data())
}

func TestIndices_Errors(t *testing.T) {
	tok := newWordTokenizer("a")

	_, err := Indices(tok, []string{"a"}, 0, 0)
	assert.ErrorIs(t, err, ErrSequenceLength)

	_, err = Indices(tok, nil, 4, 0)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	_, err = Indices(tok, []string{"a", "zzz"}, 4, 0)
	assert.ErrorIs(t, err, errUnknownWord)
	assert.Contains(t, err.Error(), "text 1")
}

func TestVocabulary_DenseIndices(t *testing.T) {
	tok := newWordTokenizer("the", "cat", "sat", "dog")

	vocab, err := NewVocabulary(tok, []string{"the cat sat", "the cat"})
	require.NoError(t, err)
	assert.Equal(t, 5, vocab.Size(), "3 words plus pad and unknown")

	// Ascending token ID: sat=20, cat=30, the=40.
	got, err := vocab.Lookup("the sat cat dog")
	require.NoError(t, err)
	assert.Equal(t, []int{4, 2, 3, UnknownIndex}, got)

	batch, err := vocab.Batch([]string{"cat", "the sat"}, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.BatchCount())
	assert.Equal(t, []float32{3, 0, 0, 4, 2, 0}, batch.Data())

	text, err := vocab.Decode([]int{4, 3, PadIndex})
	require.NoError(t, err)
	assert.Equal(t, "the cat", text)

	_, err = vocab.Decode([]int{UnknownIndex})
	assert.Error(t, err)
	_, err = vocab.Decode([]int{9})
	assert.Error(t, err)
}

func TestVocabulary_CorpusError(t *testing.T) {
	_, err := NewVocabulary(newWordTokenizer("a"), []string{"a", "b"})
	assert.ErrorIs(t, err, errUnknownWord)
}

func TestVocabulary_FeedsEmbedID(t *testing.T) {
	tok := newWordTokenizer("x", "y")
	vocab, err := NewVocabulary(tok, []string{"x y"})
	require.NoError(t, err)

	embed, err := nn.NewEmbedID(nn.EmbedIDConfig{
		InputCount:  vocab.Size(),
		OutputCount: 2,
		InitialW:    []float32{0, 0, 9, 9, 1, 1, 2, 2},
	})
	require.NoError(t, err)

	ids, err := vocab.Batch([]string{"y x"}, 3)
	require.NoError(t, err)

	out, _, err := embed.Forward(ids)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 2}, out.Shape())
	// y=10 -> 2, x=20 -> 3, then padding.
	assert.Equal(t, []float32{1, 1, 2, 2, 0, 0}, out.Data())
}
