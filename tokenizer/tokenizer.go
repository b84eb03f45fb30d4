// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tokenizer turns text into index tensors for nn.EmbedID.
//
// Example usage:
//
//	import "github.com/born-ml/strata/tokenizer"
//
//	tok, err := tokenizer.NewTikToken("cl100k_base")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	vocab, err := tokenizer.NewVocabulary(tok, corpus)
//	ids, err := vocab.Batch(texts, 32)
package tokenizer

import (
	"github.com/born-ml/strata/internal/tokenizer"
	"github.com/born-ml/strata/tensor"
)

// Tokenizer is the core interface for text tokenization.
type Tokenizer = tokenizer.Tokenizer

// TikToken wraps the OpenAI BPE encodings.
type TikToken = tokenizer.TikToken

// Vocabulary compacts the token IDs of a corpus into dense indices.
type Vocabulary = tokenizer.Vocabulary

// Reserved dense indices of a Vocabulary.
const (
	PadIndex     = tokenizer.PadIndex
	UnknownIndex = tokenizer.UnknownIndex
)

// NewTikToken creates a tokenizer for an encoding such as "cl100k_base".
func NewTikToken(encodingName string) (*TikToken, error) {
	return tokenizer.NewTikToken(encodingName)
}

// NewTikTokenForModel creates a tokenizer for a model such as "gpt-4".
func NewTikTokenForModel(modelName string) (*TikToken, error) {
	return tokenizer.NewTikTokenForModel(modelName)
}

// NewVocabulary collects the token IDs that occur in corpus.
func NewVocabulary(tok Tokenizer, corpus []string) (*Vocabulary, error) {
	return tokenizer.NewVocabulary(tok, corpus)
}

// Indices packs raw token IDs of texts into a [seqLen] x len(texts) tensor.
func Indices(tok Tokenizer, texts []string, seqLen int, pad int32) (*tensor.Tensor, error) {
	return tokenizer.Indices(tok, texts, seqLen, pad)
}
