// Package tokenizer turns text into index tensors for embedding layers.
//
// Text is split into token IDs by a Tokenizer (TikToken wraps the OpenAI BPE
// encodings). A Vocabulary then compacts the IDs seen in a corpus into a dense
// range so that an nn.EmbedID table only needs one row per token actually used,
// and packs batches of texts into fixed-length index tensors.
//
// Example usage:
//
//	tok, err := tokenizer.NewTikToken("cl100k_base")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	vocab, err := tokenizer.NewVocabulary(tok, corpus)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	embed, _ := nn.NewEmbedID(nn.EmbedIDConfig{
//	    InputCount:  vocab.Size(),
//	    OutputCount: 64,
//	})
//
//	ids, err := vocab.Batch([]string{"Hello, world!", "Hi"}, 16)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	vectors, ctx, err := embed.Forward(ids)
package tokenizer
