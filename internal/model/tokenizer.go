// internal/model/tokenizer.go
package model

import (
	"fmt"

	"github.com/daulet/tokenizers"

	"walign-core/bitext"
)

// Tokenizer adapts a HuggingFace tokenizer.json to the decoder's per-word
// subword interface.
type Tokenizer struct {
	tk *tokenizers.Tokenizer
}

// LoadTokenizer loads a tokenizer.json file.
func LoadTokenizer(path string) (*Tokenizer, error) {
	tk, err := tokenizers.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("model: load tokenizer %s: %w", path, err)
	}
	return &Tokenizer{tk: tk}, nil
}

// TokenizeWord encodes one surface word without special tokens.
func (t *Tokenizer) TokenizeWord(word string) []int64 {
	ids, _ := t.tk.Encode(word, false)
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

// Specials derives the framing ids by encoding the empty string with special
// tokens enabled, which yields exactly [CLS, SEP] for BERT-family
// vocabularies. Padding id 0 follows the same convention.
func (t *Tokenizer) Specials(maxLen int) bitext.Specials {
	sp := bitext.Specials{PAD: 0, MaxLen: maxLen}
	ids, _ := t.tk.Encode("", true)
	if len(ids) >= 2 {
		sp.CLS = int64(ids[0])
		sp.SEP = int64(ids[len(ids)-1])
	}
	return sp
}

func (t *Tokenizer) Close() error { return t.tk.Close() }
