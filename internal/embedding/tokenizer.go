package embedding

import (
	"fmt"
	"strings"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// CLIP special token IDs.
const (
	clipStartToken = 49406 // <|startoftext|>
	clipEndToken   = 49407 // <|endoftext|>
	clipVocabSize  = 49408
)

// Tokenizer produces fixed-length token IDs and attention mask for the CLIP text encoder.
type Tokenizer interface {
	Tokenize(text string, contextLength int) (inputIDs, attentionMask []int64, err error)
}

// HFTokenizer wraps a Hugging Face tokenizer.json (CLIP byte-level BPE).
type HFTokenizer struct {
	tk *tokenizer.Tokenizer
}

// NewHFTokenizer loads the tokenizer definition at path.
func NewHFTokenizer(path string) (*HFTokenizer, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer %s: %w", path, err)
	}
	return &HFTokenizer{tk: tk}, nil
}

// Tokenize encodes text with special tokens, truncates to contextLength
// keeping the end token, and zero-pads the rest.
func (t *HFTokenizer) Tokenize(text string, contextLength int) ([]int64, []int64, error) {
	enc, err := t.tk.EncodeSingle(strings.ToLower(text), true)
	if err != nil {
		return nil, nil, fmt.Errorf("tokenize: %w", err)
	}
	ids := enc.Ids
	if len(ids) == 0 || ids[0] != clipStartToken {
		ids = append([]int{clipStartToken}, ids...)
	}
	if ids[len(ids)-1] != clipEndToken {
		ids = append(ids, clipEndToken)
	}
	return pack(ids, contextLength), maskFor(ids, contextLength), nil
}

// SimpleTokenizer is a word-split tokenizer with hash-based token IDs, used
// when no tokenizer.json is available. Vectors it yields are only comparable
// with other SimpleTokenizer output.
type SimpleTokenizer struct{}

// Tokenize splits text into lowercase words and produces padded token IDs up to contextLength.
func (t *SimpleTokenizer) Tokenize(text string, contextLength int) ([]int64, []int64, error) {
	words := SplitWords(strings.ToLower(text))
	ids := make([]int, 0, len(words)+2)
	ids = append(ids, clipStartToken)
	for _, word := range words {
		// Stay clear of the special tokens at the top of the vocabulary.
		ids = append(ids, HashString(word)%(clipVocabSize-2))
	}
	ids = append(ids, clipEndToken)
	return pack(ids, contextLength), maskFor(ids, contextLength), nil
}

func pack(ids []int, contextLength int) []int64 {
	if contextLength <= 0 {
		contextLength = 77
	}
	out := make([]int64, contextLength)
	if len(ids) > contextLength {
		ids = append(ids[:contextLength-1:contextLength-1], clipEndToken)
	}
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

func maskFor(ids []int, contextLength int) []int64 {
	if contextLength <= 0 {
		contextLength = 77
	}
	mask := make([]int64, contextLength)
	n := len(ids)
	if n > contextLength {
		n = contextLength
	}
	for i := 0; i < n; i++ {
		mask[i] = 1
	}
	return mask
}

// SplitWords splits text on whitespace and returns non-empty words.
func SplitWords(text string) []string {
	return strings.Fields(text)
}

// HashString returns a deterministic non-negative hash.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	if h < 0 { // math.MinInt
		h = 0
	}
	return h
}
