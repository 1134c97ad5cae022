package llm

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts tokens for prompt budgeting. The arbiter prompt folds
// in the whole iteration history, so the core trims it by token count
// rather than by bytes.
type Tokenizer interface {
	CountTokens(text string) int
}

// TiktokenTokenizer counts with a tiktoken encoding, falling back to a
// bytes/4 estimate when the encoding cannot be initialized (tiktoken may
// download encoding data on first use).
type TiktokenTokenizer struct {
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
}

// NewTiktokenTokenizer creates a tokenizer for the given encoding name.
// Empty defaults to cl100k_base, which approximates well across vendors.
func NewTiktokenTokenizer(encoding string) *TiktokenTokenizer {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &TiktokenTokenizer{encoding: encoding}
}

func (t *TiktokenTokenizer) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// CountTokens implements Tokenizer.
func (t *TiktokenTokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if err := t.init(); err != nil {
		return estimateTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// EstimateTokenizer is a dependency-free fallback used in tests and when
// no encoding data is available.
type EstimateTokenizer struct{}

// CountTokens implements Tokenizer.
func (EstimateTokenizer) CountTokens(text string) int {
	return estimateTokens(text)
}

func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}
