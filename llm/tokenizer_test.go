package llm

import (
	"strings"
	"testing"
)

func TestEstimateTokenizer_Counting(t *testing.T) {
	t.Parallel()

	tok := EstimateTokenizer{}

	if got := tok.CountTokens(""); got != 0 {
		t.Fatalf("expected 0 tokens for empty, got %d", got)
	}
	if got := tok.CountTokens("a"); got != 1 {
		t.Fatalf("expected minimum 1 token for non-empty, got %d", got)
	}

	long := strings.Repeat("word ", 100)
	short := "word"
	if tok.CountTokens(long) <= tok.CountTokens(short) {
		t.Fatal("expected longer text to count more tokens")
	}
}

func TestTiktokenTokenizer_FallsBackGracefully(t *testing.T) {
	t.Parallel()

	// Unknown encoding cannot initialize; CountTokens must still return a
	// positive estimate instead of failing.
	tok := NewTiktokenTokenizer("no-such-encoding")
	if got := tok.CountTokens("hello world"); got <= 0 {
		t.Fatalf("expected positive token count, got %d", got)
	}
	if got := tok.CountTokens(""); got != 0 {
		t.Fatalf("expected 0 for empty, got %d", got)
	}
}
