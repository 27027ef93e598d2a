package contextmgr

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter provides token counting with a tiktoken codec when one is
// available and a characters-based estimate otherwise.
type TokenCounter struct {
	codec         tokenizer.Codec
	charsPerToken int
}

// NewTokenCounter creates a token counter. All supported chat models are
// approximated with the GPT-4 encoding, which is close enough for budget
// threshold checks.
func NewTokenCounter(charsPerToken int) (*TokenCounter, error) {
	if charsPerToken <= 0 {
		charsPerToken = 4
	}
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec: %w", err)
	}
	return &TokenCounter{codec: codec, charsPerToken: charsPerToken}, nil
}

// NewEstimatingCounter creates a counter that only uses the characters
// heuristic. Used in tests and as a fallback when the codec cannot load.
func NewEstimatingCounter(charsPerToken int) *TokenCounter {
	if charsPerToken <= 0 {
		charsPerToken = 4
	}
	return &TokenCounter{charsPerToken: charsPerToken}
}

// Count returns the number of tokens in text.
func (tc *TokenCounter) Count(text string) int {
	if tc.codec == nil {
		return len(text) / tc.charsPerToken
	}
	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / tc.charsPerToken
	}
	return count
}

// Estimate returns the characters-based estimate regardless of codec
// availability. Budget accounting uses this so threshold behavior stays
// deterministic; Count is for callers that want the precise number.
func (tc *TokenCounter) Estimate(text string) int {
	return len(text) / tc.charsPerToken
}
