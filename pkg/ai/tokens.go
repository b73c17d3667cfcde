package ai

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const tokenEncoding = "o200k_base"

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

func encoding() (*tiktoken.Tiktoken, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding(tokenEncoding)
	})
	return enc, encErr
}

// CountTokens returns the number of tokens of text.
func CountTokens(text string) (int, error) {
	e, err := encoding()
	if err != nil {
		return 0, fmt.Errorf("failed to load token encoding: %w", err)
	}
	return len(e.Encode(text, nil, nil)), nil
}

// TruncateTokens cuts text down to at most maxTokens tokens. maxTokens <= 0
// returns text unchanged.
func TruncateTokens(text string, maxTokens int) (string, error) {
	if maxTokens <= 0 || text == "" {
		return text, nil
	}
	e, err := encoding()
	if err != nil {
		return "", fmt.Errorf("failed to load token encoding: %w", err)
	}

	tokens := e.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text, nil
	}
	return e.Decode(tokens[:maxTokens]), nil
}
