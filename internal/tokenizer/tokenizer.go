package tokenizer

import (
	"fmt"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is used for models tiktoken does not know, such as the
// Gemini models served by the default gateway. Counts are then estimates.
const DefaultEncoding = "o200k_base"

// TikToken wraps tiktoken-go to implement domain.Tokenizer.
type TikToken struct {
	encoding *tiktoken.Tiktoken
	name     string
}

// NewTikToken creates a new TikToken tokenizer with the given encoding name.
// Common encodings: "cl100k_base" (GPT-4/3.5), "o200k_base" (GPT-4o).
// Returns an error if the encoding is not recognized.
func NewTikToken(encodingName string) (*TikToken, error) {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: unknown encoding %q: %w", encodingName, err)
	}
	return &TikToken{encoding: enc, name: encodingName}, nil
}

// ForModel returns the tokenizer for model. An explicit encoding wins;
// otherwise the model's own encoding is used, falling back to DefaultEncoding.
func ForModel(model, encoding string) (*TikToken, error) {
	if encoding != "" {
		return NewTikToken(encoding)
	}
	if enc, err := tiktoken.EncodingForModel(model); err == nil {
		return &TikToken{encoding: enc, name: model}, nil
	}
	return NewTikToken(DefaultEncoding)
}

// Name returns the encoding or model name the tokenizer was built from.
func (t *TikToken) Name() string {
	return t.name
}

// CountTokens returns the number of tokens in the given text.
func (t *TikToken) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	tokens := t.encoding.Encode(text, nil, nil)
	return len(tokens), nil
}
