// Package tokens provides BPE token counting for chunk and job accounting.
package tokens

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

const fallbackEncoding = "cl100k_base"

// Counter counts tokens with the encoding of a specific model.
type Counter struct {
	enc *tiktoken.Tiktoken
}

// NewCounter builds a counter for the given model, falling back to the
// cl100k_base encoding for models tiktoken does not know.
func NewCounter(model string) (*Counter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, fmt.Errorf("tokens: load encoding: %w", err)
		}
	}
	return &Counter{enc: enc}, nil
}

// Count returns the number of tokens in the text.
func (c *Counter) Count(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	return len(c.enc.Encode(text, nil, nil)), nil
}
