// Package tokenizer counts model tokens for chunk packing and usage metering.
package tokenizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// DefaultEncoding is the encoding of the default embedding model.
	DefaultEncoding = "cl100k_base"
	// EncodingWords selects the whitespace approximation.
	EncodingWords = "words"
)

// Counter counts the tokens of a text.
type Counter interface {
	CountTokens(ctx context.Context, text string) (int, error)
}

// New returns the counter for the named encoding or model. EncodingWords
// yields a Words counter that needs no encoding files.
func New(encodingOrModel string) (Counter, error) {
	if encodingOrModel == EncodingWords {
		return Words{}, nil
	}
	return NewTiktoken(encodingOrModel)
}

// Tiktoken counts tokens with a BPE encoding.
type Tiktoken struct {
	encoding string
	tke      *tiktoken.Tiktoken
}

// NewTiktoken resolves encodingOrModel first as an encoding name, then as a
// model name.
func NewTiktoken(encodingOrModel string) (*Tiktoken, error) {
	if encodingOrModel == "" {
		encodingOrModel = DefaultEncoding
	}
	tke, err := tiktoken.GetEncoding(encodingOrModel)
	if err != nil {
		tke, err = tiktoken.EncodingForModel(encodingOrModel)
		if err != nil {
			return nil, fmt.Errorf("tokenizer: load encoding %q: %w", encodingOrModel, err)
		}
	}
	return &Tiktoken{encoding: encodingOrModel, tke: tke}, nil
}

// CountTokens implements Counter.
func (t *Tiktoken) CountTokens(ctx context.Context, text string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if t.tke == nil {
		return 0, fmt.Errorf("tokenizer: encoder %s not initialized", t.encoding)
	}
	return len(t.tke.Encode(text, nil, nil)), nil
}

// Encoding returns the configured encoding or model name.
func (t *Tiktoken) Encoding() string {
	return t.encoding
}

// Words approximates tokens as whitespace-separated fields.
type Words struct{}

// CountTokens implements Counter.
func (Words) CountTokens(_ context.Context, text string) (int, error) {
	return len(strings.Fields(text)), nil
}
