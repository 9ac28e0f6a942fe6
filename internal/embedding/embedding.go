// Package embedding is the boundary to the embedding provider.
package embedding

import (
	"context"
	"fmt"

	"github.com/starford/synapse/internal/apperr"
)

// DefaultDimensions is the vector size of the default embedding model.
const DefaultDimensions = 1536

// Provider embeds a batch of texts, one vector per input in input order.
type Provider interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Gateway checks every provider response against the batch size and the
// configured dimensionality. It never retries.
type Gateway struct {
	provider   Provider
	name       string
	dimensions int
}

// NewGateway wraps provider. dimensions <= 0 selects DefaultDimensions.
func NewGateway(name string, provider Provider, dimensions int) *Gateway {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &Gateway{provider: provider, name: name, dimensions: dimensions}
}

// Dimensions returns the expected vector length.
func (g *Gateway) Dimensions() int {
	return g.dimensions
}

// Embed returns one vector per text. An empty batch makes no provider call.
// Every failure is a *apperr.ProviderError.
func (g *Gateway) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := g.provider.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, &apperr.ProviderError{Provider: g.name, Err: err}
	}
	if len(vectors) != len(texts) {
		return nil, &apperr.ProviderError{
			Provider: g.name,
			Err:      fmt.Errorf("got %d vectors for %d texts", len(vectors), len(texts)),
		}
	}
	for i, v := range vectors {
		if len(v) != g.dimensions {
			return nil, &apperr.ProviderError{
				Provider: g.name,
				Err:      fmt.Errorf("vector %d has %d dimensions, want %d", i, len(v), g.dimensions),
			}
		}
	}
	return vectors, nil
}
