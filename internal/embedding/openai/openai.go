// Package openai adapts an OpenAI-compatible embeddings API to embedding.Provider.
package openai

import (
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/starford/synapse/internal/embedding"
)

// Config selects the endpoint and model.
type Config struct {
	BaseURL   string
	Token     string
	Model     string
	BatchSize int
}

// New returns a provider backed by langchaingo's OpenAI client.
func New(cfg Config) (embedding.Provider, error) {
	if cfg.Model == "" {
		return nil, errors.New("openai: embedding model is required")
	}
	opts := []openai.Option{openai.WithEmbeddingModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	token := cfg.Token
	if token == "" {
		// local OpenAI-compatible servers accept any token
		token = "none"
	}
	opts = append(opts, openai.WithToken(token))

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("openai: new client: %w", err)
	}

	embOpts := []embeddings.Option{embeddings.WithStripNewLines(false)}
	if cfg.BatchSize > 0 {
		embOpts = append(embOpts, embeddings.WithBatchSize(cfg.BatchSize))
	}
	embedder, err := embeddings.NewEmbedder(client, embOpts...)
	if err != nil {
		return nil, fmt.Errorf("openai: new embedder: %w", err)
	}
	return embedder, nil
}
