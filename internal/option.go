package internal

import (
	"log/slog"

	"github.com/starford/synapse/internal/embedding"
	"github.com/starford/synapse/internal/engine"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config   *Config
	logger   *slog.Logger
	embedder embedding.Provider
	sinks    []engine.Sink
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogger replaces the JSON stdout logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *application) {
		a.logger = logger
	}
}

// WithEmbeddingProvider replaces the OpenAI-compatible embedding client.
func WithEmbeddingProvider(p embedding.Provider) Option {
	return func(a *application) {
		a.embedder = p
	}
}

// WithSink adds a receiver for engine events.
func WithSink(s engine.Sink) Option {
	return func(a *application) {
		a.sinks = append(a.sinks, s)
	}
}
