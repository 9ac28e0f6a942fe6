// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/starford/synapse/internal/api"
	"github.com/starford/synapse/internal/chunker"
	"github.com/starford/synapse/internal/embedding"
	"github.com/starford/synapse/internal/embedding/openai"
	"github.com/starford/synapse/internal/engine"
	"github.com/starford/synapse/internal/mcpserver"
	"github.com/starford/synapse/internal/metrics"
	"github.com/starford/synapse/internal/models"
	"github.com/starford/synapse/internal/queue"
	"github.com/starford/synapse/internal/sse"
	"github.com/starford/synapse/internal/staging"
	"github.com/starford/synapse/internal/store"
	"github.com/starford/synapse/internal/store/postgres"
	"github.com/starford/synapse/internal/store/sqlite"
	"github.com/starford/synapse/internal/tokenizer"
	"github.com/starford/synapse/internal/transcript"
	"github.com/starford/synapse/internal/usage"
	"github.com/starford/synapse/internal/vault"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
	}
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_driver", cfg.Store.Driver),
		slog.String("redis_addr", cfg.Redis.Addr),
		slog.String("embedding_model", cfg.Embedding.Model),
		slog.Bool("transcripts", cfg.Transcript.Enabled()),
		slog.Bool("vault", cfg.Vault.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	st, err := openStore(ctx, &cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer st.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("init redis: %w", err)
	}

	counter, err := tokenizer.New(cfg.Chunker.Encoding)
	if err != nil {
		return fmt.Errorf("init tokenizer: %w", err)
	}

	chunkerOpts := []chunker.Option{chunker.WithBudget(cfg.Chunker.BudgetTokens)}
	if cfg.Transcript.Enabled() {
		provider := transcript.NewCached(
			transcript.NewHTTPProvider(cfg.Transcript.BaseURL, cfg.Transcript.Timeout),
			rdb, cfg.Transcript.CacheTTL, cfg.Transcript.LocalSize, logger)
		chunkerOpts = append(chunkerOpts,
			chunker.WithTranscripts(provider, chunker.NewWindowSplitter(cfg.Chunker.Encoding)))
	}
	chk := chunker.New(counter, logger, chunkerOpts...)

	provider := app.embedder
	if provider == nil {
		provider, err = openai.New(openai.Config{
			BaseURL:   cfg.Embedding.BaseURL,
			Token:     cfg.Embedding.Token,
			Model:     cfg.Embedding.Model,
			BatchSize: cfg.Embedding.BatchSize,
		})
		if err != nil {
			return fmt.Errorf("init embeddings: %w", err)
		}
	}
	gateway := embedding.NewGateway(cfg.Embedding.Model, provider, cfg.Embedding.Dimensions)

	gate := usage.NewGate(st, counter, usage.Limits(cfg.Usage.Limits), cfg.Usage.DefaultTier)

	m := metrics.NewMetrics()
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	sinks := append(engine.Sinks{m, broker}, app.sinks...)
	eng := engine.New(engine.Deps{
		Chunker:  chk,
		Embedder: gateway,
		Gate:     gate,
		Store:    st,
		Staging:  staging.New(rdb),
		Sink:     sinks,
		Logger:   logger,
	})

	src := queue.NewRedis(rdb)
	consumerOpts := []queue.Option{
		queue.WithPopTimeout(cfg.Queue.PopTimeout),
		queue.WithRetry(cfg.Queue.Backoff, cfg.Queue.MaxAttempts),
		queue.WithObserver(m),
	}
	// Create and Update record their own failures on the note; Delete and
	// Persist return store errors and are retried.
	semantics := queue.NewConsumer("semantics", src, []queue.Route{
		queue.JSON[models.CreateSemanticsJob](models.QueueCreateSemantics, false, eng.Create),
		queue.JSON[models.UpdateSemanticsJob](models.QueueUpdateSemantics, false, eng.Update),
		queue.JSON[models.DeleteSemanticsJob](models.QueueDeleteSemantics, true, eng.Delete),
	}, logger, consumerOpts...)
	persist := queue.NewConsumer("persist", src, []queue.Route{
		queue.JSON[models.PersistNoteDataJob](models.QueuePersistNoteData, true, eng.Persist),
	}, logger, consumerOpts...)
	consumers := []*queue.Consumer{semantics, persist}

	svc := api.NewService(st, src)
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", readyHandler(st, rdb))
	r.Handle("/metrics", m.Handler())

	r.Mount("/api", apiRouter)

	// MCP tools over streamable HTTP, behind the same auth as /api.
	mcpSrv := mcpserver.New(svc)
	r.With(api.AuthMiddleware(cfg.Auth.AuthEnabled(), cfg.Auth.Token)).Handle("/mcp", mcpSrv.Handler())

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)
	// runCtx ends the background loops once shutdown begins.
	runCtx, stopRun := context.WithCancel(gCtx)
	defer stopRun()

	for _, c := range consumers {
		g.Go(func() error {
			if err := c.Start(runCtx); err != nil {
				return fmt.Errorf("consumer %s: %w", c.Name(), err)
			}
			return nil
		})
	}

	if cfg.Vault.Enabled {
		g.Go(func() error {
			if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
				return fmt.Errorf("create vault dir: %w", err)
			}
			fs, err := vault.NewFS(cfg.Vault.Path)
			if err != nil {
				return fmt.Errorf("init vault: %w", err)
			}
			return vault.NewBridge(fs, st, src, cfg.Vault.UserID, logger).Run(runCtx)
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")
		stopRun()

		// Consumers finish the job in hand before returning.
		for _, c := range consumers {
			c.Stop()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		broker.Close()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

func openStore(ctx context.Context, cfg *StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case StoreDriverPostgres:
		return postgres.Open(ctx, postgres.Config{
			DSN:      cfg.DSN,
			MaxConns: cfg.MaxConns,
			Migrate:  cfg.Migrate,
		})
	default:
		return sqlite.Open(cfg.Path)
	}
}

// readyHandler reports 503 until both the store and redis answer a ping.
func readyHandler(st store.Store, rdb redis.UniversalClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{"store": "ok", "redis": "ok"}
		status := http.StatusOK
		if err := st.Ping(ctx); err != nil {
			checks["store"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		}

		state := "ok"
		if status != http.StatusOK {
			state = "unavailable"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": state, "checks": checks})
	}
}
