package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/starford/synapse/internal/apperr"
)

const (
	defaultPopTimeout  = time.Second
	defaultBackoff     = 500 * time.Millisecond
	defaultMaxAttempts = 5
)

// Outcome is the final result of one message.
type Outcome string

const (
	OutcomeDone       Outcome = "done"
	OutcomeDeadLetter Outcome = "dead_letter"
)

// Observer is told about every finished message.
type Observer interface {
	ObserveJob(queue string, outcome Outcome, attempts int, elapsed time.Duration)
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithPopTimeout sets how long one pop may block.
func WithPopTimeout(d time.Duration) Option {
	return func(c *Consumer) {
		if d > 0 {
			c.popTimeout = d
		}
	}
}

// WithRetry sets the exponential backoff base and the attempt limit for
// retryable routes.
func WithRetry(base time.Duration, maxAttempts int) Option {
	return func(c *Consumer) {
		if base > 0 {
			c.backoff = base
		}
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
	}
}

// WithObserver registers an Observer.
func WithObserver(o Observer) Option {
	return func(c *Consumer) { c.observer = o }
}

// Consumer pops messages from a set of queues and handles them one at a time.
type Consumer struct {
	name        string
	source      Source
	routes      map[string]Route
	queues      []string
	popTimeout  time.Duration
	backoff     time.Duration
	maxAttempts int
	observer    Observer
	logger      *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewConsumer creates a consumer serving routes.
func NewConsumer(name string, source Source, routes []Route, logger *slog.Logger, opts ...Option) *Consumer {
	c := &Consumer{
		name:        name,
		source:      source,
		routes:      make(map[string]Route, len(routes)),
		popTimeout:  defaultPopTimeout,
		backoff:     defaultBackoff,
		maxAttempts: defaultMaxAttempts,
		logger:      logger.With("component", "consumer", "consumer", name),
	}
	for _, r := range routes {
		c.routes[r.Queue] = r
		c.queues = append(c.queues, r.Queue)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the consumer name.
func (c *Consumer) Name() string { return c.name }

// Start runs the consume loop until ctx is done or Stop is called. Jobs run
// on a context that is never cancelled, so a started job always finishes.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.done != nil {
		c.mu.Unlock()
		return errors.New("queue: consumer already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	defer close(done)
	defer cancel()

	jobCtx := context.WithoutCancel(ctx)
	c.logger.Info("consumer started", slog.Any("queues", c.queues))
	for loopCtx.Err() == nil {
		msg, err := c.source.Pop(loopCtx, c.queues, c.popTimeout)
		if err != nil {
			if loopCtx.Err() != nil {
				break
			}
			c.logger.Error("pop failed", slog.String("error", err.Error()))
			sleep(loopCtx, c.backoff)
			continue
		}
		if msg == nil {
			continue
		}
		c.process(jobCtx, msg)
	}
	c.logger.Info("consumer stopped")
	return nil
}

// Stop ends the loop after the current job and waits for it.
func (c *Consumer) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *Consumer) process(ctx context.Context, msg *Message) {
	start := time.Now()
	route, ok := c.routes[msg.Queue]
	if !ok {
		c.logger.Error("no route for queue", slog.String("queue", msg.Queue))
		c.deadLetter(ctx, msg, 0, start)
		return
	}

	attempts := 0
	backoff := retry.WithMaxRetries(uint64(c.maxAttempts-1), retry.NewExponential(c.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		err := route.Handle(ctx, msg.Payload)
		if err == nil {
			return nil
		}
		if !route.Retry || apperr.IsParse(err) {
			return err
		}
		c.logger.Warn("job failed, retrying",
			slog.String("queue", msg.Queue),
			slog.Int("attempt", attempts),
			slog.String("error", err.Error()))
		return retry.RetryableError(err)
	})
	if err != nil {
		c.logger.Error("job failed",
			slog.String("queue", msg.Queue),
			slog.Int("attempts", attempts),
			slog.String("error", err.Error()))
		c.deadLetter(ctx, msg, attempts, start)
		return
	}
	c.observe(msg.Queue, OutcomeDone, attempts, start)
}

func (c *Consumer) deadLetter(ctx context.Context, msg *Message, attempts int, start time.Time) {
	if err := c.source.Push(ctx, msg.Queue+DeadSuffix, msg.Payload); err != nil {
		c.logger.Error("dead-letter push failed",
			slog.String("queue", msg.Queue), slog.String("error", err.Error()))
	}
	c.observe(msg.Queue, OutcomeDeadLetter, attempts, start)
}

func (c *Consumer) observe(queue string, outcome Outcome, attempts int, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveJob(queue, outcome, attempts, time.Since(start))
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
