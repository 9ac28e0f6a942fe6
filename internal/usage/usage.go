// Package usage meters embedded tokens against per-user tier limits.
package usage

import (
	"context"
	"errors"
	"fmt"

	"github.com/starford/synapse/internal/apperr"
	"github.com/starford/synapse/internal/models"
	"github.com/starford/synapse/internal/store"
	"github.com/starford/synapse/internal/tokenizer"
)

// Limits maps each tier to its embedded token budget.
type Limits map[models.SubscriptionTier]int64

// Gate decides whether a user may embed more tokens and records usage.
type Gate struct {
	store       store.UsageStore
	counter     tokenizer.Counter
	limits      Limits
	defaultTier models.SubscriptionTier
}

// NewGate creates a Gate. New users get defaultTier.
func NewGate(s store.UsageStore, counter tokenizer.Counter, limits Limits, defaultTier models.SubscriptionTier) *Gate {
	return &Gate{store: s, counter: counter, limits: limits, defaultTier: defaultTier}
}

// Metrics returns the user's counters, creating them on first use.
func (g *Gate) Metrics(ctx context.Context, userID string) (*models.UsageMetrics, error) {
	m, err := g.store.GetUsageMetrics(ctx, userID)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("usage: get metrics: %w", err)
	}
	m, err = g.store.CreateUsageMetrics(ctx, models.UsageMetrics{
		UserID:              userID,
		Tier:                g.defaultTier,
		EmbeddedTokensLimit: g.limits[g.defaultTier],
	})
	if err != nil {
		return nil, fmt.Errorf("usage: create metrics: %w", err)
	}
	return m, nil
}

// CheckLimit reports whether the user is below their limit.
func (g *Gate) CheckLimit(ctx context.Context, userID string) (bool, error) {
	m, err := g.Metrics(ctx, userID)
	if err != nil {
		return false, err
	}
	return !m.Exhausted(), nil
}

// AdjustUsage adds delta tokens to the user's total. A zero delta is a no-op.
func (g *Gate) AdjustUsage(ctx context.Context, userID string, delta int64) error {
	if delta == 0 {
		return nil
	}
	err := g.store.IncrementUsageMetrics(ctx, userID, delta)
	if errors.Is(err, apperr.ErrNotFound) {
		if _, err = g.Metrics(ctx, userID); err != nil {
			return err
		}
		err = g.store.IncrementUsageMetrics(ctx, userID, delta)
	}
	if err != nil {
		return fmt.Errorf("usage: increment: %w", err)
	}
	return nil
}

// Estimate sums the token counts of texts.
func (g *Gate) Estimate(ctx context.Context, texts ...string) (int64, error) {
	var total int64
	for _, t := range texts {
		n, err := g.counter.CountTokens(ctx, t)
		if err != nil {
			return 0, fmt.Errorf("usage: count tokens: %w", err)
		}
		total += int64(n)
	}
	return total, nil
}
