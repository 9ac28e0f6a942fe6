package usage

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/synapse/internal/models"
	"github.com/starford/synapse/internal/store/sqlite"
	"github.com/starford/synapse/internal/tokenizer"
)

var limits = Limits{
	models.TierBasic:    10,
	models.TierAdvanced: 100,
	models.TierElite:    1000,
}

func newGate(t *testing.T) (*Gate, *sqlite.DB) {
	t.Helper()
	f, err := os.CreateTemp("", "synapse-usage-*.db")
	require.NoError(t, err)
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })
	db, err := sqlite.Open(f.Name())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewGate(db, tokenizer.Words{}, limits, models.TierBasic), db
}

func TestCheckLimit_CreatesMetrics(t *testing.T) {
	g, db := newGate(t)
	ctx := context.Background()

	ok, err := g.CheckLimit(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	m, err := db.GetUsageMetrics(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.TierBasic, m.Tier)
	assert.Equal(t, int64(10), m.EmbeddedTokensLimit)
}

func TestCheckLimit_Exhausted(t *testing.T) {
	g, _ := newGate(t)
	ctx := context.Background()

	require.NoError(t, g.AdjustUsage(ctx, "u1", 9))
	ok, err := g.CheckLimit(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, g.AdjustUsage(ctx, "u1", 1))
	ok, err = g.CheckLimit(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, g.AdjustUsage(ctx, "u1", -4))
	ok, err = g.CheckLimit(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
}

type countingStore struct {
	*sqlite.DB
	increments int
}

func (c *countingStore) IncrementUsageMetrics(ctx context.Context, userID string, delta int64) error {
	c.increments++
	return c.DB.IncrementUsageMetrics(ctx, userID, delta)
}

func TestAdjustUsage_ZeroDeltaSkipsStore(t *testing.T) {
	_, db := newGate(t)
	cs := &countingStore{DB: db}
	g := NewGate(cs, tokenizer.Words{}, limits, models.TierBasic)

	require.NoError(t, g.AdjustUsage(context.Background(), "u1", 0))
	assert.Zero(t, cs.increments)
}

type failingCounter struct{}

func (failingCounter) CountTokens(context.Context, string) (int, error) {
	return 0, errors.New("no encoder")
}

func TestEstimate(t *testing.T) {
	g, _ := newGate(t)
	n, err := g.Estimate(context.Background(), "one two", "three")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	g.counter = failingCounter{}
	_, err = g.Estimate(context.Background(), "x")
	assert.Error(t, err)
}
