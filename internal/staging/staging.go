// Package staging reads the transient note blobs written by the notes
// service before a persist job is queued.
package staging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/starford/synapse/internal/apperr"
	"github.com/starford/synapse/internal/models"
)

const keyPrefix = "Note:"

// Key returns the staging key of a note.
func Key(noteID string) string {
	return keyPrefix + noteID
}

// Store is the Redis-backed staging area.
type Store struct {
	rdb redis.UniversalClient
}

// New returns a Store using rdb.
func New(rdb redis.UniversalClient) *Store {
	return &Store{rdb: rdb}
}

// Get returns the staged note or apperr.ErrNotFound.
func (s *Store) Get(ctx context.Context, noteID string) (*models.StagedNote, error) {
	raw, err := s.rdb.Get(ctx, Key(noteID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("staging: get %s: %w", noteID, err)
	}
	var n models.StagedNote
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("staging: decode %s: %w", noteID, err)
	}
	return &n, nil
}

// Put stages a note blob. A zero ttl keeps it until deleted.
func (s *Store) Put(ctx context.Context, noteID string, n models.StagedNote, ttl time.Duration) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("staging: encode %s: %w", noteID, err)
	}
	if err := s.rdb.Set(ctx, Key(noteID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("staging: put %s: %w", noteID, err)
	}
	return nil
}

// Delete removes the staged blob. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, noteID string) error {
	if err := s.rdb.Del(ctx, Key(noteID)).Err(); err != nil {
		return fmt.Errorf("staging: delete %s: %w", noteID, err)
	}
	return nil
}
