// Package store defines the persistence boundary of the worker. Drivers live
// in the sqlite and postgres subpackages.
package store

import (
	"context"

	"github.com/starford/synapse/internal/models"
)

// ChunkStore persists note chunks keyed by (note id, content hash).
type ChunkStore interface {
	// InsertChunks stores all chunks in one transaction.
	InsertChunks(ctx context.Context, chunks []models.Chunk) error
	DeleteChunksByNote(ctx context.Context, noteID string) (int64, error)
	DeleteChunksByHashes(ctx context.Context, noteID string, hashes []string) (int64, error)
	// GetChunksByNote returns chunks ordered by ChunkIndex without embeddings.
	GetChunksByNote(ctx context.Context, noteID string) ([]models.Chunk, error)
}

// NoteStore reads and updates the note records.
type NoteStore interface {
	GetNote(ctx context.Context, noteID string) (*models.Note, error)
	UpsertNote(ctx context.Context, note models.Note) error
	// UpdateNote returns apperr.ErrNotFound when the note does not exist.
	UpdateNote(ctx context.Context, upd models.NoteUpdate) error
}

// UsageStore keeps the per-user embedded token counters.
type UsageStore interface {
	GetUsageMetrics(ctx context.Context, userID string) (*models.UsageMetrics, error)
	// CreateUsageMetrics inserts m unless a row exists and returns the stored row.
	CreateUsageMetrics(ctx context.Context, m models.UsageMetrics) (*models.UsageMetrics, error)
	// IncrementUsageMetrics atomically adds delta to the user's total.
	IncrementUsageMetrics(ctx context.Context, userID string, delta int64) error
}

// Store is the full persistence boundary.
type Store interface {
	ChunkStore
	NoteStore
	UsageStore
	Ping(ctx context.Context) error
	Close() error
}
