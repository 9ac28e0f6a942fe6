package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/starford/synapse/internal/apperr"
	"github.com/starford/synapse/internal/models"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var chunkColumns = []string{
	"note_id", "user_id", "content", "content_hash", "chunk_index", "total_chunks",
}

var usageColumns = []string{
	"user_id", "tier", "total_embedded_tokens", "embedded_tokens_limit", "updated_at",
}

// InsertChunks inserts all chunks with one statement inside a transaction.
func (s *Store) InsertChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	ib := psql.Insert("note_chunks").Columns(append(chunkColumns, "embedding")...)
	for _, c := range chunks {
		var emb any
		if c.Embedding != nil {
			emb = pgvector.NewVector(c.Embedding)
		}
		ib = ib.Values(c.NoteID, c.UserID, c.Content, c.ContentHash, c.ChunkIndex, c.TotalChunks, emb)
	}
	query, args, err := ib.ToSql()
	if err != nil {
		return fmt.Errorf("postgres: build insert chunks: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return apperr.Store("insert chunks", fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort on failure path

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return apperr.Store("insert chunks", err)
	}
	return apperr.Store("insert chunks", tx.Commit(ctx))
}

// DeleteChunksByNote removes every chunk of a note.
func (s *Store) DeleteChunksByNote(ctx context.Context, noteID string) (int64, error) {
	query, args, err := psql.Delete("note_chunks").Where(squirrel.Eq{"note_id": noteID}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("postgres: build delete chunks: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, apperr.Store("delete chunks by note", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteChunksByHashes removes the chunks of a note with the given hashes.
func (s *Store) DeleteChunksByHashes(ctx context.Context, noteID string, hashes []string) (int64, error) {
	if len(hashes) == 0 {
		return 0, nil
	}
	query, args, err := psql.Delete("note_chunks").
		Where(squirrel.And{
			squirrel.Eq{"note_id": noteID},
			squirrel.Eq{"content_hash": hashes},
		}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("postgres: build delete chunks: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, apperr.Store("delete chunks by hashes", err)
	}
	return tag.RowsAffected(), nil
}

// GetChunksByNote returns the chunks of a note ordered by index.
func (s *Store) GetChunksByNote(ctx context.Context, noteID string) ([]models.Chunk, error) {
	query, args, err := psql.Select(chunkColumns...).
		From("note_chunks").
		Where(squirrel.Eq{"note_id": noteID}).
		OrderBy("chunk_index", "content_hash").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: build get chunks: %w", err)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Store("get chunks", err)
	}
	defer rows.Close()

	var out []models.Chunk
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(&c.NoteID, &c.UserID, &c.Content, &c.ContentHash, &c.ChunkIndex, &c.TotalChunks); err != nil {
			return nil, apperr.Store("get chunks", err)
		}
		out = append(out, c)
	}
	return out, apperr.Store("get chunks", rows.Err())
}

// GetNote returns a note by id.
func (s *Store) GetNote(ctx context.Context, noteID string) (*models.Note, error) {
	query, args, err := psql.
		Select("id", "user_id", "title", "content", "status", "status_reason", "updated_at").
		From("notes").
		Where(squirrel.Eq{"id": noteID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: build get note: %w", err)
	}
	var n models.Note
	var status, reason string
	err = s.db.QueryRow(ctx, query, args...).
		Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &status, &reason, &n.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, apperr.Store("get note", err)
	}
	n.Status = models.NoteStatus(status)
	n.StatusReason = models.StatusReason(reason)
	return &n, nil
}

// UpsertNote inserts or replaces a note.
func (s *Store) UpsertNote(ctx context.Context, n models.Note) error {
	query, args, err := psql.Insert("notes").
		Columns("id", "user_id", "title", "content", "status", "status_reason").
		Values(n.ID, n.UserID, n.Title, n.Content, string(n.Status), string(n.StatusReason)).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
    user_id = EXCLUDED.user_id,
    title = EXCLUDED.title,
    content = EXCLUDED.content,
    status = EXCLUDED.status,
    status_reason = EXCLUDED.status_reason,
    updated_at = now()`).
		ToSql()
	if err != nil {
		return fmt.Errorf("postgres: build upsert note: %w", err)
	}
	_, err = s.db.Exec(ctx, query, args...)
	return apperr.Store("upsert note", err)
}

// UpdateNote writes status, reason and optionally content.
func (s *Store) UpdateNote(ctx context.Context, upd models.NoteUpdate) error {
	ub := psql.Update("notes").
		Set("status", string(upd.Status)).
		Set("status_reason", string(upd.Reason))
	if upd.Content != nil {
		ub = ub.Set("content", *upd.Content)
	}
	query, args, err := ub.
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": upd.NoteID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("postgres: build update note: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return apperr.Store("update note", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// GetUsageMetrics returns the counters of a user.
func (s *Store) GetUsageMetrics(ctx context.Context, userID string) (*models.UsageMetrics, error) {
	query, args, err := psql.Select(usageColumns...).
		From("usage_metrics").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: build get usage: %w", err)
	}
	var m models.UsageMetrics
	var tier string
	err = s.db.QueryRow(ctx, query, args...).
		Scan(&m.UserID, &tier, &m.TotalEmbeddedTokens, &m.EmbeddedTokensLimit, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, apperr.Store("get usage metrics", err)
	}
	m.Tier = models.SubscriptionTier(tier)
	return &m, nil
}

// CreateUsageMetrics inserts m if the user has no row yet, then returns the
// stored row.
func (s *Store) CreateUsageMetrics(ctx context.Context, m models.UsageMetrics) (*models.UsageMetrics, error) {
	query, args, err := psql.Insert("usage_metrics").
		Columns("user_id", "tier", "total_embedded_tokens", "embedded_tokens_limit").
		Values(m.UserID, string(m.Tier), m.TotalEmbeddedTokens, m.EmbeddedTokensLimit).
		Suffix("ON CONFLICT (user_id) DO NOTHING").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: build create usage: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return nil, apperr.Store("create usage metrics", err)
	}
	return s.GetUsageMetrics(ctx, m.UserID)
}

// IncrementUsageMetrics adds delta to the user's total in one statement.
func (s *Store) IncrementUsageMetrics(ctx context.Context, userID string, delta int64) error {
	query, args, err := psql.Update("usage_metrics").
		Set("total_embedded_tokens", squirrel.Expr("total_embedded_tokens + ?", delta)).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("postgres: build increment usage: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return apperr.Store("increment usage metrics", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
