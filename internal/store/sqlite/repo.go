package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/starford/synapse/internal/apperr"
	"github.com/starford/synapse/internal/models"
)

// InsertChunks inserts all chunks within a single transaction.
func (db *DB) InsertChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Store("insert chunks", fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO note_chunks (note_id, user_id, content, content_hash, chunk_index, total_chunks, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return apperr.Store("insert chunks", fmt.Errorf("prepare: %w", err))
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx,
			c.NoteID, c.UserID, c.Content, c.ContentHash, c.ChunkIndex, c.TotalChunks, encodeVector(c.Embedding),
		); err != nil {
			return apperr.Store("insert chunks", fmt.Errorf("chunk %s: %w", c.ContentHash, err))
		}
	}
	return apperr.Store("insert chunks", tx.Commit())
}

// DeleteChunksByNote removes every chunk of a note.
func (db *DB) DeleteChunksByNote(ctx context.Context, noteID string) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM note_chunks WHERE note_id = ?`, noteID)
	if err != nil {
		return 0, apperr.Store("delete chunks by note", err)
	}
	n, err := res.RowsAffected()
	return n, apperr.Store("delete chunks by note", err)
}

// DeleteChunksByHashes removes the chunks of a note with the given hashes.
func (db *DB) DeleteChunksByHashes(ctx context.Context, noteID string, hashes []string) (int64, error) {
	if len(hashes) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(hashes)+1)
	args = append(args, noteID)
	for _, h := range hashes {
		args = append(args, h)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(hashes)), ",")
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM note_chunks WHERE note_id = ? AND content_hash IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, apperr.Store("delete chunks by hashes", err)
	}
	n, err := res.RowsAffected()
	return n, apperr.Store("delete chunks by hashes", err)
}

// GetChunksByNote returns the chunks of a note ordered by index.
func (db *DB) GetChunksByNote(ctx context.Context, noteID string) ([]models.Chunk, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT note_id, user_id, content, content_hash, chunk_index, total_chunks
		FROM note_chunks WHERE note_id = ?
		ORDER BY chunk_index, content_hash
	`, noteID)
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
func (db *DB) GetNote(ctx context.Context, noteID string) (*models.Note, error) {
	var n models.Note
	var status, reason string
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, user_id, title, content, status, status_reason, updated_at
		FROM notes WHERE id = ?
	`, noteID).Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &status, &reason, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
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
func (db *DB) UpsertNote(ctx context.Context, n models.Note) error {
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = time.Now().UTC()
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO notes (id, user_id, title, content, status, status_reason, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id       = excluded.user_id,
			title         = excluded.title,
			content       = excluded.content,
			status        = excluded.status,
			status_reason = excluded.status_reason,
			updated_at    = excluded.updated_at
	`, n.ID, n.UserID, n.Title, n.Content, string(n.Status), string(n.StatusReason), n.UpdatedAt)
	return apperr.Store("upsert note", err)
}

// UpdateNote writes status, reason and optionally content.
func (db *DB) UpdateNote(ctx context.Context, upd models.NoteUpdate) error {
	query := `UPDATE notes SET status = ?, status_reason = ?, updated_at = ?`
	args := []any{string(upd.Status), string(upd.Reason), time.Now().UTC()}
	if upd.Content != nil {
		query += `, content = ?`
		args = append(args, *upd.Content)
	}
	query += ` WHERE id = ?`
	args = append(args, upd.NoteID)

	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return apperr.Store("update note", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Store("update note", err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// GetUsageMetrics returns the counters of a user.
func (db *DB) GetUsageMetrics(ctx context.Context, userID string) (*models.UsageMetrics, error) {
	var m models.UsageMetrics
	var tier string
	err := db.conn.QueryRowContext(ctx, `
		SELECT user_id, tier, total_embedded_tokens, embedded_tokens_limit, updated_at
		FROM usage_metrics WHERE user_id = ?
	`, userID).Scan(&m.UserID, &tier, &m.TotalEmbeddedTokens, &m.EmbeddedTokensLimit, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
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
func (db *DB) CreateUsageMetrics(ctx context.Context, m models.UsageMetrics) (*models.UsageMetrics, error) {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO usage_metrics (user_id, tier, total_embedded_tokens, embedded_tokens_limit, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`, m.UserID, string(m.Tier), m.TotalEmbeddedTokens, m.EmbeddedTokensLimit, time.Now().UTC())
	if err != nil {
		return nil, apperr.Store("create usage metrics", err)
	}
	return db.GetUsageMetrics(ctx, m.UserID)
}

// IncrementUsageMetrics adds delta to the user's total in one statement.
func (db *DB) IncrementUsageMetrics(ctx context.Context, userID string, delta int64) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE usage_metrics
		SET total_embedded_tokens = total_embedded_tokens + ?, updated_at = ?
		WHERE user_id = ?
	`, delta, time.Now().UTC(), userID)
	if err != nil {
		return apperr.Store("increment usage metrics", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Store("increment usage metrics", err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// encodeVector packs v as little-endian float32s.
func encodeVector(v []float32) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}

// ChunkEmbedding returns the stored embedding of one chunk. It is an
// inspection helper for local SQLite indexes and is not part of store.Store.
func (db *DB) ChunkEmbedding(ctx context.Context, noteID, hash string) ([]float32, error) {
	var blob []byte
	err := db.conn.QueryRowContext(ctx,
		`SELECT embedding FROM note_chunks WHERE note_id = ? AND content_hash = ?`, noteID, hash).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, apperr.Store("chunk embedding", err)
	}
	return decodeVector(blob), nil
}
