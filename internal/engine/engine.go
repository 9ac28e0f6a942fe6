// Package engine reconciles a note's persisted chunks with its current
// markdown and keeps the per-user token usage in step.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/starford/synapse/internal/apperr"
	"github.com/starford/synapse/internal/models"
	"github.com/starford/synapse/internal/store"
)

// Chunker splits markdown into chunk texts.
type Chunker interface {
	Chunk(ctx context.Context, markdown string) ([]string, error)
}

// Embedder returns one vector per text, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Gate meters embedded tokens.
type Gate interface {
	CheckLimit(ctx context.Context, userID string) (bool, error)
	AdjustUsage(ctx context.Context, userID string, delta int64) error
	Estimate(ctx context.Context, texts ...string) (int64, error)
}

// Staging holds note blobs waiting to be persisted.
type Staging interface {
	Get(ctx context.Context, noteID string) (*models.StagedNote, error)
	Delete(ctx context.Context, noteID string) error
}

// Repository is the part of the store the engine writes to.
type Repository interface {
	store.ChunkStore
	store.NoteStore
}

// Deps are the collaborators of an Engine. Sink and Logger are optional.
type Deps struct {
	Chunker  Chunker
	Embedder Embedder
	Gate     Gate
	Store    Repository
	Staging  Staging
	Sink     Sink
	Logger   *slog.Logger
}

// Engine runs the Create, Update, Delete and Persist flows.
type Engine struct {
	chunker  Chunker
	embedder Embedder
	gate     Gate
	store    Repository
	staging  Staging
	sink     Sink
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an Engine.
func New(d Deps) *Engine {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := d.Sink
	if sink == nil {
		sink = Sinks(nil)
	}
	return &Engine{
		chunker:  d.Chunker,
		embedder: d.Embedder,
		gate:     d.Gate,
		store:    d.Store,
		staging:  d.Staging,
		sink:     sink,
		logger:   logger.With("component", "engine"),
		now:      time.Now,
	}
}

// run tracks one flow: its event and start time.
type run struct {
	ev    Event
	start time.Time
}

func (e *Engine) begin(kind Kind, noteID, userID string) *run {
	return &run{
		ev:    Event{Kind: kind, NoteID: noteID, UserID: userID},
		start: e.now(),
	}
}

func (e *Engine) publish(r *run, status models.NoteStatus, reason models.StatusReason) {
	ev := r.ev
	ev.Status = status
	ev.Reason = reason
	ev.At = e.now()
	ev.Elapsed = ev.At.Sub(r.start)
	if ev.Err != nil {
		ev.Error = ev.Err.Error()
	}
	e.sink.Publish(ev)
}

// setStatus writes the note status and publishes the transition. A note that
// no longer exists is logged and skipped.
func (e *Engine) setStatus(ctx context.Context, r *run, status models.NoteStatus, reason models.StatusReason) error {
	err := e.store.UpdateNote(ctx, models.NoteUpdate{NoteID: r.ev.NoteID, Status: status, Reason: reason})
	if errors.Is(err, apperr.ErrNotFound) {
		e.logger.Warn("note not found for status update",
			slog.String("note_id", r.ev.NoteID), slog.String("status", string(status)))
		err = nil
	}
	if err != nil {
		return err
	}
	e.publish(r, status, reason)
	return nil
}

// fail records a terminal failure. Errors writing it are only logged.
func (e *Engine) fail(ctx context.Context, r *run, reason models.StatusReason, cause error) {
	if cause != nil {
		r.ev.Err = cause
		e.logger.Error("indexing failed",
			slog.String("kind", string(r.ev.Kind)),
			slog.String("note_id", r.ev.NoteID),
			slog.String("error", cause.Error()))
	}
	if err := e.setStatus(ctx, r, models.StatusFailedToMemorize, reason); err != nil {
		e.logger.Error("write failure status",
			slog.String("note_id", r.ev.NoteID), slog.String("error", err.Error()))
	}
}

// adjust applies a usage delta and reports it as a usage event.
// Failures are logged and dropped.
func (e *Engine) adjust(ctx context.Context, r *run, userID string, delta int64) {
	if delta == 0 {
		return
	}
	if err := e.gate.AdjustUsage(ctx, userID, delta); err != nil {
		e.logger.Warn("usage adjustment failed",
			slog.String("user_id", userID),
			slog.Int64("delta", delta),
			slog.String("error", err.Error()))
		return
	}
	r.ev.TokensDelta += delta

	ev := r.ev
	ev.TokensDelta = delta
	ev.UserID = userID
	e.publish(&run{ev: ev, start: r.start}, "", models.ReasonNone)
}

// prepare chunks and hashes markdown.
func (e *Engine) prepare(ctx context.Context, r *run, markdown string) ([]piece, error) {
	texts, err := e.chunker.Chunk(ctx, markdown)
	if err != nil {
		return nil, err
	}
	fresh, n := hashPieces(texts)
	r.ev.Chunks = len(fresh)
	r.ev.BytesHashed = n
	return fresh, nil
}

// removeStale deletes persisted chunks that are no longer part of the note
// and releases their tokens.
func (e *Engine) removeStale(ctx context.Context, r *run, userID string, stale []models.Chunk) error {
	if len(stale) == 0 {
		return nil
	}
	tokens, err := e.gate.Estimate(ctx, chunkTexts(stale)...)
	if err != nil {
		return err
	}
	n, err := e.store.DeleteChunksByHashes(ctx, r.ev.NoteID, chunkHashes(stale))
	if err != nil {
		return err
	}
	r.ev.Deleted = int(n)
	e.adjust(ctx, r, userID, -tokens)
	return nil
}

// insert embeds pieces in one batch and persists them in one transaction.
// It returns the tokens of the inserted texts.
func (e *Engine) insert(ctx context.Context, r *run, userID string, pieces []piece, total int) (int64, error) {
	if len(pieces) == 0 {
		return 0, nil
	}
	texts := pieceTexts(pieces)
	tokens, err := e.gate.Estimate(ctx, texts...)
	if err != nil {
		return 0, err
	}
	vectors, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, err
	}
	records := make([]models.Chunk, len(pieces))
	for i, p := range pieces {
		records[i] = models.Chunk{
			UserID:      userID,
			NoteID:      r.ev.NoteID,
			Content:     p.text,
			ContentHash: p.hash,
			ChunkIndex:  p.index,
			TotalChunks: total,
			Embedding:   vectors[i],
		}
	}
	if err := e.store.InsertChunks(ctx, records); err != nil {
		return 0, err
	}
	r.ev.Inserted = len(records)
	return tokens, nil
}
