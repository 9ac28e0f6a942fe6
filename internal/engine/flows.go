package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/synapse/internal/apperr"
	"github.com/starford/synapse/internal/models"
)

// Create indexes a note. A note that already has chunks is reconciled
// instead, so running Create twice leaves one copy of each chunk.
//
// Create never returns an error: failures end in StatusFailedToMemorize.
func (e *Engine) Create(ctx context.Context, job *models.CreateSemanticsJob) error {
	r := e.begin(KindCreate, job.NoteID, job.UserID)

	allowed, err := e.gate.CheckLimit(ctx, job.UserID)
	if err != nil {
		e.fail(ctx, r, models.ReasonError, err)
		return nil
	}
	if !allowed {
		e.fail(ctx, r, models.ReasonTokenLimitReached, nil)
		return nil
	}

	if err := e.create(ctx, r, job); err != nil {
		e.fail(ctx, r, models.ReasonNone, err)
	}
	return nil
}

func (e *Engine) create(ctx context.Context, r *run, job *models.CreateSemanticsJob) error {
	if err := e.setStatus(ctx, r, models.StatusMemorizing, models.ReasonNone); err != nil {
		return err
	}
	fresh, err := e.prepare(ctx, r, job.Data)
	if err != nil {
		return err
	}
	existing, err := e.store.GetChunksByNote(ctx, job.NoteID)
	if err != nil {
		return err
	}
	toInsert, toDelete := diff(existing, fresh)
	r.ev.Unchanged = len(fresh) - len(toInsert)

	if err := e.removeStale(ctx, r, job.UserID, toDelete); err != nil {
		return err
	}
	tokens, err := e.insert(ctx, r, job.UserID, toInsert, len(fresh))
	if err != nil {
		return err
	}
	if err := e.setStatus(ctx, r, models.StatusCompleted, models.ReasonNone); err != nil {
		return err
	}
	e.adjust(ctx, r, job.UserID, tokens)
	return nil
}

// Update reconciles the persisted chunks of a note with new markdown:
// chunks whose hash disappeared are deleted, new hashes are embedded and
// inserted, and unchanged chunks are not touched.
//
// Update never returns an error: failures end in StatusFailedToMemorize.
// Deletions made before a failure or a denied limit check stand.
func (e *Engine) Update(ctx context.Context, job *models.UpdateSemanticsJob) error {
	r := e.begin(KindUpdate, job.NoteID, job.UserID)

	fresh, err := e.prepare(ctx, r, job.Data)
	if err != nil {
		e.fail(ctx, r, models.ReasonNone, err)
		return nil
	}
	existing, err := e.store.GetChunksByNote(ctx, job.NoteID)
	if err != nil {
		e.fail(ctx, r, models.ReasonNone, err)
		return nil
	}
	toInsert, toDelete := diff(existing, fresh)
	r.ev.Unchanged = len(fresh) - len(toInsert)

	if err := e.removeStale(ctx, r, job.UserID, toDelete); err != nil {
		e.fail(ctx, r, models.ReasonNone, err)
		return nil
	}

	allowed, err := e.gate.CheckLimit(ctx, job.UserID)
	if err != nil {
		e.fail(ctx, r, models.ReasonError, err)
		return nil
	}
	if !allowed {
		e.fail(ctx, r, models.ReasonTokenLimitReached, nil)
		return nil
	}

	if err := e.update(ctx, r, job, toInsert, len(fresh)); err != nil {
		e.fail(ctx, r, models.ReasonNone, err)
	}
	return nil
}

func (e *Engine) update(ctx context.Context, r *run, job *models.UpdateSemanticsJob, toInsert []piece, total int) error {
	if err := e.setStatus(ctx, r, models.StatusMemorizing, models.ReasonNone); err != nil {
		return err
	}
	tokens, err := e.insert(ctx, r, job.UserID, toInsert, total)
	if err != nil {
		return err
	}
	if err := e.setStatus(ctx, r, models.StatusCompleted, models.ReasonNone); err != nil {
		return err
	}
	e.adjust(ctx, r, job.UserID, tokens)
	return nil
}

// Delete removes every chunk of a note and marks it failed with the job's
// reason. Store failures are returned so the job can be retried.
func (e *Engine) Delete(ctx context.Context, job *models.DeleteSemanticsJob) error {
	r := e.begin(KindDelete, job.NoteID, "")

	existing, err := e.store.GetChunksByNote(ctx, job.NoteID)
	if err != nil {
		return fmt.Errorf("engine: delete %s: %w", job.NoteID, err)
	}
	n, err := e.store.DeleteChunksByNote(ctx, job.NoteID)
	if err != nil {
		return fmt.Errorf("engine: delete %s: %w", job.NoteID, err)
	}
	r.ev.Deleted = int(n)

	byUser := make(map[string][]string)
	var users []string
	for _, c := range existing {
		if _, ok := byUser[c.UserID]; !ok {
			users = append(users, c.UserID)
		}
		byUser[c.UserID] = append(byUser[c.UserID], c.Content)
	}
	if len(users) == 1 {
		r.ev.UserID = users[0]
	}

	if err := e.setStatus(ctx, r, models.StatusFailedToMemorize, job.StatusReason()); err != nil {
		return fmt.Errorf("engine: delete %s: %w", job.NoteID, err)
	}

	for _, userID := range users {
		tokens, err := e.gate.Estimate(ctx, byUser[userID]...)
		if err != nil {
			e.logger.Warn("usage estimate failed",
				slog.String("note_id", job.NoteID), slog.String("error", err.Error()))
			continue
		}
		e.adjust(ctx, r, userID, -tokens)
	}
	return nil
}

// Persist flushes the staged blob of a note into the store and drops it.
// A missing blob means there is nothing to do. A blob without a status keeps
// the note's current status and reason; an unknown status is a parse error.
func (e *Engine) Persist(ctx context.Context, job *models.PersistNoteDataJob) error {
	r := e.begin(KindPersist, job.NoteID, "")

	staged, err := e.staging.Get(ctx, job.NoteID)
	if errors.Is(err, apperr.ErrNotFound) {
		e.logger.Debug("no staged data", slog.String("note_id", job.NoteID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("engine: persist %s: %w", job.NoteID, err)
	}

	status, reason := staged.Status, models.ReasonNone
	switch {
	case status == "":
		note, err := e.store.GetNote(ctx, job.NoteID)
		if errors.Is(err, apperr.ErrNotFound) {
			e.logger.Warn("staged note has no record", slog.String("note_id", job.NoteID))
			return e.dropStaged(ctx, job.NoteID)
		}
		if err != nil {
			return fmt.Errorf("engine: persist %s: %w", job.NoteID, err)
		}
		status, reason = note.Status, note.StatusReason
	case !status.Valid():
		return &apperr.ParseError{
			Queue: models.QueuePersistNoteData,
			Err:   fmt.Errorf("staged note %s: unknown status %q", job.NoteID, status),
		}
	}

	content := staged.Content
	err = e.store.UpdateNote(ctx, models.NoteUpdate{
		NoteID:  job.NoteID,
		Status:  status,
		Reason:  reason,
		Content: &content,
	})
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		e.logger.Warn("staged note has no record", slog.String("note_id", job.NoteID))
	case err != nil:
		return fmt.Errorf("engine: persist %s: %w", job.NoteID, err)
	case status != "":
		e.publish(r, status, reason)
	}

	return e.dropStaged(ctx, job.NoteID)
}

func (e *Engine) dropStaged(ctx context.Context, noteID string) error {
	if err := e.staging.Delete(ctx, noteID); err != nil {
		return fmt.Errorf("engine: persist %s: %w", noteID, err)
	}
	return nil
}
