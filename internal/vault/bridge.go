// Package vault mirrors a directory of markdown files into the note store and
// feeds the semantic index queues as the files change.
package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/starford/synapse/internal/apperr"
	"github.com/starford/synapse/internal/models"
	"github.com/starford/synapse/internal/parser"
	"github.com/starford/synapse/internal/queue"
)

// Notes is the part of the note store the bridge writes to.
type Notes interface {
	GetNote(ctx context.Context, noteID string) (*models.Note, error)
	UpsertNote(ctx context.Context, note models.Note) error
}

// Bridge turns vault file changes into note records and indexing jobs.
type Bridge struct {
	fs     *FS
	notes  Notes
	jobs   queue.Source
	userID string
	logger *slog.Logger

	mu    sync.Mutex
	known map[string]string // vault path -> note id
}

// NewBridge creates a Bridge. Every vault note is owned by userID.
func NewBridge(fs *FS, notes Notes, jobs queue.Source, userID string, logger *slog.Logger) *Bridge {
	return &Bridge{
		fs:     fs,
		notes:  notes,
		jobs:   jobs,
		userID: userID,
		logger: logger.With("component", "vault"),
		known:  make(map[string]string),
	}
}

// NoteID derives the stable note id of a vault path.
func NoteID(path string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("vault:///"+path)).String()
}

// Document splits a raw file into its title and the text that gets indexed:
// the title, a blank line, then the body without frontmatter.
func Document(raw []byte) (title, data string) {
	fm, body := parser.SplitFrontmatter(raw)
	title = parser.Title(fm, body)
	if title == "" {
		return "", body
	}
	return title, title + "\n\n" + body
}

// Apply records the current content of path and enqueues a create or update
// job. Unchanged files are skipped. It reports whether a job was enqueued.
func (b *Bridge) Apply(ctx context.Context, path string) (bool, error) {
	raw, err := b.fs.Read(path)
	if err != nil {
		return false, err
	}
	id := NoteID(path)
	b.remember(path, id)

	title, data := Document(raw)
	_, body := parser.SplitFrontmatter(raw)

	existing, err := b.notes.GetNote(ctx, id)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		existing = nil
	case err != nil:
		return false, fmt.Errorf("vault: apply %s: %w", path, err)
	}

	if existing != nil && existing.Title == title && existing.Content == body {
		return false, nil
	}

	status := models.StatusCreating
	if existing != nil {
		status = models.StatusUpdating
	}
	err = b.notes.UpsertNote(ctx, models.Note{
		ID:      id,
		UserID:  b.userID,
		Title:   title,
		Content: body,
		Status:  status,
	})
	if err != nil {
		return false, fmt.Errorf("vault: apply %s: %w", path, err)
	}

	if existing == nil {
		err = queue.Enqueue(ctx, b.jobs, models.QueueCreateSemantics,
			models.CreateSemanticsJob{NoteID: id, UserID: b.userID, Data: data})
	} else {
		err = queue.Enqueue(ctx, b.jobs, models.QueueUpdateSemantics,
			models.UpdateSemanticsJob{NoteID: id, UserID: b.userID, Data: data})
	}
	if err != nil {
		return false, fmt.Errorf("vault: apply %s: %w", path, err)
	}
	b.logger.Debug("vault: enqueued",
		slog.String("path", path), slog.String("note_id", id), slog.String("status", string(status)))
	return true, nil
}

// Remove enqueues a delete job for path.
func (b *Bridge) Remove(ctx context.Context, path string) error {
	id := NoteID(path)
	b.forget(path)
	err := queue.Enqueue(ctx, b.jobs, models.QueueDeleteSemantics,
		models.DeleteSemanticsJob{NoteID: id, Reason: models.ReasonNoteDeleted})
	if err != nil {
		return fmt.Errorf("vault: remove %s: %w", path, err)
	}
	b.logger.Debug("vault: removed", slog.String("path", path), slog.String("note_id", id))
	return nil
}

// Run performs an initial sync and then watches the vault until ctx ends.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.Sync(ctx); err != nil {
		return err
	}
	return b.Watch(ctx)
}

func (b *Bridge) remember(path, id string) {
	b.mu.Lock()
	b.known[path] = id
	b.mu.Unlock()
}

func (b *Bridge) forget(path string) {
	b.mu.Lock()
	delete(b.known, path)
	b.mu.Unlock()
}

func (b *Bridge) knownPaths() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.known))
	for p := range b.known {
		out = append(out, p)
	}
	return out
}
