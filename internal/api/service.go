package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/starford/synapse/internal/models"
	"github.com/starford/synapse/internal/queue"
)

// ErrUnknownQueue is returned when a job targets a queue the worker does not consume.
var ErrUnknownQueue = errors.New("unknown queue")

// Reader is the read side of the store used by the API.
type Reader interface {
	GetNote(ctx context.Context, noteID string) (*models.Note, error)
	GetChunksByNote(ctx context.Context, noteID string) ([]models.Chunk, error)
	GetUsageMetrics(ctx context.Context, userID string) (*models.UsageMetrics, error)
}

// Service answers index inspection queries and accepts jobs for the worker queues.
type Service struct {
	store Reader
	jobs  queue.Source
}

// NewService creates a new API service. jobs may be nil, in which case
// Enqueue is unavailable.
func NewService(store Reader, jobs queue.Source) *Service {
	return &Service{store: store, jobs: jobs}
}

// Note returns the note record.
func (s *Service) Note(ctx context.Context, noteID string) (*models.Note, error) {
	return s.store.GetNote(ctx, noteID)
}

// NoteChunks lists the persisted chunks of a note. A note with no chunks and
// no record is reported as apperr.ErrNotFound.
func (s *Service) NoteChunks(ctx context.Context, noteID string) (*NoteChunksResponse, error) {
	chunks, err := s.store.GetChunksByNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		if _, err := s.store.GetNote(ctx, noteID); err != nil {
			return nil, err
		}
	}
	out := &NoteChunksResponse{NoteID: noteID, Chunks: make([]ChunkInfo, 0, len(chunks))}
	for _, c := range chunks {
		out.Chunks = append(out.Chunks, ChunkInfo{
			Hash:    c.ContentHash,
			Index:   c.ChunkIndex,
			Total:   c.TotalChunks,
			Content: c.Content,
		})
	}
	return out, nil
}

// Usage returns the usage counter of a user.
func (s *Service) Usage(ctx context.Context, userID string) (*models.UsageMetrics, error) {
	return s.store.GetUsageMetrics(ctx, userID)
}

// Enqueue validates payload against the job type of queueName and pushes it.
// Invalid payloads are reported as *apperr.ParseError.
func (s *Service) Enqueue(ctx context.Context, queueName string, payload []byte) error {
	if s.jobs == nil {
		return fmt.Errorf("api: enqueue: no queue configured")
	}
	var err error
	switch queueName {
	case models.QueueCreateSemantics:
		_, err = models.DecodeJob[models.CreateSemanticsJob](queueName, payload)
	case models.QueueUpdateSemantics:
		_, err = models.DecodeJob[models.UpdateSemanticsJob](queueName, payload)
	case models.QueueDeleteSemantics:
		_, err = models.DecodeJob[models.DeleteSemanticsJob](queueName, payload)
	case models.QueuePersistNoteData:
		_, err = models.DecodeJob[models.PersistNoteDataJob](queueName, payload)
	default:
		return fmt.Errorf("api: enqueue %q: %w", queueName, ErrUnknownQueue)
	}
	if err != nil {
		return err
	}
	return s.jobs.Push(ctx, queueName, payload)
}
