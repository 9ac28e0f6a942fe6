package api

import "github.com/starford/synapse/internal/models"

// ChunkInfo describes one persisted chunk.
type ChunkInfo struct {
	Hash    string `json:"hash" example:"9f86d081884c7d65..." validate:"required"`
	Index   int    `json:"index" example:"0"`
	Total   int    `json:"total" example:"3" validate:"required"`
	Content string `json:"content,omitempty" example:"## Intro\nHello"`
}

// NoteChunksResponse lists the chunks of a note.
type NoteChunksResponse struct {
	NoteID string      `json:"noteId" example:"2b1c..." validate:"required"`
	Chunks []ChunkInfo `json:"chunks" validate:"required"`
}

// NoteDetail is the note record as stored (aliased from the domain layer).
type NoteDetail = models.Note

// UsageResponse is a user's usage counter (aliased from the domain layer).
type UsageResponse = models.UsageMetrics

// EnqueueResponse is returned after a job was accepted.
type EnqueueResponse struct {
	Queue string `json:"queue" example:"create-note-semantics" validate:"required"`
}
