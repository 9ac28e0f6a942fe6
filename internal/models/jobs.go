package models

import (
	"encoding/json"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/synapse/internal/apperr"
)

// Queue names shared with the producers.
const (
	QueueCreateSemantics = "create-note-semantics"
	QueueUpdateSemantics = "update-note-semantics"
	QueueDeleteSemantics = "delete-note-semantics"
	QueuePersistNoteData = "persist-note-data"
)

// CreateSemanticsJob asks for a note to be indexed from scratch.
// Data is the concatenated title and content markdown.
type CreateSemanticsJob struct {
	NoteID string `json:"noteId"`
	UserID string `json:"userId"`
	Data   string `json:"data"`
}

// Validate validates the job payload.
func (j *CreateSemanticsJob) Validate() error {
	return validation.ValidateStruct(j,
		validation.Field(&j.NoteID, validation.Required),
		validation.Field(&j.UserID, validation.Required),
	)
}

// UpdateSemanticsJob asks for a note's index to be reconciled with new content.
type UpdateSemanticsJob struct {
	NoteID string `json:"noteId"`
	UserID string `json:"userId"`
	Data   string `json:"data"`
}

// Validate validates the job payload.
func (j *UpdateSemanticsJob) Validate() error {
	return validation.ValidateStruct(j,
		validation.Field(&j.NoteID, validation.Required),
		validation.Field(&j.UserID, validation.Required),
	)
}

// DeleteSemanticsJob removes a note's index. Reason is written as the
// status reason; it defaults to UserCancelled.
type DeleteSemanticsJob struct {
	NoteID string       `json:"noteId"`
	Reason StatusReason `json:"reason,omitempty"`
}

// Validate validates the job payload.
func (j *DeleteSemanticsJob) Validate() error {
	return validation.ValidateStruct(j,
		validation.Field(&j.NoteID, validation.Required),
		validation.Field(&j.Reason, validation.In(
			ReasonUserCancelled, ReasonNoteDeleted, ReasonError, ReasonOther,
		)),
	)
}

// StatusReason returns the reason to record, applying the default.
func (j *DeleteSemanticsJob) StatusReason() StatusReason {
	if j.Reason == ReasonNone {
		return ReasonUserCancelled
	}
	return j.Reason
}

// PersistNoteDataJob flushes the staged note blob into the durable store.
type PersistNoteDataJob struct {
	NoteID string `json:"noteId"`
}

// Validate validates the job payload.
func (j *PersistNoteDataJob) Validate() error {
	return validation.ValidateStruct(j,
		validation.Field(&j.NoteID, validation.Required),
	)
}

// StagedNote is the transient blob kept under Note:<noteId>.
type StagedNote struct {
	Content string     `json:"content"`
	Status  NoteStatus `json:"status"`
}

// DecodeJob unmarshals and validates a payload popped from queue.
// Failures are reported as *apperr.ParseError.
func DecodeJob[T any, PT interface {
	*T
	validation.Validatable
}](queue string, payload []byte) (*T, error) {
	job := PT(new(T))
	if err := json.Unmarshal(payload, job); err != nil {
		return nil, &apperr.ParseError{Queue: queue, Err: fmt.Errorf("decode json: %w", err)}
	}
	if err := job.Validate(); err != nil {
		return nil, &apperr.ParseError{Queue: queue, Err: err}
	}
	return (*T)(job), nil
}
