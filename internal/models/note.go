// Package models defines the domain types for the semantic index worker.
package models

import "time"

// NoteStatus is the indexing state persisted on a note.
type NoteStatus string

// Status values as stored by the notes service.
const (
	StatusCreating         NoteStatus = "Creating"
	StatusMemorizing       NoteStatus = "Memorizing"
	StatusUpdating         NoteStatus = "Updating"
	StatusCompleted        NoteStatus = "Completed"
	StatusFailedToMemorize NoteStatus = "Failed To Memorize"
	StatusFailedToCreate   NoteStatus = "Failed To Create"
)

// Valid reports whether s is one of the known statuses.
func (s NoteStatus) Valid() bool {
	switch s {
	case StatusCreating, StatusMemorizing, StatusUpdating,
		StatusCompleted, StatusFailedToMemorize, StatusFailedToCreate:
		return true
	}
	return false
}

// StatusReason explains a failed status. The zero value means "no reason".
type StatusReason string

const (
	ReasonNone              StatusReason = ""
	ReasonTokenLimitReached StatusReason = "TokenLimitReached"
	ReasonUserCancelled     StatusReason = "UserCancelled"
	ReasonNoteDeleted       StatusReason = "NoteDeleted"
	ReasonError             StatusReason = "Error"
	ReasonOther             StatusReason = "Other"
)

// Note is the source-of-truth record whose content gets indexed.
type Note struct {
	ID           string       `json:"noteId"`
	UserID       string       `json:"userId"`
	Title        string       `json:"title,omitempty"`
	Content      string       `json:"content"`
	Status       NoteStatus   `json:"status"`
	StatusReason StatusReason `json:"statusReason,omitempty"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// NoteUpdate carries the fields the worker may change on a note.
// Content is only written when non-nil.
type NoteUpdate struct {
	NoteID  string
	Status  NoteStatus
	Reason  StatusReason
	Content *string
}

// Chunk is one indexed unit of a note. Content and ContentHash are immutable
// together; a changed chunk is a delete plus an insert.
type Chunk struct {
	UserID      string    `json:"userId"`
	NoteID      string    `json:"noteId"`
	Content     string    `json:"content"`
	ContentHash string    `json:"contentHash"`
	ChunkIndex  int       `json:"chunkIndex"`
	TotalChunks int       `json:"totalChunks"`
	Embedding   []float32 `json:"-"`
}

// SubscriptionTier selects the embedded token budget of a user.
type SubscriptionTier string

const (
	TierBasic    SubscriptionTier = "Basic"
	TierAdvanced SubscriptionTier = "Advanced"
	TierElite    SubscriptionTier = "Elite"
)

// UsageMetrics is the per-user embedded token counter.
type UsageMetrics struct {
	UserID              string           `json:"userId"`
	Tier                SubscriptionTier `json:"tier"`
	TotalEmbeddedTokens int64            `json:"totalEmbeddedTokens"`
	EmbeddedTokensLimit int64            `json:"embeddedTokensLimit"`
	UpdatedAt           time.Time        `json:"updatedAt"`
}

// Exhausted reports whether the budget is used up.
func (m *UsageMetrics) Exhausted() bool {
	return m.TotalEmbeddedTokens >= m.EmbeddedTokensLimit
}
