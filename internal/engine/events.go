package engine

import (
	"sync"
	"time"

	"github.com/starford/synapse/internal/models"
)

// Kind names the flow that produced an event.
type Kind string

const (
	KindCreate  Kind = "create"
	KindUpdate  Kind = "update"
	KindDelete  Kind = "delete"
	KindPersist Kind = "persist"
)

// Event describes one note status transition and the work done up to it.
// An event with an empty Status reports a usage adjustment; its TokensDelta
// is that single adjustment rather than the running total.
type Event struct {
	Kind        Kind                `json:"kind"`
	NoteID      string              `json:"noteId"`
	UserID      string              `json:"userId,omitempty"`
	Status      models.NoteStatus   `json:"status"`
	Reason      models.StatusReason `json:"reason,omitempty"`
	Chunks      int                 `json:"chunks"`
	Inserted    int                 `json:"inserted"`
	Deleted     int                 `json:"deleted"`
	Unchanged   int                 `json:"unchanged"`
	BytesHashed int                 `json:"bytesHashed"`
	TokensDelta int64               `json:"tokensDelta"`
	Err         error               `json:"-"`
	Error       string              `json:"error,omitempty"`
	At          time.Time           `json:"at"`
	Elapsed     time.Duration       `json:"elapsed"`
}

// Sink receives engine events. Publish must not block for long.
type Sink interface {
	Publish(ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Publish implements Sink.
func (f SinkFunc) Publish(ev Event) { f(ev) }

// Sinks fans an event out to every sink in order.
type Sinks []Sink

// Publish implements Sink.
func (s Sinks) Publish(ev Event) {
	for _, sink := range s {
		sink.Publish(ev)
	}
}

// Recorder is a Sink that keeps every event. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Sink.
func (r *Recorder) Publish(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Last returns the most recent event for noteID.
func (r *Recorder) Last(noteID string) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].NoteID == noteID {
			return r.events[i], true
		}
	}
	return Event{}, false
}
