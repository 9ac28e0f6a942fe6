package queue

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/synapse/internal/models"
)

// Handler processes one payload.
type Handler func(ctx context.Context, payload []byte) error

// Route binds a queue to its handler. Retry marks handlers whose errors are
// transient; other failures go straight to the dead-letter list.
type Route struct {
	Queue  string
	Handle Handler
	Retry  bool
}

// JSON builds a Route that decodes and validates a job of type T before
// calling fn. Decoding failures are *apperr.ParseError and never retried.
func JSON[T any, PT interface {
	*T
	validation.Validatable
}](queue string, retry bool, fn func(context.Context, *T) error) Route {
	return Route{
		Queue: queue,
		Retry: retry,
		Handle: func(ctx context.Context, payload []byte) error {
			job, err := models.DecodeJob[T, PT](queue, payload)
			if err != nil {
				return err
			}
			return fn(ctx, job)
		},
	}
}
