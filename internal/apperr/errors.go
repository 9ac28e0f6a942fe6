// Package apperr defines the error taxonomy shared by the worker packages.
package apperr

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a missing note, chunk, usage row or staged blob.
var ErrNotFound = errors.New("not found")

// ProviderError wraps a failure of an external provider (embeddings, transcripts).
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// StoreError wraps a persistence failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ParseError reports a job payload that could not be decoded or validated.
type ParseError struct {
	Queue string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse job from %q: %v", e.Queue, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Store wraps err as a StoreError unless it is nil or a not-found sentinel.
func Store(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// IsParse reports whether err carries a ParseError.
func IsParse(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsProvider reports whether err carries a ProviderError.
func IsProvider(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
