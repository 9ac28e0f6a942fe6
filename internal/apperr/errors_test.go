package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStore_WrapsUnlessNotFound(t *testing.T) {
	assert.NoError(t, Store("insert", nil))
	assert.Same(t, ErrNotFound, Store("get", ErrNotFound))

	err := Store("insert chunks", errors.New("disk full"))
	var se *StoreError
	assert.ErrorAs(t, err, &se)
	assert.Equal(t, "insert chunks", se.Op)
	assert.Equal(t, "store: insert chunks: disk full", err.Error())
}

func TestTypedErrors_Unwrap(t *testing.T) {
	root := errors.New("boom")

	perr := fmt.Errorf("embed: %w", &ProviderError{Provider: "openai", Err: root})
	assert.True(t, IsProvider(perr))
	assert.ErrorIs(t, perr, root)

	jerr := &ParseError{Queue: "create-note-semantics", Err: root}
	assert.True(t, IsParse(jerr))
	assert.False(t, IsParse(perr))
	assert.Contains(t, jerr.Error(), `"create-note-semantics"`)
}
