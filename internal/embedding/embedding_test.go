package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/synapse/internal/apperr"
)

type stubProvider struct {
	calls int
	fn    func(texts []string) ([][]float32, error)
}

func (s *stubProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	return s.fn(texts)
}

func vectors(n, dims int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, dims)
	}
	return out
}

func TestGateway_Empty(t *testing.T) {
	p := &stubProvider{fn: func([]string) ([][]float32, error) { return nil, nil }}
	g := NewGateway("stub", p, 4)
	out, err := g.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, p.calls)
}

func TestGateway_OK(t *testing.T) {
	p := &stubProvider{fn: func(texts []string) ([][]float32, error) { return vectors(len(texts), 4), nil }}
	g := NewGateway("stub", p, 4)
	out, err := g.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, 1, p.calls)
}

func TestGateway_Failures(t *testing.T) {
	cases := map[string]func([]string) ([][]float32, error){
		"provider error":     func([]string) ([][]float32, error) { return nil, errors.New("rate limited") },
		"count mismatch":     func([]string) ([][]float32, error) { return vectors(1, 4), nil },
		"dimension mismatch": func(texts []string) ([][]float32, error) { return vectors(len(texts), 3), nil },
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			g := NewGateway("stub", &stubProvider{fn: fn}, 4)
			_, err := g.Embed(context.Background(), []string{"a", "b"})
			require.Error(t, err)
			assert.True(t, apperr.IsProvider(err))
		})
	}
}

func TestGateway_DefaultDimensions(t *testing.T) {
	g := NewGateway("stub", &stubProvider{}, 0)
	assert.Equal(t, DefaultDimensions, g.Dimensions())
}
