package chunker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/synapse/internal/tokenizer"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeTranscripts struct {
	texts map[string]string
	fail  map[string]bool
	calls []string
}

func (f *fakeTranscripts) Transcript(_ context.Context, id string) (string, bool, error) {
	f.calls = append(f.calls, id)
	if f.fail[id] {
		return "", false, errors.New("boom")
	}
	text, ok := f.texts[id]
	return text, ok, nil
}

// firstWords splits into windows of n words.
type firstWords struct{ n int }

func (s firstWords) SplitText(text string) ([]string, error) {
	words := strings.Fields(text)
	var out []string
	for i := 0; i < len(words); i += s.n {
		end := min(i+s.n, len(words))
		out = append(out, strings.Join(words[i:end], " "))
	}
	return out, nil
}

type failingCounter struct{}

func (failingCounter) CountTokens(context.Context, string) (int, error) {
	return 0, errors.New("encoder unavailable")
}

func TestChunk_Empty(t *testing.T) {
	c := New(tokenizer.Words{}, discard)
	chunks, err := c.Chunk(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunk_SingleChunk(t *testing.T) {
	c := New(tokenizer.Words{}, discard)
	chunks, err := c.Chunk(context.Background(), "# Title\n\nhello world\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"# Title\nhello world"}, chunks)
}

func TestChunk_LevelTwoHeadingFlushes(t *testing.T) {
	c := New(tokenizer.Words{}, discard)
	chunks, err := c.Chunk(context.Background(), "intro\n\n## Section\n\nbody\n\n### Sub\n\nmore\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"intro", "## Section\nbody\n### Sub\nmore"}, chunks)
}

func TestChunk_LeadingLevelTwoHeading(t *testing.T) {
	c := New(tokenizer.Words{}, discard)
	chunks, err := c.Chunk(context.Background(), "## First\n\ntext\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"## First\ntext"}, chunks)
}

func TestChunk_KeepsTextBetweenLeadingRules(t *testing.T) {
	c := New(tokenizer.Words{}, discard)
	chunks, err := c.Chunk(context.Background(), "---\nReminder: call the dentist tomorrow\n---\n\nShopping list.")
	require.NoError(t, err)
	joined := strings.Join(chunks, "\n")
	assert.Contains(t, joined, "Reminder: call the dentist tomorrow")
	assert.Contains(t, joined, "Shopping list.")
}

func TestChunk_BudgetOverflow(t *testing.T) {
	c := New(tokenizer.Words{}, discard, WithBudget(5))
	md := "one two three\n\nfour five six\n\nseven\n\n" + strings.Repeat("word ", 12) + "\n"
	chunks, err := c.Chunk(context.Background(), md)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "one two three", chunks[0])
	assert.Equal(t, "four five six\nseven", chunks[1])
	// Oversized blocks are kept whole.
	assert.Equal(t, strings.TrimSpace(strings.Repeat("word ", 12)), chunks[2])
}

func TestChunk_Deterministic(t *testing.T) {
	c := New(tokenizer.Words{}, discard, WithBudget(8))
	md := "# Doc\n\n- a\n- b\n\n```go\nx := 1\n```\n\n## Two\n\n> quote here\n\nSee [site](https://example.com).\n"
	first, err := c.Chunk(context.Background(), md)
	require.NoError(t, err)
	for range 5 {
		again, err := c.Chunk(context.Background(), md)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestChunk_VideoTranscripts(t *testing.T) {
	tr := &fakeTranscripts{
		texts: map[string]string{"v1": "alpha beta gamma delta epsilon"},
		fail:  map[string]bool{"v2": true},
	}
	c := New(tokenizer.Words{}, discard, WithTranscripts(tr, firstWords{n: 3}))
	md := "intro\n\n" +
		"<iframe src=\"https://www.youtube.com/embed/v1\"></iframe>\n\n" +
		"<iframe src=\"https://www.youtube.com/embed/v2\"></iframe>\n\n" +
		"<iframe src=\"https://www.youtube.com/embed/v1\"></iframe>\n\n" +
		"<iframe src=\"https://www.youtube.com/embed/v3\"></iframe>\n"

	chunks, err := c.Chunk(context.Background(), md)
	require.NoError(t, err)
	assert.Equal(t, []string{"intro", VideoLabel + "alpha beta gamma"}, chunks)
	assert.Equal(t, []string{"v1", "v2", "v3"}, tr.calls)
}

func TestChunk_VideoWithoutProvider(t *testing.T) {
	c := New(tokenizer.Words{}, discard)
	chunks, err := c.Chunk(context.Background(), "<iframe src=\"https://www.youtube.com/embed/v1\"></iframe>\n")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunk_TokenizerFailureIsFatal(t *testing.T) {
	c := New(failingCounter{}, discard)
	_, err := c.Chunk(context.Background(), "some text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encoder unavailable")
}
