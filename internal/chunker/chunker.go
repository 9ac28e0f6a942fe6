// Package chunker packs parsed markdown blocks into token-bounded chunks.
package chunker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/starford/synapse/internal/parser"
	"github.com/starford/synapse/internal/tokenizer"
	"github.com/starford/synapse/internal/transcript"
)

// Defaults for packing and transcript windows, in tokens.
const (
	DefaultBudget        = 150
	DefaultWindowSize    = 150
	DefaultWindowOverlap = 25
)

// VideoLabel prefixes the chunk holding a transcript excerpt.
const VideoLabel = "[Embedded Video]: "

// Chunker turns a markdown document into an ordered list of chunk texts.
type Chunker struct {
	counter     tokenizer.Counter
	transcripts transcript.Provider
	splitter    textsplitter.TextSplitter
	budget      int
	logger      *slog.Logger
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithBudget sets the packing budget in tokens.
func WithBudget(tokens int) Option {
	return func(c *Chunker) {
		if tokens > 0 {
			c.budget = tokens
		}
	}
}

// WithTranscripts enables transcript excerpts for embedded videos.
// The splitter cuts a transcript into windows; only the first is kept.
func WithTranscripts(p transcript.Provider, splitter textsplitter.TextSplitter) Option {
	return func(c *Chunker) {
		c.transcripts = p
		c.splitter = splitter
	}
}

// New creates a Chunker counting tokens with counter.
func New(counter tokenizer.Counter, logger *slog.Logger, opts ...Option) *Chunker {
	c := &Chunker{
		counter: counter,
		budget:  DefaultBudget,
		logger:  logger.With("component", "chunker"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewWindowSplitter returns the token window splitter used for transcripts.
func NewWindowSplitter(encoding string) textsplitter.TextSplitter {
	opts := []textsplitter.Option{
		textsplitter.WithChunkSize(DefaultWindowSize),
		textsplitter.WithChunkOverlap(DefaultWindowOverlap),
	}
	if encoding != "" && encoding != tokenizer.EncodingWords {
		opts = append(opts, textsplitter.WithEncodingName(encoding))
	}
	return textsplitter.NewTokenSplitter(opts...)
}

// Chunk splits markdown into chunks. The same markdown always yields the same
// chunks, except for transcript excerpts which depend on the provider.
// Tokenizer failures abort the call; transcript failures only drop the
// affected excerpt.
func (c *Chunker) Chunk(ctx context.Context, markdown string) ([]string, error) {
	var (
		chunks  []string
		running strings.Builder
		tokens  int
		videos  []string
		seen    = map[string]struct{}{}
	)
	flush := func() {
		if running.Len() > 0 {
			chunks = append(chunks, running.String())
		}
		running.Reset()
		tokens = 0
	}

	for block := range parser.Blocks(markdown) {
		if h, ok := block.(*parser.HTML); ok {
			for _, id := range h.VideoIDs {
				if _, dup := seen[id]; !dup {
					seen[id] = struct{}{}
					videos = append(videos, id)
				}
			}
		}

		text := parser.Render(block)
		if text == "" {
			continue
		}
		n, err := c.counter.CountTokens(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("chunker: count tokens: %w", err)
		}

		if h, ok := block.(*parser.Heading); ok && h.Level == 2 {
			flush()
		} else if running.Len() > 0 && tokens+n > c.budget {
			flush()
		}

		if running.Len() > 0 {
			running.WriteByte('\n')
		}
		running.WriteString(text)
		tokens += n
	}
	flush()

	for _, id := range videos {
		if excerpt, ok := c.excerpt(ctx, id); ok {
			chunks = append(chunks, VideoLabel+excerpt)
		}
	}
	return chunks, nil
}

func (c *Chunker) excerpt(ctx context.Context, videoID string) (string, bool) {
	if c.transcripts == nil || c.splitter == nil {
		return "", false
	}
	text, found, err := c.transcripts.Transcript(ctx, videoID)
	if err != nil {
		c.logger.Warn("transcript lookup failed", slog.String("video_id", videoID), slog.String("error", err.Error()))
		return "", false
	}
	if !found {
		return "", false
	}
	windows, err := c.splitter.SplitText(text)
	if err != nil {
		c.logger.Warn("transcript split failed", slog.String("video_id", videoID), slog.String("error", err.Error()))
		return "", false
	}
	if len(windows) == 0 || strings.TrimSpace(windows[0]) == "" {
		return "", false
	}
	return strings.TrimSpace(windows[0]), true
}
