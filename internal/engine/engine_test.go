package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/synapse/internal/apperr"
	"github.com/starford/synapse/internal/checksum"
	"github.com/starford/synapse/internal/chunker"
	"github.com/starford/synapse/internal/embedding"
	"github.com/starford/synapse/internal/models"
	"github.com/starford/synapse/internal/staging"
	"github.com/starford/synapse/internal/store/sqlite"
	"github.com/starford/synapse/internal/testutil"
	"github.com/starford/synapse/internal/tokenizer"
	"github.com/starford/synapse/internal/usage"
)

const dims = 3

type fakeProvider struct {
	batches [][]string
	err     error
}

func (f *fakeProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.batches = append(f.batches, texts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1, 2}
	}
	return out, nil
}

type spyStore struct {
	*sqlite.DB
	inserted      [][]models.Chunk
	deletedHashes [][]string
	deleteNoteErr error
}

func (s *spyStore) InsertChunks(ctx context.Context, chunks []models.Chunk) error {
	s.inserted = append(s.inserted, chunks)
	return s.DB.InsertChunks(ctx, chunks)
}

func (s *spyStore) DeleteChunksByHashes(ctx context.Context, noteID string, hashes []string) (int64, error) {
	s.deletedHashes = append(s.deletedHashes, hashes)
	return s.DB.DeleteChunksByHashes(ctx, noteID, hashes)
}

func (s *spyStore) DeleteChunksByNote(ctx context.Context, noteID string) (int64, error) {
	if s.deleteNoteErr != nil {
		return 0, s.deleteNoteErr
	}
	return s.DB.DeleteChunksByNote(ctx, noteID)
}

type harness struct {
	engine   *Engine
	db       *sqlite.DB
	store    *spyStore
	provider *fakeProvider
	gate     *usage.Gate
	staging  *staging.Store
	events   *Recorder
}

func newHarness(t *testing.T, limit int64) *harness {
	t.Helper()
	db := testutil.TestDB(t)
	_, rdb := testutil.TestRedis(t)
	logger := testutil.Logger()

	counter := tokenizer.Words{}
	h := &harness{
		db:       db,
		store:    &spyStore{DB: db},
		provider: &fakeProvider{},
		gate:     usage.NewGate(db, counter, usage.Limits{models.TierBasic: limit}, models.TierBasic),
		staging:  staging.New(rdb),
		events:   &Recorder{},
	}
	h.engine = New(Deps{
		Chunker:  chunker.New(counter, logger),
		Embedder: embedding.NewGateway("fake", h.provider, dims),
		Gate:     h.gate,
		Store:    h.store,
		Staging:  h.staging,
		Sink:     h.events,
		Logger:   logger,
	})
	return h
}

func (h *harness) chunks(t *testing.T, noteID string) []models.Chunk {
	t.Helper()
	cs, err := h.db.GetChunksByNote(context.Background(), noteID)
	require.NoError(t, err)
	return cs
}

func (h *harness) hashes(t *testing.T, noteID string) map[string]struct{} {
	t.Helper()
	return checksum.Set(chunkHashes(h.chunks(t, noteID)))
}

func (h *harness) total(t *testing.T, userID string) int64 {
	t.Helper()
	m, err := h.db.GetUsageMetrics(context.Background(), userID)
	require.NoError(t, err)
	return m.TotalEmbeddedTokens
}

func (h *harness) persistedTokens(t *testing.T, noteIDs ...string) int64 {
	t.Helper()
	var sum int64
	for _, id := range noteIDs {
		for _, c := range h.chunks(t, id) {
			sum += int64(len(strings.Fields(c.Content)))
		}
	}
	return sum
}

func (h *harness) embedCalls() int {
	return len(h.provider.batches)
}

func create(noteID, data string) *models.CreateSemanticsJob {
	return &models.CreateSemanticsJob{NoteID: noteID, UserID: "u1", Data: data}
}

func update(noteID, data string) *models.UpdateSemanticsJob {
	return &models.UpdateSemanticsJob{NoteID: noteID, UserID: "u1", Data: data}
}

const (
	contentA = "## One\n\nalpha paragraph\n\n## Two\n\nbeta paragraph\n\n## Three\n\ngamma paragraph\n"
	contentB = "## One\n\nalpha paragraph\n\n## Two\n\nbeta paragraph\n\n## Three\n\ndelta paragraph\n"
)

func TestCreate_SingleChunk(t *testing.T) {
	h := newHarness(t, 1000)
	ctx := context.Background()
	testutil.SeedNote(t, h.db, "n1", "u1", "")

	require.NoError(t, h.engine.Create(ctx, create("n1", "# Title\n\nShort paragraph.")))

	cs := h.chunks(t, "n1")
	require.Len(t, cs, 1)
	assert.Equal(t, "# Title\nShort paragraph.", cs[0].Content)
	assert.Equal(t, checksum.String(cs[0].Content), cs[0].ContentHash)
	assert.Equal(t, 0, cs[0].ChunkIndex)
	assert.Equal(t, 1, cs[0].TotalChunks)
	assert.Equal(t, "u1", cs[0].UserID)

	n := testutil.Note(t, h.db, "n1")
	assert.Equal(t, models.StatusCompleted, n.Status)
	assert.Equal(t, models.ReasonNone, n.StatusReason)
	assert.Equal(t, int64(4), h.total(t, "u1"))
	assert.Equal(t, 1, h.embedCalls())
}

func TestCreate_StoresEmbeddings(t *testing.T) {
	h := newHarness(t, 1000)
	ctx := context.Background()
	testutil.SeedNote(t, h.db, "n1", "u1", "")

	require.NoError(t, h.engine.Create(ctx, create("n1", contentA)))
	cs := h.chunks(t, "n1")
	require.Len(t, cs, 3)
	vec, err := h.db.ChunkEmbedding(ctx, "n1", cs[2].ContentHash)
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 1, 2}, vec)
}

func TestCreate_Idempotent(t *testing.T) {
	h := newHarness(t, 1000)
	ctx := context.Background()
	testutil.SeedNote(t, h.db, "n1", "u1", "")

	require.NoError(t, h.engine.Create(ctx, create("n1", contentA)))
	first := h.hashes(t, "n1")
	totalAfterFirst := h.total(t, "u1")

	require.NoError(t, h.engine.Create(ctx, create("n1", contentA)))
	assert.Equal(t, first, h.hashes(t, "n1"))
	assert.Len(t, h.chunks(t, "n1"), 3)
	assert.Equal(t, 1, h.embedCalls(), "second create must not embed unchanged chunks")
	assert.Equal(t, totalAfterFirst, h.total(t, "u1"))
	assert.Equal(t, models.StatusCompleted, testutil.Note(t, h.db, "n1").Status)
}

func TestCreate_DuplicateChunksStoredOnce(t *testing.T) {
	h := newHarness(t, 1000)
	ctx := context.Background()
	testutil.SeedNote(t, h.db, "n1", "u1", "")

	require.NoError(t, h.engine.Create(ctx, create("n1", "## Same\n\ntext\n\n## Same\n\ntext\n")))
	assert.Len(t, h.chunks(t, "n1"), 1)
	assert.Equal(t, h.persistedTokens(t, "n1"), h.total(t, "u1"))
}

func TestCreate_LimitGate(t *testing.T) {
	h := newHarness(t, 10)
	ctx := context.Background()
	testutil.SeedNote(t, h.db, "n1", "u1", "")
	require.NoError(t, h.gate.AdjustUsage(ctx, "u1", 10))

	require.NoError(t, h.engine.Create(ctx, create("n1", contentA)))

	assert.Zero(t, h.embedCalls())
	assert.Empty(t, h.chunks(t, "n1"))
	n := testutil.Note(t, h.db, "n1")
	assert.Equal(t, models.StatusFailedToMemorize, n.Status)
	assert.Equal(t, models.ReasonTokenLimitReached, n.StatusReason)
	assert.Equal(t, int64(10), h.total(t, "u1"))
}

func TestCreate_EmbedFailurePersistsNothing(t *testing.T) {
	h := newHarness(t, 1000)
	ctx := context.Background()
	testutil.SeedNote(t, h.db, "n1", "u1", "")
	h.provider.err = errors.New("provider unavailable")

	require.NoError(t, h.engine.Create(ctx, create("n1", contentA)))

	assert.Empty(t, h.chunks(t, "n1"))
	assert.Empty(t, h.store.inserted)
	n := testutil.Note(t, h.db, "n1")
	assert.Equal(t, models.StatusFailedToMemorize, n.Status)
	assert.Equal(t, models.ReasonNone, n.StatusReason)
	assert.Zero(t, h.total(t, "u1"))

	ev, ok := h.events.Last("n1")
	require.True(t, ok)
	assert.True(t, apperr.IsProvider(ev.Err))
	assert.Equal(t, models.StatusFailedToMemorize, ev.Status)
}

func TestCreate_Events(t *testing.T) {
	h := newHarness(t, 1000)
	ctx := context.Background()
	testutil.SeedNote(t, h.db, "n1", "u1", "")

	require.NoError(t, h.engine.Create(ctx, create("n1", contentA)))

	evs := h.events.Events()
	require.Len(t, evs, 3)
	assert.Equal(t, models.StatusMemorizing, evs[0].Status)
	done := evs[1]
	assert.Equal(t, KindCreate, done.Kind)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.Equal(t, 3, done.Chunks)
	assert.Equal(t, 3, done.Inserted)
	assert.Zero(t, done.Deleted)
	assert.Positive(t, done.BytesHashed)
	// Usage is adjusted after the Completed transition.
	assert.Zero(t, done.TokensDelta)
	usage := evs[2]
	assert.Empty(t, usage.Status)
	assert.Equal(t, "u1", usage.UserID)
	assert.Equal(t, h.total(t, "u1"), usage.TokensDelta)
}

func TestCreate_MissingNoteStillIndexes(t *testing.T) {
	h := newHarness(t, 1000)
	require.NoError(t, h.engine.Create(context.Background(), create("ghost", "# T\n\nbody")))
	assert.Len(t, h.chunks(t, "ghost"), 1)
}

func TestUpdate_Minimal(t *testing.T) {
	h := newHarness(t, 1000)
	ctx := context.Background()
	testutil.SeedNote(t, h.db, "n1", "u1", "")

	require.NoError(t, h.engine.Create(ctx, create("n1", contentA)))
	before := h.chunks(t, "n1")
	require.Len(t, before, 3)
	h1, h2, h3 := before[0].ContentHash, before[1].ContentHash, before[2].ContentHash
	h4 := checksum.String("## Three\ndelta paragraph")

	require.NoError(t, h.engine.Update(ctx, update("n1", contentB)))

	require.Len(t, h.store.deletedHashes, 1)
	assert.Equal(t, []string{h3}, h.store.deletedHashes[0])
	require.Len(t, h.store.inserted, 2)
	require.Len(t, h.store.inserted[1], 1)
	assert.Equal(t, h4, h.store.inserted[1][0].ContentHash)
	assert.Equal(t, []string{"## Three\ndelta paragraph"}, h.provider.batches[1])

	after := h.chunks(t, "n1")
	assert.Equal(t, map[string]struct{}{h1: {}, h2: {}, h4: {}}, checksum.Set(chunkHashes(after)))
	assert.Equal(t, before[0], after[0])
	assert.Equal(t, before[1], after[1])
	assert.Equal(t, models.StatusCompleted, testutil.Note(t, h.db, "n1").Status)

	ev, _ := h.events.Last("n1")
	assert.Equal(t, 1, ev.Inserted)
	assert.Equal(t, 1, ev.Deleted)
	assert.Equal(t, 2, ev.Unchanged)
}

func TestUpdate_NoChange(t *testing.T) {
	h := newHarness(t, 1000)
	ctx := context.Background()
	testutil.SeedNote(t, h.db, "n1", "u1", "")

	require.NoError(t, h.engine.Create(ctx, create("n1", contentA)))
	require.NoError(t, h.engine.Update(ctx, update("n1", contentA)))

	assert.Equal(t, 1, h.embedCalls())
	assert.Empty(t, h.store.deletedHashes)
	assert.Len(t, h.store.inserted, 1)
}

func TestUpdate_LimitDeniedKeepsDeletions(t *testing.T) {
	h := newHarness(t, 1000)
	ctx := context.Background()
	testutil.SeedNote(t, h.db, "n1", "u1", "")

	require.NoError(t, h.engine.Create(ctx, create("n1", contentA)))
	// Push the user far over the limit.
	require.NoError(t, h.gate.AdjustUsage(ctx, "u1", 5000))
	require.NoError(t, h.engine.Update(ctx, update("n1", contentB)))

	assert.Len(t, h.chunks(t, "n1"), 2)
	assert.Equal(t, 1, h.embedCalls())
	n := testutil.Note(t, h.db, "n1")
	assert.Equal(t, models.StatusFailedToMemorize, n.Status)
	assert.Equal(t, models.ReasonTokenLimitReached, n.StatusReason)
	assert.Equal(t, 5000+h.persistedTokens(t, "n1"), h.total(t, "u1"))
}

func TestUpdate_EmbedFailure(t *testing.T) {
	h := newHarness(t, 1000)
	ctx := context.Background()
	testutil.SeedNote(t, h.db, "n1", "u1", "")

	require.NoError(t, h.engine.Create(ctx, create("n1", contentA)))
	h.provider.err = errors.New("timeout")
	require.NoError(t, h.engine.Update(ctx, update("n1", contentB)))

	n := testutil.Note(t, h.db, "n1")
	assert.Equal(t, models.StatusFailedToMemorize, n.Status)
	assert.Equal(t, models.ReasonNone, n.StatusReason)
	assert.Equal(t, h.persistedTokens(t, "n1"), h.total(t, "u1"))
}

func TestUsageInvariant(t *testing.T) {
	h := newHarness(t, 100000)
	ctx := context.Background()
	for _, id := range []string{"n1", "n2"} {
		testutil.SeedNote(t, h.db, id, "u1", "")
	}

	steps := []func() error{
		func() error { return h.engine.Create(ctx, create("n1", contentA)) },
		func() error { return h.engine.Create(ctx, create("n2", "# Other\n\nsome words here")) },
		func() error { return h.engine.Update(ctx, update("n1", contentB)) },
		func() error {
			return h.engine.Update(ctx, update("n2", "# Other\n\nsome words here\n\n## More\n\nextra text added"))
		},
		func() error { return h.engine.Delete(ctx, &models.DeleteSemanticsJob{NoteID: "n2"}) },
		func() error { return h.engine.Update(ctx, update("n1", "## One\n\nrewritten entirely")) },
		func() error { return h.engine.Create(ctx, create("n2", "# Back\n\nagain")) },
	}
	for i, step := range steps {
		require.NoError(t, step(), "step %d", i)
		assert.Equal(t, h.persistedTokens(t, "n1", "n2"), h.total(t, "u1"), "after step %d", i)
	}
}

func TestDelete_NoChunks(t *testing.T) {
	h := newHarness(t, 1000)
	ctx := context.Background()
	testutil.SeedNote(t, h.db, "n1", "u1", "")

	require.NoError(t, h.engine.Delete(ctx, &models.DeleteSemanticsJob{NoteID: "n1"}))

	n := testutil.Note(t, h.db, "n1")
	assert.Equal(t, models.StatusFailedToMemorize, n.Status)
	assert.Equal(t, models.ReasonUserCancelled, n.StatusReason)
}

func TestDelete_RemovesChunksAndUsage(t *testing.T) {
	h := newHarness(t, 1000)
	ctx := context.Background()
	testutil.SeedNote(t, h.db, "n1", "u1", "")

	require.NoError(t, h.engine.Create(ctx, create("n1", contentA)))
	require.NoError(t, h.engine.Delete(ctx, &models.DeleteSemanticsJob{NoteID: "n1", Reason: models.ReasonNoteDeleted}))

	assert.Empty(t, h.chunks(t, "n1"))
	assert.Zero(t, h.total(t, "u1"))
	n := testutil.Note(t, h.db, "n1")
	assert.Equal(t, models.ReasonNoteDeleted, n.StatusReason)

	ev, _ := h.events.Last("n1")
	assert.Equal(t, KindDelete, ev.Kind)
	assert.Equal(t, 3, ev.Deleted)
	assert.Equal(t, "u1", ev.UserID)
}

func TestDelete_StoreErrorIsReturned(t *testing.T) {
	h := newHarness(t, 1000)
	h.store.deleteNoteErr = &apperr.StoreError{Op: "delete chunks by note", Err: errors.New("connection reset")}

	err := h.engine.Delete(context.Background(), &models.DeleteSemanticsJob{NoteID: "n1"})
	var se *apperr.StoreError
	assert.ErrorAs(t, err, &se)
}

func TestPersist(t *testing.T) {
	h := newHarness(t, 1000)
	ctx := context.Background()
	testutil.SeedNote(t, h.db, "n1", "u1", "old")

	require.NoError(t, h.staging.Put(ctx, "n1", models.StagedNote{Content: "new body", Status: models.StatusUpdating}, 0))
	require.NoError(t, h.engine.Persist(ctx, &models.PersistNoteDataJob{NoteID: "n1"}))

	n := testutil.Note(t, h.db, "n1")
	assert.Equal(t, "new body", n.Content)
	assert.Equal(t, models.StatusUpdating, n.Status)
	_, err := h.staging.Get(ctx, "n1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	ev, ok := h.events.Last("n1")
	require.True(t, ok)
	assert.Equal(t, KindPersist, ev.Kind)
}

func TestPersist_NoStagedStatusKeepsCurrent(t *testing.T) {
	h := newHarness(t, 1000)
	ctx := context.Background()
	testutil.SeedNote(t, h.db, "n1", "u1", "old")
	require.NoError(t, h.db.UpdateNote(ctx, models.NoteUpdate{
		NoteID: "n1",
		Status: models.StatusFailedToMemorize,
		Reason: models.ReasonTokenLimitReached,
	}))

	require.NoError(t, h.staging.Put(ctx, "n1", models.StagedNote{Content: "new body"}, 0))
	require.NoError(t, h.engine.Persist(ctx, &models.PersistNoteDataJob{NoteID: "n1"}))

	n := testutil.Note(t, h.db, "n1")
	assert.Equal(t, "new body", n.Content)
	assert.Equal(t, models.StatusFailedToMemorize, n.Status)
	assert.Equal(t, models.ReasonTokenLimitReached, n.StatusReason)

	ev, ok := h.events.Last("n1")
	require.True(t, ok)
	assert.Equal(t, KindPersist, ev.Kind)
	assert.Equal(t, models.StatusFailedToMemorize, ev.Status)
	assert.Equal(t, models.ReasonTokenLimitReached, ev.Reason)
}

func TestPersist_UnknownStatusRejected(t *testing.T) {
	h := newHarness(t, 1000)
	ctx := context.Background()
	testutil.SeedNote(t, h.db, "n1", "u1", "old")

	require.NoError(t, h.staging.Put(ctx, "n1", models.StagedNote{Content: "new body", Status: "Archived"}, 0))
	err := h.engine.Persist(ctx, &models.PersistNoteDataJob{NoteID: "n1"})
	require.Error(t, err)
	assert.True(t, apperr.IsParse(err))

	n := testutil.Note(t, h.db, "n1")
	assert.Equal(t, "old", n.Content)
	assert.Equal(t, models.StatusCreating, n.Status)
	assert.Empty(t, h.events.Events())

	_, err = h.staging.Get(ctx, "n1")
	assert.NoError(t, err)
}

func TestPersist_NothingStaged(t *testing.T) {
	h := newHarness(t, 1000)
	ctx := context.Background()
	testutil.SeedNote(t, h.db, "n1", "u1", "old")

	require.NoError(t, h.engine.Persist(ctx, &models.PersistNoteDataJob{NoteID: "n1"}))
	assert.Equal(t, "old", testutil.Note(t, h.db, "n1").Content)
	assert.Empty(t, h.events.Events())
}

func TestDiff(t *testing.T) {
	fresh, n := hashPieces([]string{"a", "b", "a", "c"})
	assert.Equal(t, 4, n)
	require.Len(t, fresh, 3)
	assert.Equal(t, 2, fresh[2].index)

	existing := []models.Chunk{
		{ContentHash: checksum.String("a")},
		{ContentHash: checksum.String("z")},
	}
	toInsert, toDelete := diff(existing, fresh)
	assert.Equal(t, []string{"b", "c"}, pieceTexts(toInsert))
	assert.Equal(t, []string{checksum.String("z")}, chunkHashes(toDelete))
}
