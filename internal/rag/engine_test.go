package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multisense/agent/internal/log"
	"github.com/multisense/agent/internal/testutil"
	"github.com/multisense/agent/internal/vectorstore"
)

func newTestEngine(t *testing.T, cfg Config) (*Engine, *testutil.HashEmbedder, *vectorstore.Memory) {
	t.Helper()
	store := vectorstore.NewMemory()
	embedder := testutil.NewHashEmbedder(64)
	engine, err := New(store, embedder, cfg, log.NewNop())
	require.NoError(t, err)
	return engine, embedder, store
}

func defaultConfig() Config {
	return Config{ChunkSize: 1000, ChunkOverlap: 200}
}

func TestNewRejectsBadChunking(t *testing.T) {
	t.Parallel()

	_, err := New(vectorstore.NewMemory(), testutil.NewHashEmbedder(8), Config{ChunkSize: 100, ChunkOverlap: 100}, log.NewNop())
	require.Error(t, err)
}

func TestIngestEmptyDocumentID(t *testing.T) {
	t.Parallel()

	engine, _, _ := newTestEngine(t, defaultConfig())
	_, err := engine.Ingest(context.Background(), "", "some text", nil)
	require.ErrorIs(t, err, ErrEmptyDocumentID)
}

func TestIngestEmptyText(t *testing.T) {
	t.Parallel()

	engine, _, store := newTestEngine(t, defaultConfig())
	report, err := engine.Ingest(context.Background(), "doc-1", "", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, report.ChunksCreated)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestIngestIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine, _, store := newTestEngine(t, defaultConfig())
	text := strings.Repeat("alpha beta gamma ", 200) // ~3400 chars

	first, err := engine.Ingest(ctx, "doc-1", text, map[string]string{"source": "test"})
	require.NoError(t, err)
	require.Greater(t, first.ChunksCreated, 1)

	second, err := engine.Ingest(ctx, "doc-1", text, map[string]string{"source": "test"})
	require.NoError(t, err)
	assert.Equal(t, first.ChunksCreated, second.ChunksCreated)

	// Re-ingestion overwrites by chunk ID, never duplicates.
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ChunksCreated, count)
}

func TestIngestPartialFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine, embedder, store := newTestEngine(t, Config{ChunkSize: 100, ChunkOverlap: 10})

	embedFail := errors.New("inference endpoint unavailable")
	embedder.FailWith(func(call int, _ string) error {
		if call == 1 || call == 3 {
			return embedFail
		}
		return nil
	})

	report, err := engine.Ingest(ctx, "doc-1", strings.Repeat("a", 400), nil)

	var partial *PartialIngestionError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, "doc-1", partial.DocumentID)
	assert.Equal(t, []int{1, 3}, partial.FailedIndices)
	require.ErrorIs(t, err, embedFail)

	assert.Equal(t, []int{1, 3}, report.FailedChunks)
	assert.Equal(t, report.ChunksCreated+len(report.FailedChunks), 5)

	// Successfully embedded chunks stay stored and queryable.
	count, countErr := store.Count(ctx)
	require.NoError(t, countErr)
	assert.Equal(t, report.ChunksCreated, count)

	// Retrying the same document succeeds and fills the gaps.
	embedder.FailWith(nil)
	retry, err := engine.Ingest(ctx, "doc-1", strings.Repeat("a", 400), nil)
	require.NoError(t, err)
	assert.Equal(t, 5, retry.ChunksCreated)

	count, countErr = store.Count(ctx)
	require.NoError(t, countErr)
	assert.Equal(t, 5, count)
}

func TestRetrieveInvalidK(t *testing.T) {
	t.Parallel()

	engine, _, _ := newTestEngine(t, defaultConfig())
	_, err := engine.Retrieve(context.Background(), "anything", 0)
	require.ErrorIs(t, err, ErrInvalidTopK)

	_, err = engine.Retrieve(context.Background(), "anything", -5)
	require.ErrorIs(t, err, ErrInvalidTopK)
}

func TestRetrieveEmptyStore(t *testing.T) {
	t.Parallel()

	engine, _, _ := newTestEngine(t, defaultConfig())
	results, err := engine.Retrieve(context.Background(), "anything at all", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieveEmbeddingFailure(t *testing.T) {
	t.Parallel()

	engine, embedder, _ := newTestEngine(t, defaultConfig())
	embedFail := errors.New("quota exceeded")
	embedder.FailWith(func(int, string) error { return embedFail })

	_, err := engine.Retrieve(context.Background(), "query", 3)

	var embErr *EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Equal(t, -1, embErr.ChunkIndex)
	require.ErrorIs(t, err, embedFail)
}

func TestRetrieveRanksAndBounds(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine, _, _ := newTestEngine(t, Config{ChunkSize: 200, ChunkOverlap: 0})

	_, err := engine.Ingest(ctx, "animals", "the quick brown fox jumps over the lazy dog", nil)
	require.NoError(t, err)
	_, err = engine.Ingest(ctx, "cooking", "simmer the onions and garlic in olive oil", nil)
	require.NoError(t, err)

	results, err := engine.Retrieve(ctx, "quick brown fox", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "animals", results[0].SourceDocumentID)

	// Scores are in descending order when more results are requested.
	results, err = engine.Retrieve(ctx, "quick brown fox", 5)
	require.NoError(t, err)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestRetrieveMinSimilarity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine, _, _ := newTestEngine(t, Config{ChunkSize: 200, ChunkOverlap: 0, MinSimilarity: 0.99})

	_, err := engine.Ingest(ctx, "animals", "the quick brown fox", nil)
	require.NoError(t, err)

	// An unrelated query scores far below the threshold: empty, not error.
	results, err := engine.Retrieve(ctx, "quantum chromodynamics lattice", 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	// The exact text passes the threshold.
	results, err = engine.Retrieve(ctx, "the quick brown fox", 5)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestRetrieveDocumentFilter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine, _, _ := newTestEngine(t, Config{ChunkSize: 200, ChunkOverlap: 0})

	_, err := engine.Ingest(ctx, "doc-a", "shared words here", nil)
	require.NoError(t, err)
	_, err = engine.Ingest(ctx, "doc-b", "shared words here", nil)
	require.NoError(t, err)

	results, err := engine.Retrieve(ctx, "shared words", 10, WithDocumentFilter("doc-b"))
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, "doc-b", r.SourceDocumentID)
	}
}

// TestIngestRetrieveOverlapScenario exercises the end-to-end chunking
// scenario: a 3000-character document split 1000/200 yields 4 chunks, and a
// query built from boundary text is retrievable.
func TestIngestRetrieveOverlapScenario(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	engine, _, _ := newTestEngine(t, Config{ChunkSize: 1000, ChunkOverlap: 200})

	// Compose a 3000-char document whose first chunk boundary region
	// carries a distinctive phrase.
	boundary := "delivery trucks depart warehouse seven at dawn "
	var b strings.Builder
	for i := 0; b.Len() < 950; i++ {
		b.WriteString(fmt.Sprintf("filler sentence number %d about nothing in particular. ", i))
	}
	b.WriteString(boundary)
	for i := 0; b.Len() < 3000; i++ {
		b.WriteString(fmt.Sprintf("more unrelated padding text item %d goes here. ", i))
	}
	text := b.String()[:3000]

	report, err := engine.Ingest(ctx, "logistics.pdf", text, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, report.ChunksCreated)

	results, err := engine.Retrieve(ctx, "delivery trucks depart warehouse seven", 4)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	found := false
	for _, r := range results {
		if strings.Contains(r.Text, "warehouse seven") {
			found = true
		}
	}
	assert.True(t, found, "boundary phrase must be retrievable from at least one chunk")
}

func TestContextBlock(t *testing.T) {
	t.Parallel()

	results := []Result{
		{Text: "first chunk"},
		{Text: "second chunk"},
		{Text: "third chunk"},
	}

	t.Run("unbounded", func(t *testing.T) {
		t.Parallel()
		block := ContextBlock(results, 0)
		assert.Equal(t, "first chunk\n\n---\n\nsecond chunk\n\n---\n\nthird chunk", block)
	})

	t.Run("bounded", func(t *testing.T) {
		t.Parallel()
		block := ContextBlock(results, 30)
		assert.Equal(t, "first chunk\n\n---\n\nsecond chunk", block)
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, ContextBlock(nil, 100))
	})
}
