package vectorstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/multisense/agent/internal/log"
	"github.com/multisense/agent/internal/testutil"
	"github.com/multisense/agent/internal/vectorstore"
)

// axisEmbedding returns a 768-dimension unit vector along the given axis,
// so cosine similarity between distinct axes is exactly 0 and identical
// axes score 1.
func axisEmbedding(axis int) []float32 {
	v := make([]float32, vectorstore.Dimension)
	v[axis%vectorstore.Dimension] = 1
	return v
}

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in -short mode")
	}

	cdb, cleanup := testutil.SetupChunkDB(t)
	defer cleanup()

	ctx := context.Background()
	store := vectorstore.NewPostgres(cdb.Pool, log.NewNop())

	chunks := []vectorstore.Chunk{
		{
			ID:            "doc-a:0",
			DocumentID:    "doc-a",
			SequenceIndex: 0,
			Text:          "first section of document a",
			Embedding:     axisEmbedding(0),
			Metadata:      map[string]string{"origin": "test"},
		},
		{
			ID:            "doc-a:1",
			DocumentID:    "doc-a",
			SequenceIndex: 1,
			Text:          "second section of document a",
			Embedding:     axisEmbedding(1),
		},
		{
			ID:            "doc-b:0",
			DocumentID:    "doc-b",
			SequenceIndex: 0,
			Text:          "only section of document b",
			Embedding:     axisEmbedding(2),
		},
	}
	require.NoError(t, store.Upsert(ctx, chunks))

	t.Run("count", func(t *testing.T) {
		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})

	t.Run("query ranks by similarity", func(t *testing.T) {
		matches, err := store.Query(ctx, axisEmbedding(0), 3)
		require.NoError(t, err)
		require.Len(t, matches, 3)

		assert.Equal(t, "doc-a:0", matches[0].Chunk.ID)
		assert.InDelta(t, 1.0, matches[0].Similarity, 1e-4)
		assert.Equal(t, map[string]string{"origin": "test"}, matches[0].Chunk.Metadata)
		for _, m := range matches[1:] {
			assert.InDelta(t, 0.0, m.Similarity, 1e-4)
		}
	})

	t.Run("query respects k", func(t *testing.T) {
		matches, err := store.Query(ctx, axisEmbedding(0), 1)
		require.NoError(t, err)
		assert.Len(t, matches, 1)
	})

	t.Run("document filter", func(t *testing.T) {
		matches, err := store.Query(ctx, axisEmbedding(0), 10,
			vectorstore.WithDocuments("doc-b"))
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "doc-b:0", matches[0].Chunk.ID)
	})

	t.Run("upsert is idempotent", func(t *testing.T) {
		updated := chunks[0]
		updated.Text = "rewritten first section"
		require.NoError(t, store.Upsert(ctx, []vectorstore.Chunk{updated}))

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		matches, err := store.Query(ctx, axisEmbedding(0), 1)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "rewritten first section", matches[0].Chunk.Text)
	})

	t.Run("delete document", func(t *testing.T) {
		require.NoError(t, store.DeleteDocument(ctx, "doc-a"))

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		matches, err := store.Query(ctx, axisEmbedding(0), 10)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "doc-b", matches[0].Chunk.DocumentID)
	})

	t.Run("invalid k", func(t *testing.T) {
		_, err := store.Query(ctx, axisEmbedding(0), 0)
		assert.Error(t, err)
	})
}
