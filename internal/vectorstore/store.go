// Package vectorstore persists embedded document chunks and answers
// nearest-neighbor queries over them.
//
// The Store interface is the pluggable boundary the RAG engine depends on.
// Two backends are provided: Memory, a brute-force in-process store suitable
// for tests and single-node deployments, and Postgres, backed by pgvector.
// Both report cosine similarity in [-1, 1], higher is more similar, and both
// order results by descending similarity with ties broken by ascending
// sequence index, then ascending document ID.
package vectorstore

import "context"

// Chunk is one embedded slice of an ingested document. Chunks are immutable
// once stored; re-ingesting a document overwrites chunks by ID.
type Chunk struct {
	ID            string // deterministic: "<documentID>:<sequenceIndex>"
	DocumentID    string
	SequenceIndex int
	Text          string
	Embedding     []float32
	Metadata      map[string]string
}

// Match is a chunk returned from a similarity query.
type Match struct {
	Chunk      Chunk
	Similarity float32
}

// QueryOption configures a similarity query.
type QueryOption func(*queryConfig)

type queryConfig struct {
	documentIDs []string
}

// WithDocuments restricts a query to chunks belonging to the given
// documents. Calling it with no IDs leaves the query unrestricted.
func WithDocuments(ids ...string) QueryOption {
	return func(c *queryConfig) {
		c.documentIDs = append(c.documentIDs, ids...)
	}
}

func buildQueryConfig(opts []QueryOption) *queryConfig {
	cfg := &queryConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Store is the chunk persistence contract consumed by the RAG engine.
// Implementations must be safe for concurrent use.
type Store interface {
	// Upsert inserts the chunks, replacing any existing chunks with the
	// same IDs.
	Upsert(ctx context.Context, chunks []Chunk) error

	// Query returns up to k chunks nearest to the given embedding,
	// ordered as documented on the package. An empty store yields an
	// empty slice, not an error.
	Query(ctx context.Context, embedding []float32, k int, opts ...QueryOption) ([]Match, error)

	// Count returns the total number of stored chunks.
	Count(ctx context.Context) (int, error)

	// DeleteDocument removes every chunk belonging to the document.
	DeleteDocument(ctx context.Context, documentID string) error

	// Close releases backend resources.
	Close() error
}
