package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Dimension is the embedding dimension the chunks table is created with.
// gemini-embedding-001 supports truncation to 768 dimensions; see the
// db/migrations schema.
const Dimension = 768

// Postgres is a Store backed by PostgreSQL with the pgvector extension.
// The chunks table is managed by the embedded migrations in db/.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ Store = (*Postgres)(nil)

// NewPostgres creates a pgvector-backed store on an existing pool.
// The pool's lifecycle belongs to the caller; Close does not close it.
func NewPostgres(pool *pgxpool.Pool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{pool: pool, logger: logger}
}

// Upsert inserts chunks in a single transaction, replacing rows with the
// same chunk ID so re-ingestion never duplicates.
func (p *Postgres) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning upsert transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const query = `
		INSERT INTO chunks (id, document_id, sequence_index, content, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			sequence_index = EXCLUDED.sequence_index,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`

	for _, c := range chunks {
		metadataJSON, marshalErr := json.Marshal(c.Metadata)
		if marshalErr != nil {
			return fmt.Errorf("marshaling metadata for chunk %q: %w", c.ID, marshalErr)
		}
		embedding := pgvector.NewVector(c.Embedding)
		if _, err = tx.Exec(ctx, query,
			c.ID, c.DocumentID, c.SequenceIndex, c.Text, &embedding, metadataJSON); err != nil {
			return fmt.Errorf("upserting chunk %q: %w", c.ID, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing upsert: %w", err)
	}

	p.logger.Debug("chunks upserted", "count", len(chunks))
	return nil
}

// Query runs a cosine-distance nearest-neighbor search. The ORDER BY mirrors
// the package-level ordering contract: similarity descending, then sequence
// index, then document ID.
func (p *Postgres) Query(ctx context.Context, embedding []float32, k int, opts ...QueryOption) ([]Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	cfg := buildQueryConfig(opts)
	queryEmbedding := pgvector.NewVector(embedding)

	var rows pgx.Rows
	var err error
	if len(cfg.documentIDs) > 0 {
		const filtered = `
			SELECT id, document_id, sequence_index, content, metadata,
			       1 - (embedding <=> $1) AS similarity
			FROM chunks
			WHERE document_id = ANY($2)
			ORDER BY embedding <=> $1, sequence_index, document_id
			LIMIT $3`
		rows, err = p.pool.Query(ctx, filtered, &queryEmbedding, cfg.documentIDs, k)
	} else {
		const unfiltered = `
			SELECT id, document_id, sequence_index, content, metadata,
			       1 - (embedding <=> $1) AS similarity
			FROM chunks
			ORDER BY embedding <=> $1, sequence_index, document_id
			LIMIT $2`
		rows, err = p.pool.Query(ctx, unfiltered, &queryEmbedding, k)
	}
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	matches := make([]Match, 0, k)
	for rows.Next() {
		var m Match
		var metadataJSON []byte
		var similarity float64
		if err := rows.Scan(&m.Chunk.ID, &m.Chunk.DocumentID, &m.Chunk.SequenceIndex,
			&m.Chunk.Text, &metadataJSON, &similarity); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &m.Chunk.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshaling metadata for chunk %q: %w", m.Chunk.ID, err)
			}
		}
		m.Similarity = float32(similarity)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading chunk rows: %w", err)
	}
	return matches, nil
}

// Count returns the total number of stored chunks.
func (p *Postgres) Count(ctx context.Context) (int, error) {
	var count int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}

// DeleteDocument removes all chunks of one document.
func (p *Postgres) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("deleting chunks for document %q: %w", documentID, err)
	}
	return nil
}

// Close is a no-op; the pool is owned by the caller.
func (*Postgres) Close() error { return nil }
