// Package rag implements the retrieval-augmented-generation engine: it turns
// documents into overlapping embedded chunks and turns a query into a ranked,
// bounded context window.
//
// Similarity convention: cosine similarity in [-1, 1], higher is better,
// matching both vectorstore backends. Results are ordered by descending
// similarity with ties broken by ascending sequence index, then ascending
// document ID, so identical inputs always produce identical output.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/multisense/agent/internal/gateway"
	"github.com/multisense/agent/internal/vectorstore"
)

// Config holds the engine's chunking and retrieval parameters.
type Config struct {
	ChunkSize    int // target chunk size in runes
	ChunkOverlap int // runes shared between consecutive chunks

	// MinSimilarity drops retrieved chunks scoring below it. Zero keeps
	// every non-negative match, which mirrors thresholdless retrieval.
	MinSimilarity float32
}

// IngestionReport summarizes one ingestion run.
type IngestionReport struct {
	DocumentID    string `json:"document_id"`
	ChunksCreated int    `json:"chunks_created"`
	FailedChunks  []int  `json:"failed_chunks,omitempty"`
}

// Result is one retrieved chunk. Ephemeral: produced fresh per query, never
// persisted.
type Result struct {
	ChunkID          string  `json:"chunk_id"`
	Text             string  `json:"text"`
	Score            float32 `json:"score"`
	SourceDocumentID string  `json:"source_document_id"`
	SequenceIndex    int     `json:"sequence_index"`
}

// RetrieveOption configures a single Retrieve call.
type RetrieveOption func(*retrieveConfig)

type retrieveConfig struct {
	documentIDs []string
}

// WithDocumentFilter restricts retrieval to the given documents.
func WithDocumentFilter(ids ...string) RetrieveOption {
	return func(c *retrieveConfig) {
		c.documentIDs = append(c.documentIDs, ids...)
	}
}

// Engine is the RAG engine. Safe for concurrent use as long as the
// underlying store and embedder are.
type Engine struct {
	store    vectorstore.Store
	embedder gateway.Embedder
	cfg      Config
	logger   *slog.Logger
}

// New creates an Engine after validating the chunking parameters.
func New(store vectorstore.Store, embedder gateway.Embedder, cfg Config, logger *slog.Logger) (*Engine, error) {
	if err := validateChunking(cfg.ChunkSize, cfg.ChunkOverlap); err != nil {
		return nil, fmt.Errorf("invalid chunking config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, embedder: embedder, cfg: cfg, logger: logger}, nil
}

// Ingest splits fullText into overlapping chunks, embeds each one and
// upserts it into the store under a deterministic chunk ID.
//
// Chunks are stored as they succeed; a failed embed or store call for one
// chunk does not roll back the others. When any chunk fails, Ingest returns
// the report together with a *PartialIngestionError enumerating the failed
// sequence indices. Re-ingesting the same document retries idempotently.
func (e *Engine) Ingest(ctx context.Context, documentID, fullText string, metadata map[string]string) (*IngestionReport, error) {
	if documentID == "" {
		return nil, ErrEmptyDocumentID
	}

	texts := splitText(fullText, e.cfg.ChunkSize, e.cfg.ChunkOverlap)
	report := &IngestionReport{DocumentID: documentID}
	if len(texts) == 0 {
		e.logger.Debug("nothing to ingest", "document_id", documentID)
		return report, nil
	}

	var firstErr error
	for i, text := range texts {
		embedding, err := e.embedder.Embed(ctx, text)
		if err != nil {
			report.FailedChunks = append(report.FailedChunks, i)
			if firstErr == nil {
				firstErr = &EmbeddingError{DocumentID: documentID, ChunkIndex: i, Err: err}
			}
			continue
		}

		chunk := vectorstore.Chunk{
			ID:            ChunkID(documentID, i),
			DocumentID:    documentID,
			SequenceIndex: i,
			Text:          text,
			Embedding:     embedding,
			Metadata:      metadata,
		}
		if err := e.store.Upsert(ctx, []vectorstore.Chunk{chunk}); err != nil {
			report.FailedChunks = append(report.FailedChunks, i)
			if firstErr == nil {
				firstErr = fmt.Errorf("storing chunk %d of document %q: %w", i, documentID, err)
			}
			continue
		}
		report.ChunksCreated++
	}

	if firstErr != nil {
		return report, &PartialIngestionError{
			DocumentID:    documentID,
			FailedIndices: report.FailedChunks,
			Err:           firstErr,
		}
	}

	e.logger.Info("document ingested",
		"document_id", documentID,
		"chunks", report.ChunksCreated,
	)
	return report, nil
}

// Retrieve embeds queryText and returns the top k chunks ranked by
// similarity, filtered by the configured minimum similarity.
//
// An empty store or no chunk above the threshold yields an empty slice, not
// an error: "no context found" is an expected steady-state outcome.
func (e *Engine) Retrieve(ctx context.Context, queryText string, k int, opts ...RetrieveOption) ([]Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTopK, k)
	}

	cfg := &retrieveConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	embedding, err := e.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, &EmbeddingError{ChunkIndex: -1, Err: err}
	}

	var queryOpts []vectorstore.QueryOption
	if len(cfg.documentIDs) > 0 {
		queryOpts = append(queryOpts, vectorstore.WithDocuments(cfg.documentIDs...))
	}

	matches, err := e.store.Query(ctx, embedding, k, queryOpts...)
	if err != nil {
		return nil, fmt.Errorf("querying chunk store: %w", err)
	}

	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		if m.Similarity < e.cfg.MinSimilarity {
			continue
		}
		results = append(results, Result{
			ChunkID:          m.Chunk.ID,
			Text:             m.Chunk.Text,
			Score:            m.Similarity,
			SourceDocumentID: m.Chunk.DocumentID,
			SequenceIndex:    m.Chunk.SequenceIndex,
		})
	}

	e.logger.Debug("retrieval complete",
		"query_length", len(queryText),
		"k", k,
		"results", len(results),
	)
	return results, nil
}

// Stats reports the chunk store size, for readiness and stats endpoints.
func (e *Engine) Stats(ctx context.Context) (int, error) {
	return e.store.Count(ctx)
}

// contextSeparator joins retrieved chunks in a context block.
const contextSeparator = "\n\n---\n\n"

// ContextBlock joins retrieval results into a single bounded context block.
// Results are appended in rank order; a result that would push the block
// past maxRunes is skipped along with everything after it, keeping the
// block a prefix of the ranking.
func ContextBlock(results []Result, maxRunes int) string {
	var b strings.Builder
	total := 0
	for i, r := range results {
		cost := len([]rune(r.Text))
		if i > 0 {
			cost += len(contextSeparator)
		}
		if maxRunes > 0 && total+cost > maxRunes {
			break
		}
		if i > 0 {
			b.WriteString(contextSeparator)
		}
		b.WriteString(r.Text)
		total += cost
	}
	return b.String()
}
