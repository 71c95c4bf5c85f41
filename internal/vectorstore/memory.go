package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Memory is an in-process Store using brute-force cosine similarity.
// The zero value is not usable; call NewMemory.
type Memory struct {
	mu        sync.RWMutex
	dimension int
	chunks    map[string]Chunk
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store. The vector dimension is fixed
// by the first upserted chunk; later chunks and queries must match it.
func NewMemory() *Memory {
	return &Memory{chunks: make(map[string]Chunk)}
}

// Upsert inserts or replaces chunks keyed by chunk ID.
func (m *Memory) Upsert(_ context.Context, chunks []Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("chunk missing ID (document %q, index %d)", c.DocumentID, c.SequenceIndex)
		}
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %q has empty embedding", c.ID)
		}
		if m.dimension == 0 {
			m.dimension = len(c.Embedding)
		}
		if len(c.Embedding) != m.dimension {
			return fmt.Errorf("chunk %q dimension %d, store dimension %d", c.ID, len(c.Embedding), m.dimension)
		}
		m.chunks[c.ID] = copyChunk(c)
	}
	return nil
}

// Query ranks all stored chunks by cosine similarity to embedding.
func (m *Memory) Query(_ context.Context, embedding []float32, k int, opts ...QueryOption) ([]Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	cfg := buildQueryConfig(opts)

	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.chunks) == 0 {
		return []Match{}, nil
	}
	if len(embedding) != m.dimension {
		return nil, fmt.Errorf("query dimension %d, store dimension %d", len(embedding), m.dimension)
	}

	allowed := make(map[string]bool, len(cfg.documentIDs))
	for _, id := range cfg.documentIDs {
		allowed[id] = true
	}

	matches := make([]Match, 0, len(m.chunks))
	for _, c := range m.chunks {
		if len(allowed) > 0 && !allowed[c.DocumentID] {
			continue
		}
		matches = append(matches, Match{
			Chunk:      copyChunk(c),
			Similarity: cosine(embedding, c.Embedding),
		})
	}

	sortMatches(matches)
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Count returns the number of stored chunks.
func (m *Memory) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks), nil
}

// DeleteDocument removes all chunks of one document.
func (m *Memory) DeleteDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.chunks {
		if c.DocumentID == documentID {
			delete(m.chunks, id)
		}
	}
	return nil
}

// Close is a no-op for the in-memory backend.
func (*Memory) Close() error { return nil }

// sortMatches orders by descending similarity, then ascending sequence
// index, then ascending document ID. The ordering is total, so identical
// inputs always produce identical output.
func sortMatches(matches []Match) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		if matches[i].Chunk.SequenceIndex != matches[j].Chunk.SequenceIndex {
			return matches[i].Chunk.SequenceIndex < matches[j].Chunk.SequenceIndex
		}
		return matches[i].Chunk.DocumentID < matches[j].Chunk.DocumentID
	})
}

// cosine computes cosine similarity without assuming normalized vectors.
func cosine(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// copyChunk deep-copies a chunk so callers cannot mutate stored state.
func copyChunk(c Chunk) Chunk {
	cp := c
	cp.Embedding = make([]float32, len(c.Embedding))
	copy(cp.Embedding, c.Embedding)
	if c.Metadata != nil {
		cp.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}
