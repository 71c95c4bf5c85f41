package rag

import (
	"fmt"
	"strconv"
)

// splitText cuts text into rune-based chunks of at most size runes, with
// consecutive chunks sharing overlap runes. The overlap exists so a fact
// spanning a boundary is still retrievable from at least one chunk.
//
// Invariants: no zero-length chunk is ever produced; text shorter than size
// becomes a single chunk; empty text yields no chunks. Requires
// 0 <= overlap < size, enforced by the Engine constructor.
func splitText(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= size {
		return []string{text}
	}

	var chunks []string
	step := size - overlap
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// ChunkID derives the deterministic chunk identifier for a document and
// sequence index. Determinism is what makes re-ingestion idempotent: the
// same document split with the same parameters always maps onto the same
// store keys.
func ChunkID(documentID string, sequenceIndex int) string {
	return documentID + ":" + strconv.Itoa(sequenceIndex)
}

// validateChunking checks the chunk size and overlap relation once at
// construction time.
func validateChunking(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 {
		return fmt.Errorf("chunk overlap must not be negative, got %d", overlap)
	}
	if overlap >= size {
		return fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", overlap, size)
	}
	return nil
}
