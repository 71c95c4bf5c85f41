package rag

import (
	"errors"
	"fmt"
)

// Sentinel errors checked with errors.Is().
var (
	// ErrInvalidTopK indicates a retrieval request with k <= 0.
	ErrInvalidTopK = errors.New("top-k must be positive")

	// ErrEmptyDocumentID indicates an ingestion request without a document ID.
	ErrEmptyDocumentID = errors.New("document ID is empty")
)

// EmbeddingError reports a failed Embedding Gateway call. ChunkIndex is the
// failing chunk's sequence index during ingestion, or -1 when the query
// embedding failed.
type EmbeddingError struct {
	DocumentID string
	ChunkIndex int
	Err        error
}

func (e *EmbeddingError) Error() string {
	if e.ChunkIndex < 0 {
		return fmt.Sprintf("embedding query: %v", e.Err)
	}
	return fmt.Sprintf("embedding chunk %d of document %q: %v", e.ChunkIndex, e.DocumentID, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// PDFExtractionError reports a PDF whose text could not be extracted.
// Nothing is stored for the document.
type PDFExtractionError struct {
	DocumentID string
	Err        error
}

func (e *PDFExtractionError) Error() string {
	return fmt.Sprintf("extracting text from pdf %q: %v", e.DocumentID, e.Err)
}

func (e *PDFExtractionError) Unwrap() error { return e.Err }

// PartialIngestionError reports an ingestion in which some chunks could not
// be embedded or stored. Chunks stored before or between the failures remain
// valid and queryable; re-ingesting the same document retries them
// idempotently.
type PartialIngestionError struct {
	DocumentID    string
	FailedIndices []int
	Err           error // first underlying failure
}

func (e *PartialIngestionError) Error() string {
	return fmt.Sprintf("ingestion of document %q partially failed: %d chunk(s) %v: %v",
		e.DocumentID, len(e.FailedIndices), e.FailedIndices, e.Err)
}

func (e *PartialIngestionError) Unwrap() error { return e.Err }
