package rag

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ExtractPDFText extracts the plain text of a PDF, page by page. Each
// non-empty page is prefixed with a "[Page N]" marker so retrieval results
// keep a coarse position within the source document.
func ExtractPDFText(data []byte) (text string, err error) {
	// The parser panics on some malformed inputs; surface those as errors.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parsing pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extracting text of page %d: %w", i, err)
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		pages = append(pages, fmt.Sprintf("[Page %d]\n%s", i, content))
	}
	return strings.Join(pages, "\n\n"), nil
}

// IngestPDF extracts the text of a PDF and ingests it under documentID, the
// same way Ingest handles plain text. A PDF that parses but yields no text
// (scanned images, empty pages) produces a report with zero chunks.
func (e *Engine) IngestPDF(ctx context.Context, documentID string, data []byte, metadata map[string]string) (*IngestionReport, error) {
	if documentID == "" {
		return nil, ErrEmptyDocumentID
	}

	text, err := ExtractPDFText(data)
	if err != nil {
		return nil, &PDFExtractionError{DocumentID: documentID, Err: err}
	}
	e.logger.Debug("pdf text extracted",
		"document_id", documentID,
		"pdf_bytes", len(data),
		"chars", len(text),
	)

	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	if _, ok := meta["type"]; !ok {
		meta["type"] = "pdf"
	}
	return e.Ingest(ctx, documentID, text, meta)
}
