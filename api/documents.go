package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/multisense/agent/internal/log"
	"github.com/multisense/agent/internal/rag"
)

// MaxDocumentLength bounds ingested document text.
const MaxDocumentLength = 5_000_000

// IngestRequest is the request body for POST /api/documents. Exactly one of
// Text and PDFBase64 must be set; PDF uploads have their text extracted
// before chunking.
type IngestRequest struct {
	DocumentID string            `json:"document_id"`
	Text       string            `json:"text,omitempty"`
	PDFBase64  string            `json:"pdf_base64,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// StatsResponse is the response body for GET /api/documents/stats.
type StatsResponse struct {
	Chunks  int    `json:"chunks"`
	Backend string `json:"backend"`
}

// DocumentsHandler handles document ingestion and stats endpoints.
type DocumentsHandler struct {
	engine  *rag.Engine
	backend string
	logger  log.Logger
}

// NewDocumentsHandler creates a documents handler. backend names the chunk
// store implementation for the stats endpoint ("memory", "postgres").
func NewDocumentsHandler(engine *rag.Engine, backend string, logger log.Logger) *DocumentsHandler {
	return &DocumentsHandler{engine: engine, backend: backend, logger: logger}
}

// RegisterRoutes registers document routes on the given mux.
func (h *DocumentsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/documents", h.ingest)
	mux.HandleFunc("GET /api/documents/stats", h.stats)
}

// ingest chunks, embeds and stores a document. A partially failed ingestion
// returns 207 with the report so the caller can retry; re-ingesting the same
// document fills the gaps idempotently.
func (h *DocumentsHandler) ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	if req.DocumentID == "" {
		writeError(w, http.StatusBadRequest, "missing_document_id", "document_id is required")
		return
	}
	if req.Text == "" && req.PDFBase64 == "" {
		writeError(w, http.StatusBadRequest, "missing_content", "text or pdf_base64 is required")
		return
	}
	if req.Text != "" && req.PDFBase64 != "" {
		writeError(w, http.StatusBadRequest, "ambiguous_content", "provide either text or pdf_base64, not both")
		return
	}
	if len(req.Text) > MaxDocumentLength {
		writeError(w, http.StatusRequestEntityTooLarge, "document_too_large", "text exceeds maximum length")
		return
	}

	var (
		report *rag.IngestionReport
		err    error
	)
	if req.PDFBase64 != "" {
		data, decErr := base64.StdEncoding.DecodeString(req.PDFBase64)
		if decErr != nil {
			writeError(w, http.StatusBadRequest, "invalid_media", "pdf_base64 is not valid base64")
			return
		}
		if len(data) > MaxDocumentLength {
			writeError(w, http.StatusRequestEntityTooLarge, "document_too_large", "pdf exceeds maximum size")
			return
		}
		report, err = h.engine.IngestPDF(r.Context(), req.DocumentID, data, req.Metadata)
	} else {
		report, err = h.engine.Ingest(r.Context(), req.DocumentID, req.Text, req.Metadata)
	}
	if err != nil {
		var perr *rag.PartialIngestionError
		if errors.As(err, &perr) {
			h.logger.Warn("partial ingestion",
				"document_id", req.DocumentID,
				"failed_chunks", len(perr.FailedIndices))
			writeJSON(w, http.StatusMultiStatus, report)
			return
		}
		if errors.Is(err, rag.ErrEmptyDocumentID) {
			writeError(w, http.StatusBadRequest, "missing_document_id", err.Error())
			return
		}
		var xerr *rag.PDFExtractionError
		if errors.As(err, &xerr) {
			writeError(w, http.StatusBadRequest, "invalid_pdf", "could not extract text from pdf")
			return
		}
		h.logger.Error("ingestion failed", "document_id", req.DocumentID, "error", err)
		writeError(w, http.StatusInternalServerError, "ingestion_failed", "could not ingest document")
		return
	}

	writeJSON(w, http.StatusCreated, report)
}

func (h *DocumentsHandler) stats(w http.ResponseWriter, r *http.Request) {
	count, err := h.engine.Stats(r.Context())
	if err != nil {
		h.logger.Error("stats query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "stats_failed", "could not read chunk store stats")
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{Chunks: count, Backend: h.backend})
}
