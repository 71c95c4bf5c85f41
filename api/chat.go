package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/multisense/agent/internal/log"
	"github.com/multisense/agent/internal/message"
	"github.com/multisense/agent/internal/orchestrator"
	"github.com/multisense/agent/internal/rag"
)

// Request validation bounds.
const (
	MaxMessageLength = 100_000
	MaxMediaBytes    = 20 << 20 // decoded media size, matches gateway limits
)

// ChatRequest is the request body for POST /api/chat.
// Media carries base64-encoded bytes for voice and image messages.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Type      string `json:"type"` // "text" (default), "voice", "image"
	Media     string `json:"media,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	UseRAG    bool   `json:"use_rag"`
	TopK      int    `json:"top_k,omitempty"`
}

// ChatResponse is the response body for POST /api/chat.
type ChatResponse struct {
	Response       string   `json:"response"`
	SessionID      string   `json:"session_id"`
	Sources        []string `json:"sources"`
	Transcript     string   `json:"transcript,omitempty"`
	MessageType    string   `json:"message_type"`
	ProcessingTime float64  `json:"processing_time"` // seconds
}

// ChatHandler handles the chat endpoint.
type ChatHandler struct {
	orch   *orchestrator.Orchestrator
	logger log.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(orch *orchestrator.Orchestrator, logger log.Logger) *ChatHandler {
	return &ChatHandler{orch: orch, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.chat)
}

func (h *ChatHandler) chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "missing_session_id", "session_id is required")
		return
	}
	if len(req.Message) > MaxMessageLength {
		writeError(w, http.StatusBadRequest, "message_too_long", "message exceeds maximum length")
		return
	}

	kind := message.KindText
	if req.Type != "" {
		kind = message.Kind(req.Type)
	}
	if kind == message.KindDocument {
		writeError(w, http.StatusBadRequest, "unsupported_type", "use POST /api/documents for ingestion")
		return
	}

	msg := message.New(req.SessionID, kind)
	msg.Text = req.Message
	msg.MediaType = req.MediaType
	if req.Media != "" {
		media, err := base64.StdEncoding.DecodeString(req.Media)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_media", "media is not valid base64")
			return
		}
		if len(media) > MaxMediaBytes {
			writeError(w, http.StatusRequestEntityTooLarge, "media_too_large", "decoded media exceeds size limit")
			return
		}
		msg.Media = media
	}

	result, err := h.orch.Handle(r.Context(), msg, orchestrator.Options{
		UseRAG: req.UseRAG,
		TopK:   req.TopK,
	})
	if err != nil {
		h.writeHandleError(w, req.SessionID, err)
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		Response:       result.Reply,
		SessionID:      result.SessionID,
		Sources:        result.Sources,
		Transcript:     result.Transcript,
		MessageType:    string(result.Kind),
		ProcessingTime: result.ProcessingTime.Seconds(),
	})
}

// writeHandleError maps orchestrator errors to HTTP status codes: caller
// mistakes to 4xx, upstream gateway failures to 502.
func (h *ChatHandler) writeHandleError(w http.ResponseWriter, sessionID string, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrUnsupportedKind):
		writeError(w, http.StatusBadRequest, "unsupported_type", err.Error())
	case errors.Is(err, orchestrator.ErrMissingMedia):
		writeError(w, http.StatusBadRequest, "missing_media", err.Error())
	case errors.Is(err, rag.ErrInvalidTopK):
		writeError(w, http.StatusBadRequest, "invalid_top_k", err.Error())
	case errors.Is(err, message.ErrUnknownKind):
		writeError(w, http.StatusBadRequest, "unsupported_type", err.Error())
	default:
		var terr *orchestrator.TranscriptionError
		var cerr *orchestrator.CaptioningError
		var gerr *orchestrator.GenerationError
		var eerr *rag.EmbeddingError
		switch {
		case errors.As(err, &terr):
			h.logger.Error("transcription failed", "session_id", sessionID, "error", err)
			writeError(w, http.StatusBadGateway, "transcription_failed", "could not transcribe audio")
		case errors.As(err, &cerr):
			h.logger.Error("captioning failed", "session_id", sessionID, "error", err)
			writeError(w, http.StatusBadGateway, "captioning_failed", "could not describe image")
		case errors.As(err, &gerr):
			h.logger.Error("generation failed", "session_id", sessionID, "error", err)
			writeError(w, http.StatusBadGateway, "generation_failed", "could not generate a reply")
		case errors.As(err, &eerr):
			h.logger.Error("embedding failed", "session_id", sessionID, "error", err)
			writeError(w, http.StatusBadGateway, "embedding_failed", "could not embed query")
		default:
			h.logger.Error("chat request failed", "session_id", sessionID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "request failed")
		}
	}
}
