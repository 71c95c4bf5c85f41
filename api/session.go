package api

import (
	"net/http"

	"github.com/multisense/agent/internal/log"
	"github.com/multisense/agent/internal/memory"
)

// HistoryResponse is the response body for GET /api/sessions/{id}/history.
type HistoryResponse struct {
	SessionID string        `json:"session_id"`
	Turns     []memory.Turn `json:"turns"`
	Total     int           `json:"total"`
}

// SessionHandler handles session-related HTTP endpoints.
type SessionHandler struct {
	mem    *memory.Service
	logger log.Logger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(mem *memory.Service, logger log.Logger) *SessionHandler {
	return &SessionHandler{mem: mem, logger: logger}
}

// RegisterRoutes registers session routes on the given mux.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions/{id}/history", h.history)
	mux.HandleFunc("DELETE /api/sessions/{id}", h.clear)
}

// history returns the session's turns in chronological order. An unknown or
// expired session yields an empty list, not 404: history is ephemeral and
// absence is a normal state.
func (h *SessionHandler) history(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing_session_id", "session id is required")
		return
	}

	turns := h.mem.History(sessionID)
	if turns == nil {
		turns = []memory.Turn{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{
		SessionID: sessionID,
		Turns:     turns,
		Total:     len(turns),
	})
}

// clear drops the session's history. Idempotent: clearing an unknown
// session succeeds.
func (h *SessionHandler) clear(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing_session_id", "session id is required")
		return
	}

	h.mem.Clear(sessionID)
	h.logger.Info("session cleared", "session_id", sessionID)
	w.WriteHeader(http.StatusNoContent)
}
