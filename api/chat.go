package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/mirralabs/mirra/internal/config"
	"github.com/mirralabs/mirra/internal/llm"
	"github.com/mirralabs/mirra/internal/rag"
)

// chatHandler serves the chat endpoint.
type chatHandler struct {
	pipeline *rag.Pipeline
	logger   *slog.Logger
}

// ChatRequest is one conversational turn. History is caller-supplied and
// ordered oldest first; top_k and persona fall back to configured defaults
// when omitted.
type ChatRequest struct {
	Message string        `json:"message"`
	UserID  string        `json:"user_id"`
	History []llm.Message `json:"conversation_history,omitempty"`
	TopK    int           `json:"top_k,omitempty"`
	Persona string        `json:"persona,omitempty"`
}

// ChatResponse carries the generated reply and how many stored chunks
// informed it.
type ChatResponse struct {
	Reply        string `json:"reply"`
	SourcesCount int    `json:"sources_count"`
}

// send handles POST /api/chat.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id must be a UUID")
		return
	}
	if req.TopK < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "top_k must be positive")
		return
	}
	switch req.Persona {
	case "", config.PersonaAssistant, config.PersonaOwner:
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "persona must be assistant or owner")
		return
	}

	result, err := h.pipeline.Chat(r.Context(), rag.ChatRequest{
		Message: req.Message,
		UserID:  userID,
		History: req.History,
		TopK:    req.TopK,
		Persona: req.Persona,
	})
	if err != nil {
		writePipelineError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		Reply:        result.Reply,
		SourcesCount: result.SourceCount,
	})
}
