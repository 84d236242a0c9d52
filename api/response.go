package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mirralabs/mirra/internal/chunk"
	"github.com/mirralabs/mirra/internal/llm"
	"github.com/mirralabs/mirra/internal/rag"
)

// writeJSON writes a JSON response with the given status code. Encodes to a
// buffer first so headers are only sent after successful encoding.
func writeJSON(w http.ResponseWriter, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Debug("failed to write response body", "error", err)
	}
}

// ErrorResponse represents a JSON error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

// writePipelineError maps pipeline failures onto HTTP status codes: caller
// mistakes to 4xx, upstream provider trouble to 503, everything else to 500.
func writePipelineError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, chunk.ErrUnsupportedFormat):
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_format", err.Error())
	case errors.Is(err, chunk.ErrExtractionFailed):
		writeError(w, http.StatusUnprocessableEntity, "extraction_failed", err.Error())
	case errors.Is(err, rag.ErrEmptyExtraction):
		writeError(w, http.StatusUnprocessableEntity, "empty_document", err.Error())
	case errors.Is(err, llm.ErrProviderUnavailable):
		logger.Error("provider unavailable", "error", err)
		writeError(w, http.StatusServiceUnavailable, "provider_unavailable", "upstream model provider failed")
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
