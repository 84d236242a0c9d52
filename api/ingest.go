package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/mirralabs/mirra/internal/rag"
)

// ingestHandler serves the document ingestion endpoints.
type ingestHandler struct {
	pipeline *rag.Pipeline
	logger   *slog.Logger
}

// ProcessRequest asks the service to ingest a file already present on disk.
type ProcessRequest struct {
	FileID   string `json:"file_id"`
	UserID   string `json:"user_id"`
	FilePath string `json:"file_path"`
	MimeType string `json:"mime_type"`
}

// ProcessResponse reports the outcome of an ingestion.
type ProcessResponse struct {
	FileID      string `json:"file_id"`
	ChunksCount int    `json:"chunks_count"`
	Status      string `json:"status"`
}

// DeleteResponse reports how many chunks a delete removed.
type DeleteResponse struct {
	FileID        string `json:"file_id"`
	ChunksDeleted int64  `json:"chunks_deleted"`
}

// process handles POST /api/process.
func (h *ingestHandler) process(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	fileID, err := uuid.Parse(req.FileID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "file_id must be a UUID")
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id must be a UUID")
		return
	}
	if req.FilePath == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "file_path is required")
		return
	}

	result, err := h.pipeline.Ingest(r.Context(), rag.IngestRequest{
		FileID:    fileID,
		UserID:    userID,
		FilePath:  req.FilePath,
		MediaType: req.MimeType,
	})
	if err != nil {
		writePipelineError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, ProcessResponse{
		FileID:      fileID.String(),
		ChunksCount: result.ChunkCount,
		Status:      "completed",
	})
}

// remove handles DELETE /api/process/{file_id}. Idempotent: deleting an
// unknown file returns 200 with zero chunks.
func (h *ingestHandler) remove(w http.ResponseWriter, r *http.Request) {
	fileID, err := uuid.Parse(r.PathValue("file_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "file_id must be a UUID")
		return
	}

	deleted, err := h.pipeline.Delete(r.Context(), fileID)
	if err != nil {
		writePipelineError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, DeleteResponse{
		FileID:        fileID.String(),
		ChunksDeleted: deleted,
	})
}
