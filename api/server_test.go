package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirralabs/mirra/internal/chunk"
	"github.com/mirralabs/mirra/internal/config"
	"github.com/mirralabs/mirra/internal/knowledge"
	"github.com/mirralabs/mirra/internal/llm"
	"github.com/mirralabs/mirra/internal/log"
	"github.com/mirralabs/mirra/internal/rag"
)

// stubStore keeps chunks in memory, keyed by file.
type stubStore struct {
	chunks map[uuid.UUID][]knowledge.StoredChunk
	hits   []knowledge.RetrievedChunk
}

func newStubStore() *stubStore {
	return &stubStore{chunks: make(map[uuid.UUID][]knowledge.StoredChunk)}
}

func (s *stubStore) StoreChunks(_ context.Context, fileID, _ uuid.UUID, chunks []knowledge.StoredChunk) error {
	s.chunks[fileID] = chunks
	return nil
}

func (s *stubStore) SimilaritySearch(_ context.Context, _ uuid.UUID, _ []float32, limit int) ([]knowledge.RetrievedChunk, error) {
	if limit < len(s.hits) {
		return s.hits[:limit], nil
	}
	return s.hits, nil
}

func (s *stubStore) DeleteByFile(_ context.Context, fileID uuid.UUID) (int64, error) {
	n := int64(len(s.chunks[fileID]))
	delete(s.chunks, fileID)
	return n, nil
}

// stubClient answers every embedding with a fixed-dimension vector and every
// completion with a canned reply.
type stubClient struct {
	reply       string
	completeErr error
}

func (c *stubClient) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, 8)
	}
	return out, nil
}

func (c *stubClient) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return make([]float32, 8), nil
}

func (c *stubClient) Dimensions() int { return 8 }

func (c *stubClient) Complete(_ context.Context, _ []llm.Message, _ float32, _ int) (string, error) {
	if c.completeErr != nil {
		return "", c.completeErr
	}
	return c.reply, nil
}

func newTestServer(t *testing.T, store *stubStore, client *stubClient) *Server {
	t.Helper()

	splitter, err := chunk.NewSplitter(512, 64)
	require.NoError(t, err)

	cfg := &config.Config{TopKResults: 5, DefaultPersona: config.PersonaAssistant}
	pipeline, err := rag.New(store, client, splitter, cfg, log.NewNop())
	require.NoError(t, err)

	srv, err := NewServer(ServerConfig{
		Logger:   log.NewNop(),
		Pipeline: pipeline,
	})
	require.NoError(t, err)
	return srv
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestNewServerRequiresPipeline(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	require.Error(t, err)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, newStubStore(), &stubClient{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestReadyWithoutPool(t *testing.T) {
	srv := newTestServer(t, newStubStore(), &stubClient{})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestProcessEndpoint(t *testing.T) {
	store := newStubStore()
	srv := newTestServer(t, store, &stubClient{})

	path := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("some document content"), 0o600))

	fileID := uuid.New()
	rec := postJSON(t, srv.Handler(), "/api/process", ProcessRequest{
		FileID:   fileID.String(),
		UserID:   uuid.New().String(),
		FilePath: path,
		MimeType: "text/plain",
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp ProcessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, fileID.String(), resp.FileID)
	assert.Equal(t, 1, resp.ChunksCount)
	assert.Equal(t, "completed", resp.Status)
	assert.Len(t, store.chunks[fileID], 1)
}

func TestProcessValidation(t *testing.T) {
	srv := newTestServer(t, newStubStore(), &stubClient{})

	tests := []struct {
		name string
		req  ProcessRequest
	}{
		{"bad file id", ProcessRequest{FileID: "nope", UserID: uuid.New().String(), FilePath: "/tmp/x"}},
		{"bad user id", ProcessRequest{FileID: uuid.New().String(), UserID: "nope", FilePath: "/tmp/x"}},
		{"missing path", ProcessRequest{FileID: uuid.New().String(), UserID: uuid.New().String()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, srv.Handler(), "/api/process", tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestProcessMalformedJSON(t *testing.T) {
	srv := newTestServer(t, newStubStore(), &stubClient{})

	req := httptest.NewRequest(http.MethodPost, "/api/process", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessUnsupportedMediaType(t *testing.T) {
	srv := newTestServer(t, newStubStore(), &stubClient{})

	path := filepath.Join(t.TempDir(), "img.png")
	require.NoError(t, os.WriteFile(path, []byte("png bytes"), 0o600))

	rec := postJSON(t, srv.Handler(), "/api/process", ProcessRequest{
		FileID:   uuid.New().String(),
		UserID:   uuid.New().String(),
		FilePath: path,
		MimeType: "image/png",
	})
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestProcessEmptyDocument(t *testing.T) {
	srv := newTestServer(t, newStubStore(), &stubClient{})

	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(path, []byte("   \n  "), 0o600))

	rec := postJSON(t, srv.Handler(), "/api/process", ProcessRequest{
		FileID:   uuid.New().String(),
		UserID:   uuid.New().String(),
		FilePath: path,
		MimeType: "text/plain",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDeleteEndpointIsIdempotent(t *testing.T) {
	store := newStubStore()
	srv := newTestServer(t, store, &stubClient{})

	fileID := uuid.New()
	store.chunks[fileID] = make([]knowledge.StoredChunk, 3)

	req := httptest.NewRequest(http.MethodDelete, "/api/process/"+fileID.String(), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp DeleteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(3), resp.ChunksDeleted)

	// Unknown file: still 200, zero chunks.
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/process/"+uuid.New().String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Zero(t, resp.ChunksDeleted)
}

func TestDeleteRejectsBadUUID(t *testing.T) {
	srv := newTestServer(t, newStubStore(), &stubClient{})

	req := httptest.NewRequest(http.MethodDelete, "/api/process/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatEndpoint(t *testing.T) {
	store := newStubStore()
	store.hits = []knowledge.RetrievedChunk{
		{Content: "likes gardening", Similarity: 0.9},
		{Content: "grows tomatoes", Similarity: 0.8},
	}
	srv := newTestServer(t, store, &stubClient{reply: "I love gardening."})

	rec := postJSON(t, srv.Handler(), "/api/chat", ChatRequest{
		Message: "what are your hobbies?",
		UserID:  uuid.New().String(),
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "I love gardening.", resp.Reply)
	assert.Equal(t, 2, resp.SourcesCount)
}

func TestChatValidation(t *testing.T) {
	srv := newTestServer(t, newStubStore(), &stubClient{})

	tests := []struct {
		name string
		req  ChatRequest
	}{
		{"missing message", ChatRequest{UserID: uuid.New().String()}},
		{"bad user id", ChatRequest{Message: "hi", UserID: "nope"}},
		{"negative top_k", ChatRequest{Message: "hi", UserID: uuid.New().String(), TopK: -1}},
		{"unknown persona", ChatRequest{Message: "hi", UserID: uuid.New().String(), Persona: "pirate"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, srv.Handler(), "/api/chat", tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestChatProviderFailureIs503(t *testing.T) {
	srv := newTestServer(t, newStubStore(), &stubClient{
		completeErr: fmt.Errorf("%w: upstream timeout", llm.ErrProviderUnavailable),
	})

	rec := postJSON(t, srv.Handler(), "/api/chat", ChatRequest{
		Message: "hi",
		UserID:  uuid.New().String(),
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestChatPersonaAccepted(t *testing.T) {
	srv := newTestServer(t, newStubStore(), &stubClient{reply: "ahoy"})

	for _, persona := range []string{"", config.PersonaAssistant, config.PersonaOwner} {
		rec := postJSON(t, srv.Handler(), "/api/chat", ChatRequest{
			Message: "hi",
			UserID:  uuid.New().String(),
			Persona: persona,
		})
		assert.Equal(t, http.StatusOK, rec.Code, "persona %q", persona)
	}
}
