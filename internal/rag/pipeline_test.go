package rag

import (
	"context"
	"errors"
	"fmt"
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
)

// mockStore records calls and serves canned search results.
type mockStore struct {
	storedFileID uuid.UUID
	storedUserID uuid.UUID
	stored       []knowledge.StoredChunk
	storeErr     error

	searchHits  []knowledge.RetrievedChunk
	searchUser  uuid.UUID
	searchLimit int

	deleted      []uuid.UUID
	deleteResult int64
}

func (m *mockStore) StoreChunks(_ context.Context, fileID, userID uuid.UUID, chunks []knowledge.StoredChunk) error {
	if m.storeErr != nil {
		return m.storeErr
	}
	m.storedFileID = fileID
	m.storedUserID = userID
	m.stored = chunks
	return nil
}

func (m *mockStore) SimilaritySearch(_ context.Context, userID uuid.UUID, _ []float32, limit int) ([]knowledge.RetrievedChunk, error) {
	m.searchUser = userID
	m.searchLimit = limit
	return m.searchHits, nil
}

func (m *mockStore) DeleteByFile(_ context.Context, fileID uuid.UUID) (int64, error) {
	m.deleted = append(m.deleted, fileID)
	return m.deleteResult, nil
}

// mockClient implements llm.Client with deterministic vectors.
type mockClient struct {
	dims       int
	embedErr   error
	embedCalls int

	reply       string
	completeErr error
	gotMessages []llm.Message
	gotTemp     float32
	gotMax      int
}

func (m *mockClient) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.embedCalls++
	if m.embedErr != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrProviderUnavailable, m.embedErr)
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, m.dims)
		v[0] = float32(i + 1)
		out[i] = v
	}
	return out, nil
}

func (m *mockClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := m.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (m *mockClient) Dimensions() int { return m.dims }

func (m *mockClient) Complete(_ context.Context, messages []llm.Message, temperature float32, maxTokens int) (string, error) {
	if m.completeErr != nil {
		return "", m.completeErr
	}
	m.gotMessages = messages
	m.gotTemp = temperature
	m.gotMax = maxTokens
	return m.reply, nil
}

func newTestPipeline(t *testing.T, store *mockStore, client *mockClient) *Pipeline {
	t.Helper()

	splitter, err := chunk.NewSplitter(512, 64)
	require.NoError(t, err)

	cfg := &config.Config{TopKResults: 5, DefaultPersona: config.PersonaAssistant}
	p, err := New(store, client, splitter, cfg, log.NewNop())
	require.NoError(t, err)
	return p
}

func writeDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestIngestStoresEmbeddedChunks(t *testing.T) {
	store := &mockStore{}
	client := &mockClient{dims: 4}
	p := newTestPipeline(t, store, client)

	fileID := uuid.New()
	userID := uuid.New()
	path := writeDoc(t, "The quick brown fox jumps over the lazy dog.")

	result, err := p.Ingest(context.Background(), IngestRequest{
		FileID:    fileID,
		UserID:    userID,
		FilePath:  path,
		MediaType: chunk.MediaTypePlain,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ChunkCount)

	assert.Equal(t, fileID, store.storedFileID)
	assert.Equal(t, userID, store.storedUserID)
	require.Len(t, store.stored, 1)
	assert.Equal(t, "The quick brown fox jumps over the lazy dog.", store.stored[0].Content)
	assert.Equal(t, 0, store.stored[0].Index)
	assert.Len(t, store.stored[0].Embedding, 4)
}

func TestIngestLargeDocumentChunkOrder(t *testing.T) {
	store := &mockStore{}
	client := &mockClient{dims: 4}
	p := newTestPipeline(t, store, client)

	path := writeDoc(t, strings.Repeat("knowledge base ingestion pipeline ", 400))

	result, err := p.Ingest(context.Background(), IngestRequest{
		FileID:    uuid.New(),
		UserID:    uuid.New(),
		FilePath:  path,
		MediaType: chunk.MediaTypePlain,
	})
	require.NoError(t, err)
	require.Greater(t, result.ChunkCount, 1)
	require.Len(t, store.stored, result.ChunkCount)

	for i, c := range store.stored {
		assert.Equal(t, i, c.Index)
		// mockClient encodes input position into the vector; storage
		// order must match embedding order.
		assert.Equal(t, float32(i+1), c.Embedding[0])
	}
}

func TestIngestUnsupportedFormat(t *testing.T) {
	store := &mockStore{}
	p := newTestPipeline(t, store, &mockClient{dims: 4})

	_, err := p.Ingest(context.Background(), IngestRequest{
		FileID:    uuid.New(),
		UserID:    uuid.New(),
		FilePath:  writeDoc(t, "data"),
		MediaType: "image/png",
	})
	require.ErrorIs(t, err, chunk.ErrUnsupportedFormat)
	assert.Empty(t, store.stored)
}

func TestIngestEmptyDocument(t *testing.T) {
	store := &mockStore{}
	p := newTestPipeline(t, store, &mockClient{dims: 4})

	_, err := p.Ingest(context.Background(), IngestRequest{
		FileID:    uuid.New(),
		UserID:    uuid.New(),
		FilePath:  writeDoc(t, "  \n\n\t "),
		MediaType: chunk.MediaTypePlain,
	})
	require.ErrorIs(t, err, ErrEmptyExtraction)
	assert.Empty(t, store.stored)
}

func TestIngestEmbeddingFailureLeavesStoreUntouched(t *testing.T) {
	store := &mockStore{}
	client := &mockClient{dims: 4, embedErr: errors.New("quota exceeded")}
	p := newTestPipeline(t, store, client)

	_, err := p.Ingest(context.Background(), IngestRequest{
		FileID:    uuid.New(),
		UserID:    uuid.New(),
		FilePath:  writeDoc(t, "some content"),
		MediaType: chunk.MediaTypePlain,
	})
	require.ErrorIs(t, err, llm.ErrProviderUnavailable)
	assert.Empty(t, store.stored)
	assert.Equal(t, uuid.Nil, store.storedFileID)
}

func TestDeleteIsPassedThrough(t *testing.T) {
	store := &mockStore{deleteResult: 7}
	p := newTestPipeline(t, store, &mockClient{dims: 4})

	fileID := uuid.New()
	n, err := p.Delete(context.Background(), fileID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, []uuid.UUID{fileID}, store.deleted)
}

func TestChatComposesAndGenerates(t *testing.T) {
	store := &mockStore{searchHits: []knowledge.RetrievedChunk{
		{Content: "Keeps bees on the balcony.", Similarity: 0.88},
	}}
	client := &mockClient{dims: 4, reply: "I keep bees!"}
	p := newTestPipeline(t, store, client)

	userID := uuid.New()
	result, err := p.Chat(context.Background(), ChatRequest{
		Message: "do you have any hobbies?",
		UserID:  userID,
		History: []llm.Message{
			{Role: llm.RoleUser, Content: "my name is Bob"},
			{Role: llm.RoleAssistant, Content: "hi Bob"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "I keep bees!", result.Reply)
	assert.Equal(t, 1, result.SourceCount)

	assert.Equal(t, userID, store.searchUser)
	assert.Equal(t, 5, store.searchLimit)

	assert.InDelta(t, 0.7, client.gotTemp, 1e-6)
	assert.Equal(t, 1024, client.gotMax)

	// Directive first, current message last, facts from history present.
	require.NotEmpty(t, client.gotMessages)
	assert.Equal(t, llm.RoleSystem, client.gotMessages[0].Role)
	last := client.gotMessages[len(client.gotMessages)-1]
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "do you have any hobbies?"}, last)

	var factsSeen bool
	for _, m := range client.gotMessages {
		if m.Role == llm.RoleSystem && strings.Contains(m.Content, "Bob") {
			factsSeen = true
		}
	}
	assert.True(t, factsSeen, "facts block mentioning Bob expected")
}

func TestChatFactsFromCurrentMessage(t *testing.T) {
	store := &mockStore{}
	client := &mockClient{dims: 4, reply: "nice to meet you"}
	p := newTestPipeline(t, store, client)

	_, err := p.Chat(context.Background(), ChatRequest{
		Message: "my name is Carol",
		UserID:  uuid.New(),
	})
	require.NoError(t, err)

	var factsSeen bool
	for _, m := range client.gotMessages {
		if m.Role == llm.RoleSystem && strings.Contains(m.Content, "Carol") {
			factsSeen = true
		}
	}
	assert.True(t, factsSeen, "facts from the current message must be extracted")
}

func TestChatTopKOverride(t *testing.T) {
	store := &mockStore{}
	client := &mockClient{dims: 4}
	p := newTestPipeline(t, store, client)

	_, err := p.Chat(context.Background(), ChatRequest{
		Message: "hello",
		UserID:  uuid.New(),
		TopK:    3,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, store.searchLimit)
}

func TestChatNoDocumentsStillAnswers(t *testing.T) {
	store := &mockStore{}
	client := &mockClient{dims: 4, reply: "hello there"}
	p := newTestPipeline(t, store, client)

	result, err := p.Chat(context.Background(), ChatRequest{
		Message: "hi",
		UserID:  uuid.New(),
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", result.Reply)
	assert.Zero(t, result.SourceCount)
}

func TestChatProviderFailureSurfaces(t *testing.T) {
	store := &mockStore{}
	client := &mockClient{dims: 4, completeErr: fmt.Errorf("%w: timeout", llm.ErrProviderUnavailable)}
	p := newTestPipeline(t, store, client)

	_, err := p.Chat(context.Background(), ChatRequest{
		Message: "hi",
		UserID:  uuid.New(),
	})
	require.ErrorIs(t, err, llm.ErrProviderUnavailable)
}
