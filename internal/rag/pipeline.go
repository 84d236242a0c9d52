// Package rag wires the ingestion and chat flows together: extract, chunk,
// embed, store on the way in; embed, retrieve, compose, generate on the way
// out.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mirralabs/mirra/internal/chunk"
	"github.com/mirralabs/mirra/internal/config"
	"github.com/mirralabs/mirra/internal/facts"
	"github.com/mirralabs/mirra/internal/knowledge"
	"github.com/mirralabs/mirra/internal/llm"
	"github.com/mirralabs/mirra/internal/prompt"
)

// ErrEmptyExtraction indicates a supported document produced no usable text
// — a scanned PDF without a text layer, or a file of pure whitespace.
var ErrEmptyExtraction = errors.New("document contains no extractable text")

// Generation sampling parameters. Fixed rather than caller-supplied: reply
// tone should not vary per request.
const (
	generationTemperature = 0.7
	generationMaxTokens   = 1024
)

// ChunkStore is the slice of the knowledge store the pipeline depends on.
type ChunkStore interface {
	StoreChunks(ctx context.Context, fileID, userID uuid.UUID, chunks []knowledge.StoredChunk) error
	SimilaritySearch(ctx context.Context, userID uuid.UUID, query []float32, limit int) ([]knowledge.RetrievedChunk, error)
	DeleteByFile(ctx context.Context, fileID uuid.UUID) (int64, error)
}

// Pipeline executes ingestion and chat requests. Stateless between requests;
// safe for concurrent use.
type Pipeline struct {
	store    ChunkStore
	client   llm.Client
	splitter *chunk.Splitter
	logger   *slog.Logger

	defaultTopK    int
	defaultPersona string
}

// New creates a Pipeline from the given collaborators and defaults.
func New(store ChunkStore, client llm.Client, splitter *chunk.Splitter, cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	if store == nil || client == nil || splitter == nil || cfg == nil {
		return nil, fmt.Errorf("store, client, splitter, and config are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:          store,
		client:         client,
		splitter:       splitter,
		logger:         logger,
		defaultTopK:    cfg.TopKResults,
		defaultPersona: cfg.DefaultPersona,
	}, nil
}

// IngestRequest identifies a document to pull into the knowledge base.
type IngestRequest struct {
	FileID    uuid.UUID
	UserID    uuid.UUID
	FilePath  string
	MediaType string
}

// IngestResult reports what ingestion produced.
type IngestResult struct {
	ChunkCount int
}

// Ingest extracts the document's text, splits it into token windows, embeds
// every window, and replaces the document's stored chunks atomically. Any
// embedding failure aborts the whole request before storage is touched, so
// a document is never persisted with partial vectors.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (IngestResult, error) {
	text, err := chunk.Extract(req.FilePath, req.MediaType)
	if err != nil {
		return IngestResult{}, err
	}

	chunks, err := p.splitter.Split(text)
	if err != nil {
		return IngestResult{}, fmt.Errorf("splitting document %s: %w", req.FileID, err)
	}
	if len(chunks) == 0 {
		return IngestResult{}, fmt.Errorf("%w: file %s", ErrEmptyExtraction, req.FileID)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := p.client.Embed(ctx, texts)
	if err != nil {
		return IngestResult{}, fmt.Errorf("embedding document %s: %w", req.FileID, err)
	}

	stored := make([]knowledge.StoredChunk, len(chunks))
	for i, c := range chunks {
		stored[i] = knowledge.StoredChunk{
			Content:    c.Content,
			Index:      c.Index,
			TokenCount: c.TokenCount,
			Embedding:  vectors[i],
		}
	}

	if err := p.store.StoreChunks(ctx, req.FileID, req.UserID, stored); err != nil {
		return IngestResult{}, err
	}

	p.logger.InfoContext(ctx, "document ingested",
		slog.String("file_id", req.FileID.String()),
		slog.String("user_id", req.UserID.String()),
		slog.Int("chunks", len(chunks)))
	return IngestResult{ChunkCount: len(chunks)}, nil
}

// Delete removes every stored chunk of the document. Idempotent.
func (p *Pipeline) Delete(ctx context.Context, fileID uuid.UUID) (int64, error) {
	deleted, err := p.store.DeleteByFile(ctx, fileID)
	if err != nil {
		return 0, err
	}
	p.logger.InfoContext(ctx, "document deleted",
		slog.String("file_id", fileID.String()),
		slog.Int64("chunks", deleted))
	return deleted, nil
}

// ChatRequest is one conversational turn against a user's knowledge base.
type ChatRequest struct {
	Message string
	UserID  uuid.UUID
	History []llm.Message
	// TopK overrides the configured retrieval depth when positive.
	TopK int
	// Persona overrides the configured default when non-empty.
	Persona string
}

// ChatResult carries the generated reply and how many chunks informed it.
type ChatResult struct {
	Reply       string
	SourceCount int
}

// Chat embeds the message, retrieves the user's closest chunks, extracts
// facts from the conversation, composes the persona prompt, and asks the
// generation provider for a reply. A user with no stored documents still
// gets an answer, just without a context block.
func (p *Pipeline) Chat(ctx context.Context, req ChatRequest) (ChatResult, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = p.defaultTopK
	}
	persona := req.Persona
	if persona == "" {
		persona = p.defaultPersona
	}

	queryVec, err := p.client.EmbedQuery(ctx, req.Message)
	if err != nil {
		return ChatResult{}, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := p.store.SimilaritySearch(ctx, req.UserID, queryVec, topK)
	if err != nil {
		return ChatResult{}, err
	}

	conversation := make([]llm.Message, 0, len(req.History)+1)
	conversation = append(conversation, req.History...)
	conversation = append(conversation, llm.Message{Role: llm.RoleUser, Content: req.Message})
	known := facts.Extract(conversation)

	msgs := prompt.Compose(req.Message, hits, req.History, known, persona)

	reply, err := p.client.Complete(ctx, msgs, generationTemperature, generationMaxTokens)
	if err != nil {
		return ChatResult{}, err
	}

	p.logger.InfoContext(ctx, "chat completed",
		slog.String("user_id", req.UserID.String()),
		slog.String("persona", persona),
		slog.Int("sources", len(hits)))
	return ChatResult{Reply: reply, SourceCount: len(hits)}, nil
}
