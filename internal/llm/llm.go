// Package llm defines the provider capabilities the RAG pipeline depends on
// — embedding batches of text and completing role-tagged prompts — and the
// interchangeable OpenAI and Gemini implementations behind them.
//
// Failure policy is strict everywhere: a provider failure surfaces as
// ErrProviderUnavailable and the caller decides whether to retry the whole
// request. Failed texts are never replaced with zero vectors, which would
// silently poison similarity ranking.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/mirralabs/mirra/internal/config"
)

// Message roles understood by both providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged entry of a prompt or conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

var (
	// ErrProviderUnavailable indicates an embedding or generation call
	// failed. Surfaced to the caller without internal retry.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrDimensionMismatch indicates a returned vector's length differs
	// from the configured embedding dimensionality. This is a contract
	// violation between config and provider, never silently tolerated.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Embedder produces fixed-dimensionality vectors for text, one vector per
// input, order-preserving.
type Embedder interface {
	// Embed embeds texts in provider-sized batches. The result has
	// exactly one vector per input, in input order. Empty input returns
	// an empty result without a network call.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimensions reports the vector length every call produces.
	Dimensions() int
}

// Generator completes a role-tagged message sequence into reply text.
type Generator interface {
	// Complete returns the model's reply, or the empty string when the
	// provider returns no content.
	Complete(ctx context.Context, messages []Message, temperature float32, maxTokens int) (string, error)
}

// Client bundles both capabilities of a single provider.
type Client interface {
	Embedder
	Generator
}

// New selects the provider implementation from configuration.
func New(ctx context.Context, cfg *config.Config) (Client, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.ChatModel, cfg.EmbeddingModel, cfg.EmbeddingDimensions), nil
	case config.ProviderGemini:
		return NewGemini(ctx, cfg.GeminiAPIKey, cfg.ChatModel, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// embedBatchSize is the per-request ceiling imposed on embedding calls.
// OpenAI accepts far more, but 100 keeps request bodies bounded and matches
// the batch size the retrieval quality was tuned with.
const embedBatchSize = 100

// batcher implements the ordered batching contract shared by providers:
// one awaited call per batch, results concatenated in batch order, strict
// dimension checking on every returned vector.
type batcher struct {
	dims int
	call func(ctx context.Context, texts []string) ([][]float32, error)
}

func (b *batcher) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		vecs, err := b.call(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("%w: got %d vectors for %d inputs", ErrProviderUnavailable, len(vecs), end-start)
		}
		for _, v := range vecs {
			if len(v) != b.dims {
				return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), b.dims)
			}
		}
		out = append(out, vecs...)
	}

	return out, nil
}

func (b *batcher) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := b.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (b *batcher) Dimensions() int {
	return b.dims
}
