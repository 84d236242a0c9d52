package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI talks to the OpenAI API for both embeddings and chat completions.
type OpenAI struct {
	batcher

	client     *openai.Client
	chatModel  string
	embedModel string
}

// NewOpenAI creates an OpenAI-backed client. dims is the expected vector
// length; every returned embedding is checked against it.
func NewOpenAI(apiKey, chatModel, embedModel string, dims int) *OpenAI {
	c := &OpenAI{
		client:     openai.NewClient(apiKey),
		chatModel:  chatModel,
		embedModel: embedModel,
	}
	c.batcher = batcher{dims: dims, call: c.embedBatch}
	return c
}

func (c *OpenAI) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.embedModel),
		Input: texts,
	})
	if err != nil {
		return nil, err
	}

	// The API tags each vector with its input index; order by it rather
	// than trusting response order.
	vecs := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

// Complete sends the message sequence as a chat completion request.
func (c *OpenAI) Complete(ctx context.Context, messages []Message, temperature float32, maxTokens int) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.chatModel,
		Messages:    msgs,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
