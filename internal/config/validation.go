package config

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel validation errors, checked with errors.Is by callers that want
// to distinguish configuration problems.
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrMissingAPIKey indicates the selected provider's API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidChunking indicates chunk_size/chunk_overlap violate the
	// overlap < size precondition or are out of range.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidTopK indicates top_k_results is out of range.
	ErrInvalidTopK = errors.New("invalid top_k_results")

	// ErrInvalidDimensions indicates embedding_dimensions is out of range.
	ErrInvalidDimensions = errors.New("invalid embedding_dimensions")

	// ErrInvalidPersona indicates default_persona names no known mode.
	ErrInvalidPersona = errors.New("invalid persona mode")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates an unknown sslmode value.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidRateLimit indicates rate limit settings are negative.
	ErrInvalidRateLimit = errors.New("invalid rate limit")
)

var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks the configuration and fails fast with a sentinel error.
// Chunking preconditions are enforced here so a misconfigured overlap can
// never reach the chunker.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderOpenAI:
		if strings.TrimSpace(c.OpenAIAPIKey) == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY is required for provider %q", ErrMissingAPIKey, c.Provider)
		}
	case ProviderGemini:
		if strings.TrimSpace(c.GeminiAPIKey) == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY is required for provider %q", ErrMissingAPIKey, c.Provider)
		}
	default:
		return fmt.Errorf("%w: %q (supported: %s, %s)", ErrInvalidProvider, c.Provider, ProviderOpenAI, ProviderGemini)
	}

	if strings.TrimSpace(c.ChatModel) == "" {
		return fmt.Errorf("%w: chat_model must not be empty", ErrInvalidProvider)
	}
	if strings.TrimSpace(c.EmbeddingModel) == "" {
		return fmt.Errorf("%w: embedding_model must not be empty", ErrInvalidProvider)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must satisfy 0 <= overlap < chunk_size, got overlap=%d size=%d",
			ErrInvalidChunking, c.ChunkOverlap, c.ChunkSize)
	}

	if c.TopKResults < 1 || c.TopKResults > 100 {
		return fmt.Errorf("%w: must be in [1, 100], got %d", ErrInvalidTopK, c.TopKResults)
	}

	if c.EmbeddingDimensions < 1 || c.EmbeddingDimensions > 16000 {
		return fmt.Errorf("%w: must be in [1, 16000], got %d", ErrInvalidDimensions, c.EmbeddingDimensions)
	}

	if c.DefaultPersona != PersonaAssistant && c.DefaultPersona != PersonaOwner {
		return fmt.Errorf("%w: %q (supported: %s, %s)", ErrInvalidPersona, c.DefaultPersona, PersonaAssistant, PersonaOwner)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	if c.RateLimit < 0 || c.RateBurst < 0 {
		return fmt.Errorf("%w: rate_limit=%v rate_burst=%d", ErrInvalidRateLimit, c.RateLimit, c.RateBurst)
	}

	return nil
}
