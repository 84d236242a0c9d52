// Package config manages mirra's configuration with multi-source priority:
// environment variables override the optional config file, which overrides
// built-in defaults. The resulting Config is validated once at startup and
// passed by injection into each component constructor; there is no ambient
// mutable global.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Provider identifiers accepted in Config.Provider.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Persona mode identifiers accepted in Config.DefaultPersona and in chat
// requests.
const (
	PersonaAssistant = "assistant"
	PersonaOwner     = "owner"
)

// Config stores the full service configuration.
// Sensitive fields are masked in MarshalJSON; see maskSecret.
type Config struct {
	// AI provider selection and model identifiers.
	Provider       string `mapstructure:"provider" json:"provider"` // "openai" (default) or "gemini"
	ChatModel      string `mapstructure:"chat_model" json:"chat_model"`
	EmbeddingModel string `mapstructure:"embedding_model" json:"embedding_model"`
	OpenAIAPIKey   string `mapstructure:"openai_api_key" json:"openai_api_key"` // SENSITIVE: masked in MarshalJSON
	GeminiAPIKey   string `mapstructure:"gemini_api_key" json:"gemini_api_key"` // SENSITIVE: masked in MarshalJSON

	// RAG parameters.
	ChunkSize           int    `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap        int    `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	TopKResults         int    `mapstructure:"top_k_results" json:"top_k_results"`
	EmbeddingDimensions int    `mapstructure:"embedding_dimensions" json:"embedding_dimensions"`
	DefaultPersona      string `mapstructure:"default_persona" json:"default_persona"`

	// PostgreSQL connection (see storage.go for DSN helpers).
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// HTTP server.
	ListenAddr string  `mapstructure:"listen_addr" json:"listen_addr"`
	TrustProxy bool    `mapstructure:"trust_proxy" json:"trust_proxy"` // trust X-Real-IP/X-Forwarded-For behind a reverse proxy
	RateLimit  float64 `mapstructure:"rate_limit" json:"rate_limit"`   // tokens per second per IP
	RateBurst  int     `mapstructure:"rate_burst" json:"rate_burst"`
}

// Load loads configuration.
// Priority: environment variables > config file > defaults.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".mirra")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults plus env cover it.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, when set, wins over the individual postgres_* fields.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderOpenAI)
	v.SetDefault("chat_model", "gpt-4o-mini")
	v.SetDefault("embedding_model", "text-embedding-3-small")

	v.SetDefault("chunk_size", 512)
	v.SetDefault("chunk_overlap", 64)
	v.SetDefault("top_k_results", 5)
	v.SetDefault("embedding_dimensions", 1536)
	v.SetDefault("default_persona", PersonaAssistant)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "mirra")
	v.SetDefault("postgres_password", "mirra_dev_password")
	v.SetDefault("postgres_db_name", "mirra")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("listen_addr", "127.0.0.1:8000")
	v.SetDefault("trust_proxy", false)
	v.SetDefault("rate_limit", 10.0)
	v.SetDefault("rate_burst", 20)
}

// bindEnvVariables binds environment variables explicitly. Secrets are only
// ever read from the environment, never written to the config file.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("openai_api_key", "OPENAI_API_KEY")
	mustBind("gemini_api_key", "GEMINI_API_KEY")

	mustBind("provider", "MIRRA_PROVIDER")
	mustBind("chat_model", "MIRRA_CHAT_MODEL")
	mustBind("embedding_model", "MIRRA_EMBEDDING_MODEL")
	mustBind("default_persona", "MIRRA_DEFAULT_PERSONA")
	mustBind("listen_addr", "MIRRA_LISTEN_ADDR")
	mustBind("trust_proxy", "MIRRA_TRUST_PROXY")
	mustBind("rate_limit", "MIRRA_RATE_LIMIT")
	mustBind("rate_burst", "MIRRA_RATE_BURST")
}

// maskedValue replaces secret content in logs. Full-width blocks avoid
// accidental substring matches against the real secret.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully
// masked; longer ones keep the first and last two characters for debugging.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON masks sensitive fields. Update this when adding new secrets.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.OpenAIAPIKey = maskSecret(a.OpenAIAPIKey)
	a.GeminiAPIKey = maskSecret(a.GeminiAPIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer so printing a Config never leaks secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
