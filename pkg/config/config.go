// Package config provides configuration for the rag-chat binaries.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Supported completion providers.
const (
	ProviderOllama = "ollama"
	ProviderGroq   = "groq"
)

// Supported session store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreBolt   = "bolt"
)

// Config holds the rag-chat configuration.
type Config struct {
	// Completion provider
	LLMProvider string
	Temperature float64

	// Ollama settings
	OllamaHost       string
	OllamaModel      string
	OllamaEmbedModel string

	// Groq (OpenAI-compatible) settings
	GroqAPIKey  string
	GroqBaseURL string
	GroqModel   string

	// Qdrant settings
	QdrantHost       string
	QdrantPort       int
	QdrantCollection string

	// Session history
	SessionStore  string
	SessionDSN    string
	HistoryWindow int

	// Retrieval
	TopK int

	// Server settings
	HTTPPort int

	Debug bool
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		LLMProvider:      strings.ToLower(getEnv("LLM_PROVIDER", ProviderOllama)),
		Temperature:      getEnvFloat("TEMPERATURE", 0.5),
		OllamaHost:       getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OllamaModel:      getEnv("OLLAMA_MODEL", "llama3.2"),
		OllamaEmbedModel: getEnv("OLLAMA_EMBED_MODEL", "llama3"),
		GroqAPIKey:       getEnv("GROQ_API_KEY", ""),
		GroqBaseURL:      getEnv("GROQ_BASE_URL", "https://api.groq.com/openai"),
		GroqModel:        getEnv("GROQ_MODEL", "llama-3.3-70b-versatile"),
		QdrantHost:       getEnv("QDRANT_HOST", "localhost"),
		QdrantPort:       getEnvInt("QDRANT_PORT", 6334),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "stonks_rag"),
		SessionStore:     strings.ToLower(getEnv("SESSION_STORE", StoreMemory)),
		SessionDSN:       getEnv("SESSION_DSN", ""),
		HistoryWindow:    getEnvInt("HISTORY_WINDOW", 20),
		TopK:             getEnvInt("RETRIEVAL_TOP_K", 2),
		HTTPPort:         getEnvInt("HTTP_PORT", 5000),
		Debug:            getEnvBool("DEBUG", false),
	}
}

// Validate checks that the selected providers and backends are usable.
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case ProviderOllama:
	case ProviderGroq:
		if c.GroqAPIKey == "" {
			return fmt.Errorf("GROQ_API_KEY is required for provider %q", ProviderGroq)
		}
	default:
		return fmt.Errorf("invalid LLM provider: %s, please use '%s' or '%s'", c.LLMProvider, ProviderOllama, ProviderGroq)
	}

	switch c.SessionStore {
	case StoreMemory:
	case StoreSQLite, StoreBolt:
		if c.SessionDSN == "" {
			return fmt.Errorf("SESSION_DSN is required for session store %q", c.SessionStore)
		}
	default:
		return fmt.Errorf("invalid session store: %s", c.SessionStore)
	}

	if c.TopK <= 0 {
		return fmt.Errorf("retrieval top-k must be positive, got %d", c.TopK)
	}
	if c.HistoryWindow < 0 {
		return fmt.Errorf("history window must not be negative, got %d", c.HistoryWindow)
	}
	return nil
}

// QdrantAddr returns the host:port of the Qdrant gRPC endpoint.
func (c *Config) QdrantAddr() string {
	return fmt.Sprintf("%s:%d", c.QdrantHost, c.QdrantPort)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
