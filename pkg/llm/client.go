package llm

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/andrew/rag-chat/pkg/config"
	"github.com/andrew/rag-chat/pkg/models"
)

// Completer produces a reply for a list of prompt segments, either whole or
// as a stream of text fragments.
type Completer interface {
	Complete(ctx context.Context, segments []models.Message) (string, error)

	// CompleteStream returns a finite sequence of fragments. A non-nil error
	// ends the sequence; the consumer may stop early by breaking out of the
	// range loop.
	CompleteStream(ctx context.Context, segments []models.Message) iter.Seq2[string, error]
}

// Embedder turns text into a vector for similarity search
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// ModelConfig holds configuration parameters for model generation
type ModelConfig struct {
	Temperature   float32
	TopP          float32
	TopK          int
	MaxTokens     int
	StopSequences []string
}

// DefaultModelConfig returns a default configuration
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Temperature: 0.5,
		TopP:        0.9,
		MaxTokens:   2048,
	}
}

// NewCompleter builds the completion provider selected in cfg
func NewCompleter(cfg *config.Config) (Completer, error) {
	modelConfig := DefaultModelConfig()
	modelConfig.Temperature = float32(cfg.Temperature)

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		return NewOllamaClient(cfg.OllamaHost, cfg.OllamaModel, modelConfig)
	case config.ProviderGroq:
		return NewOpenAIClient(cfg.GroqBaseURL, cfg.GroqAPIKey, cfg.GroqModel, modelConfig, 2*time.Minute), nil
	default:
		return nil, fmt.Errorf("invalid LLM provider: %s, please use '%s' or '%s'", cfg.LLMProvider, config.ProviderOllama, config.ProviderGroq)
	}
}
