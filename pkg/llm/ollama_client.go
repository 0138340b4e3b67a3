package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/andrew/rag-chat/pkg/logging"
	"github.com/andrew/rag-chat/pkg/models"
)

// errStopStream aborts the Ollama response callback when the consumer of a
// stream stops ranging.
var errStopStream = errors.New("stream stopped by consumer")

// OllamaClient is a client that uses the Ollama API for chat completion and
// embeddings
type OllamaClient struct {
	client      *api.Client
	modelName   string
	embedModel  string
	modelConfig ModelConfig

	embedRetries   int
	retryBaseDelay time.Duration
	embedTimeout   time.Duration
}

var (
	_ Completer = (*OllamaClient)(nil)
	_ Embedder  = (*OllamaClient)(nil)
)

// NewOllamaClient creates a new client for interacting with an Ollama server.
// rawURL defaults to http://localhost:11434 when empty.
func NewOllamaClient(rawURL, modelName string, modelConfig ModelConfig) (*OllamaClient, error) {
	if rawURL == "" {
		rawURL = "http://localhost:11434"
	}

	baseURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid OLLAMA_HOST URL: %w", err)
	}

	// No client timeout: long generations are bounded by the caller's context
	httpClient := &http.Client{}

	return &OllamaClient{
		client:         api.NewClient(baseURL, httpClient),
		modelName:      modelName,
		embedModel:     modelName,
		modelConfig:    modelConfig,
		embedRetries:   3,
		retryBaseDelay: time.Second,
		embedTimeout:   10 * time.Second,
	}, nil
}

// WithEmbedModel sets the model used by EmbedText. It must match the model
// the index was built with.
func (c *OllamaClient) WithEmbedModel(model string) *OllamaClient {
	c.embedModel = model
	return c
}

// Ping verifies the Ollama server is reachable
func (c *OllamaClient) Ping(ctx context.Context) error {
	if err := c.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("cannot connect to Ollama server: %w", err)
	}
	return nil
}

func (c *OllamaClient) chatRequest(segments []models.Message, stream bool) *api.ChatRequest {
	messages := make([]api.Message, len(segments))
	for i, msg := range segments {
		messages[i] = api.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}

	return &api.ChatRequest{
		Model:    c.modelName,
		Messages: messages,
		Stream:   &stream,
		Options:  c.modelConfig.options(),
	}
}

// Complete sends the segments and waits for the full reply
func (c *OllamaClient) Complete(ctx context.Context, segments []models.Message) (string, error) {
	var content []byte
	err := c.client.Chat(ctx, c.chatRequest(segments, false), func(resp api.ChatResponse) error {
		content = append(content, resp.Message.Content...)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat failed: %w", err)
	}
	return string(content), nil
}

// CompleteStream yields reply fragments as Ollama produces them
func (c *OllamaClient) CompleteStream(ctx context.Context, segments []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		err := c.client.Chat(ctx, c.chatRequest(segments, true), func(resp api.ChatResponse) error {
			if resp.Message.Content == "" {
				return nil
			}
			if !yield(resp.Message.Content, nil) {
				return errStopStream
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopStream) {
			yield("", fmt.Errorf("ollama chat stream failed: %w", err))
		}
	}
}

// EmbedText generates a vector embedding for text, retrying with
// exponential backoff
func (c *OllamaClient) EmbedText(ctx context.Context, text string) ([]float32, error) {
	req := &api.EmbeddingRequest{
		Model:  c.embedModel,
		Prompt: text,
	}

	var lastErr error
	for attempt := 0; attempt < c.embedRetries; attempt++ {
		if attempt > 0 {
			retryDelay := time.Duration(math.Pow(2, float64(attempt-1))) * c.retryBaseDelay
			logging.Debugf("⚠️ Embedding attempt %d/%d failed: %v (retrying in %v)", attempt, c.embedRetries, lastErr, retryDelay)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
		}

		resp, err := c.embed(ctx, req)
		if err == nil {
			vector := make([]float32, len(resp.Embedding))
			for i, val := range resp.Embedding {
				vector[i] = float32(val)
			}
			return vector, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("embedding failed after %d attempts: %w", c.embedRetries, lastErr)
}

func (c *OllamaClient) embed(ctx context.Context, req *api.EmbeddingRequest) (*api.EmbeddingResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.embedTimeout)
	defer cancel()
	return c.client.Embeddings(reqCtx, req)
}

// options converts the config to Ollama's option map
func (mc ModelConfig) options() map[string]interface{} {
	opts := map[string]interface{}{
		"temperature": mc.Temperature,
	}
	if mc.TopP > 0 {
		opts["top_p"] = mc.TopP
	}
	if mc.TopK > 0 {
		opts["top_k"] = mc.TopK
	}
	if mc.MaxTokens > 0 {
		opts["num_predict"] = mc.MaxTokens
	}
	if len(mc.StopSequences) > 0 {
		opts["stop"] = mc.StopSequences
	}
	return opts
}
