package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/andrew/rag-chat/pkg/models"
)

// OpenAIClient talks to an OpenAI-compatible chat completions endpoint such
// as Groq's.
type OpenAIClient struct {
	baseURL     string
	apiKey      string
	modelName   string
	modelConfig ModelConfig
	httpClient  *http.Client
}

var _ Completer = (*OpenAIClient)(nil)

// NewOpenAIClient creates a client for baseURL, which must not include the
// /v1 suffix.
func NewOpenAIClient(baseURL, apiKey, modelName string, modelConfig ModelConfig, timeout time.Duration) *OpenAIClient {
	return &OpenAIClient{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		apiKey:      apiKey,
		modelName:   modelName,
		modelConfig: modelConfig,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	TopP        float32       `json:"top_p,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatChoice struct {
	Index        int          `json:"index"`
	Message      *chatMessage `json:"message,omitempty"`
	Delta        *chatMessage `json:"delta,omitempty"`
	FinishReason string       `json:"finish_reason,omitempty"`
}

type chatCompletionResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

type apiErrorResponse struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *OpenAIClient) newRequest(ctx context.Context, segments []models.Message, stream bool) (*http.Request, error) {
	messages := make([]chatMessage, len(segments))
	for i, msg := range segments {
		messages[i] = chatMessage{Role: string(msg.Role), Content: msg.Content}
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model:       c.modelName,
		Messages:    messages,
		Temperature: c.modelConfig.Temperature,
		TopP:        c.modelConfig.TopP,
		MaxTokens:   c.modelConfig.MaxTokens,
		Stop:        c.modelConfig.StopSequences,
		Stream:      stream,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func apiError(status int, body []byte) error {
	var errResp apiErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != nil {
		return fmt.Errorf("LLM API error [%d]: %s (type: %s)", status, errResp.Error.Message, errResp.Error.Type)
	}
	return fmt.Errorf("LLM API error [%d]: %s", status, string(body))
}

// Complete sends a non-streaming completion request
func (c *OpenAIClient) Complete(ctx context.Context, segments []models.Message) (string, error) {
	req, err := c.newRequest(ctx, segments, false)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", apiError(resp.StatusCode, respBody)
	}

	var result chatCompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(result.Choices) == 0 || result.Choices[0].Message == nil {
		return "", nil
	}
	return result.Choices[0].Message.Content, nil
}

// CompleteStream sends a streaming request and yields each content delta
func (c *OpenAIClient) CompleteStream(ctx context.Context, segments []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		req, err := c.newRequest(ctx, segments, true)
		if err != nil {
			yield("", err)
			return
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			yield("", fmt.Errorf("failed to send request: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			yield("", apiError(resp.StatusCode, respBody))
			return
		}

		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil && err != io.EOF {
				yield("", fmt.Errorf("failed to read stream: %w", err))
				return
			}

			data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: ")
			if ok {
				if data == "[DONE]" {
					return
				}
				var chunk chatCompletionResponse
				if jsonErr := json.Unmarshal([]byte(data), &chunk); jsonErr != nil {
					yield("", fmt.Errorf("failed to parse stream chunk: %w", jsonErr))
					return
				}
				for _, choice := range chunk.Choices {
					if choice.Delta == nil || choice.Delta.Content == "" {
						continue
					}
					if !yield(choice.Delta.Content, nil) {
						return
					}
				}
			}

			if err == io.EOF {
				return
			}
		}
	}
}
