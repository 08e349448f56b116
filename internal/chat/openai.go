package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Jullian93/BookBuddy/pkg/utils"
)

const defaultRequestTimeout = 60 * time.Second

// OpenAIChat implements Completer against an OpenAI-compatible
// /v1/chat/completions endpoint.
type OpenAIChat struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

// OpenAIChatOption configures an OpenAIChat.
type OpenAIChatOption func(*OpenAIChat)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) OpenAIChatOption {
	return func(c *OpenAIChat) { c.client.Timeout = d }
}

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) OpenAIChatOption {
	return func(c *OpenAIChat) { c.logger = l }
}

// NewOpenAIChat creates a chat client for the given endpoint and model.
func NewOpenAIChat(baseURL, apiKey, model string, opts ...OpenAIChatOption) *OpenAIChat {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	if model == "" {
		model = "gpt-4o"
	}
	c := &OpenAIChat{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: defaultRequestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends the prompt and returns the raw completion text.
func (c *OpenAIChat) Complete(ctx context.Context, req *CompletionRequest) (string, error) {
	body := chatCompletionRequest{
		Model:       c.model,
		Temperature: req.Temperature,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
	}
	if req.JSONResponse {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("calling chat provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat provider returned status %d", resp.StatusCode)
	}

	var chatResp chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("chat provider returned no choices")
	}

	content := chatResp.Choices[0].Message.Content
	if c.logger != nil {
		c.logger.Debug("chat completion",
			zap.Int("content_len", len(content)),
			zap.String("content", utils.Truncate(content, 200)))
	}
	return content, nil
}

// Close is a no-op for OpenAIChat.
func (c *OpenAIChat) Close() error {
	return nil
}
