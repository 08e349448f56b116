package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const defaultRequestTimeout = 30 * time.Second

// OpenAIEmbedder implements Embedder against an OpenAI-compatible
// /v1/embeddings endpoint. A slow provider is bounded by the client
// timeout; expiry surfaces as an ordinary error so callers can treat it
// as a provider failure.
type OpenAIEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	client     *http.Client
	cache      *EmbeddingCache
	logger     *zap.Logger
}

// OpenAIEmbedderOption configures an OpenAIEmbedder.
type OpenAIEmbedderOption func(*OpenAIEmbedder)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) OpenAIEmbedderOption {
	return func(e *OpenAIEmbedder) {
		e.client.Timeout = d
	}
}

// WithCache fronts the provider with an LRU cache keyed by input text.
func WithCache(c *EmbeddingCache) OpenAIEmbedderOption {
	return func(e *OpenAIEmbedder) { e.cache = c }
}

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) OpenAIEmbedderOption {
	return func(e *OpenAIEmbedder) { e.logger = l }
}

// NewOpenAIEmbedder creates an embedder for the given endpoint and model.
// dimensions is the expected embedding width and is validated against
// provider responses.
func NewOpenAIEmbedder(baseURL, apiKey, model string, dimensions int, opts ...OpenAIEmbedderOption) *OpenAIEmbedder {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	e := &OpenAIEmbedder{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		dimensions: dimensions,
		client:     &http.Client{Timeout: defaultRequestTimeout},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type embeddingsRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed generates an embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.cache != nil {
		if vec, ok := e.cache.Get(text); ok {
			return vec, nil
		}
	}

	jsonData, err := json.Marshal(embeddingsRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/embeddings", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling embedding provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding provider returned status %d", resp.StatusCode)
	}

	var embResp embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(embResp.Data) == 0 {
		return nil, fmt.Errorf("embedding provider returned no data")
	}
	vec := embResp.Data[0].Embedding
	if e.dimensions > 0 && len(vec) != e.dimensions {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, expected %d", len(vec), e.dimensions)
	}

	if e.logger != nil {
		e.logger.Debug("embedding created", zap.Int("dimensions", len(vec)), zap.Int("text_len", len(text)))
	}
	if e.cache != nil {
		e.cache.Set(text, vec)
	}
	return vec, nil
}

// EmbedBatch generates embeddings for multiple texts sequentially.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the configured embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for OpenAIEmbedder.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
