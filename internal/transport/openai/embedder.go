// Package openai adapts OpenAI-compatible APIs (OpenAI, Nebius, vLLM) to the
// text embedding and annotation ports.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/imagedex/internal/domain"
	"github.com/kailas-cloud/imagedex/internal/metrics"
)

// Config holds the provider settings.
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	User     string
	Provider string
	Logger   *zap.Logger
}

func newClient(cfg *Config) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

func providerName(cfg *Config) string {
	if cfg.Provider == "" {
		return "openai"
	}
	return cfg.Provider
}

// Embedder is a text embedding provider using the OpenAI-compatible API.
type Embedder struct {
	client   *openai.Client
	model    openai.EmbeddingModel
	user     string
	provider string
	logger   *zap.Logger
}

// NewEmbedder creates an OpenAI-compatible embedding provider.
func NewEmbedder(cfg *Config) *Embedder {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Embedder{
		client:   newClient(cfg),
		model:    openai.EmbeddingModel(cfg.Model),
		user:     cfg.User,
		provider: providerName(cfg),
		logger:   logger,
	}
}

// EmbedText implements domain.TextEmbedder. dim is passed as the
// "dimensions" parameter; models without Matryoshka support reject it.
func (e *Embedder) EmbedText(ctx context.Context, text string, dim int) (domain.EmbeddingResult, error) {
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           e.user,
	}
	if dim > 0 {
		req.Dimensions = dim
	}

	model := string(e.model)
	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		err = parseAPIError(err)
		observe(e.provider, model, "embed_text", start, err)
		return domain.EmbeddingResult{}, err
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		err = fmt.Errorf("empty embedding response: %w", domain.ErrEmptyEmbedding)
		observe(e.provider, model, "embed_text", start, err)
		return domain.EmbeddingResult{}, err
	}

	observe(e.provider, model, "embed_text", start, nil)
	recordTokens(e.provider, model, resp.Usage.PromptTokens, resp.Usage.TotalTokens)

	return domain.EmbeddingResult{
		Embedding:    resp.Data[0].Embedding,
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func observe(provider, model, op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
		metrics.ProviderErrorsTotal.WithLabelValues(provider, model, errorType(err)).Inc()
	}
	metrics.ProviderRequestsTotal.WithLabelValues(provider, model, op, status).Inc()
	metrics.ProviderRequestDuration.WithLabelValues(provider, model, op).Observe(time.Since(start).Seconds())
}

func recordTokens(provider, model string, prompt, total int) {
	if total <= 0 {
		return
	}
	metrics.ProviderTokensTotal.WithLabelValues(provider, model, "prompt").Add(float64(prompt))
	metrics.ProviderTokensTotal.WithLabelValues(provider, model, "total").Add(float64(total))
}

func errorType(err error) string {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrEmptyEmbedding):
		return "empty_response"
	default:
		return "api_error"
	}
}

// parseAPIError extracts a human-readable error from the API response.
// 429 maps to domain.ErrRateLimited, everything else to domain.ErrProviderError.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("provider API error %d: %s: %w",
			reqErr.HTTPStatusCode, detail, sentinel(reqErr.HTTPStatusCode))
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("provider API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, sentinel(apiErr.HTTPStatusCode))
	}

	return fmt.Errorf("provider request failed: %w: %w", domain.ErrProviderError, err)
}

func sentinel(status int) error {
	if status == http.StatusTooManyRequests {
		return domain.ErrRateLimited
	}
	return domain.ErrProviderError
}

// extractDetail extracts the "detail" field from a JSON error body (Nebius error format).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
