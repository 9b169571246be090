// Package gemini adapts the Gemini / Vertex AI generative API to the
// annotation and embedding ports.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/kailas-cloud/imagedex/internal/domain"
	"github.com/kailas-cloud/imagedex/internal/metrics"
)

const provider = "gemini"

// Config holds the Gemini client settings. With Project set the Vertex AI
// backend is used; otherwise APIKey selects the Gemini API.
type Config struct {
	APIKey         string
	Project        string
	Location       string
	Model          string
	EmbeddingModel string
	// BaseURL overrides the endpoint, for tests.
	BaseURL string
	Logger  *zap.Logger
}

// Client wraps a genai client shared by the annotator and the embedders.
type Client struct {
	genai          *genai.Client
	model          string
	embeddingModel string
	logger         *zap.Logger
}

// NewClient creates a Gemini client.
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.Project != "" {
		cc = &genai.ClientConfig{
			Backend:  genai.BackendVertexAI,
			Project:  cfg.Project,
			Location: cfg.Location,
		}
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	c, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		genai:          c,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		logger:         logger,
	}, nil
}

// Model returns the generative model name.
func (c *Client) Model() string { return c.model }

// EmbeddingModel returns the embedding model name.
func (c *Client) EmbeddingModel() string { return c.embeddingModel }

// HealthCheck verifies the generative model is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.genai.Models.Get(ctx, c.model, nil); err != nil {
		return fmt.Errorf("get model %s: %w", c.model, err)
	}
	return nil
}

// observe records transport metrics for one request.
func observe(model, op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
		metrics.ProviderErrorsTotal.WithLabelValues(provider, model, errorType(err)).Inc()
	}
	metrics.ProviderRequestsTotal.WithLabelValues(provider, model, op, status).Inc()
	metrics.ProviderRequestDuration.WithLabelValues(provider, model, op).Observe(time.Since(start).Seconds())
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

// mapError translates genai errors into domain sentinels.
func mapError(err error) error {
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	}
	if code == http.StatusTooManyRequests {
		return fmt.Errorf("gemini: %w: %w", domain.ErrRateLimited, err)
	}
	return fmt.Errorf("gemini: %w: %w", domain.ErrProviderError, err)
}
