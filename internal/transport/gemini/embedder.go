package gemini

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/kailas-cloud/imagedex/internal/domain"
	"github.com/kailas-cloud/imagedex/internal/domain/image"
)

// TextEmbedder embeds text with a Gemini embedding model.
type TextEmbedder struct {
	c *Client
}

// NewTextEmbedder creates a Gemini text embedder.
func NewTextEmbedder(c *Client) *TextEmbedder {
	return &TextEmbedder{c: c}
}

// EmbedText implements domain.TextEmbedder.
func (e *TextEmbedder) EmbedText(ctx context.Context, text string, dim int) (domain.EmbeddingResult, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{genai.NewPartFromText(text)}, genai.RoleUser),
	}
	return e.c.embed(ctx, "embed_text", contents, dim)
}

// ImageEmbedder embeds images with a multimodal Gemini embedding model. The
// image is passed by URI so the bytes never transit this process.
type ImageEmbedder struct {
	c *Client
}

// NewImageEmbedder creates a Gemini image embedder.
func NewImageEmbedder(c *Client) *ImageEmbedder {
	return &ImageEmbedder{c: c}
}

// EmbedImage implements domain.ImageEmbedder.
func (e *ImageEmbedder) EmbedImage(ctx context.Context, ref image.Ref, dim int) (domain.EmbeddingResult, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{genai.NewPartFromURI(ref.URI(), ref.MIMEType())}, genai.RoleUser),
	}
	return e.c.embed(ctx, "embed_image", contents, dim)
}

func (c *Client) embed(ctx context.Context, op string, contents []*genai.Content, dim int) (domain.EmbeddingResult, error) {
	cfg := &genai.EmbedContentConfig{}
	if dim > 0 {
		cfg.OutputDimensionality = genai.Ptr(int32(dim))
	}

	start := time.Now()
	resp, err := c.genai.Models.EmbedContent(ctx, c.embeddingModel, contents, cfg)
	if err != nil {
		err = mapError(err)
		observe(c.embeddingModel, op, start, err)
		return domain.EmbeddingResult{}, err
	}
	if len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
		err = fmt.Errorf("gemini %s: %w", op, domain.ErrEmptyEmbedding)
		observe(c.embeddingModel, op, start, err)
		return domain.EmbeddingResult{}, err
	}

	observe(c.embeddingModel, op, start, nil)
	return domain.EmbeddingResult{Embedding: resp.Embeddings[0].Values}, nil
}
