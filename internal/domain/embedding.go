package domain

import (
	"context"

	"github.com/kailas-cloud/imagedex/internal/domain/image"
)

// TextEmbedder vectorizes text at a requested output dimension.
type TextEmbedder interface {
	EmbedText(ctx context.Context, text string, dim int) (EmbeddingResult, error)
}

// ImageEmbedder vectorizes the image at ref at a requested output dimension.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, ref image.Ref, dim int) (EmbeddingResult, error)
}

// PairEmbedder produces the text and image vectors of one dimension together.
// An empty vector in the result means the provider returned nothing for that
// kind; callers treat it as a transient miss.
type PairEmbedder interface {
	EmbedPair(ctx context.Context, req PairRequest) (VectorPair, error)
}

// HealthChecker verifies provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries one vector and token usage through the decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// PairRequest asks for the vectors of one dimension. Kinds not listed are skipped.
type PairRequest struct {
	Ref   image.Ref
	Text  string
	Dim   int
	Kinds []image.Kind
}

// Wants reports whether kind was requested.
func (r PairRequest) Wants(kind image.Kind) bool {
	for _, k := range r.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// VectorPair is the result of an EmbedPair call.
type VectorPair struct {
	Text  []float32
	Image []float32
}

// Get returns the vector for kind.
func (p VectorPair) Get(kind image.Kind) []float32 {
	if kind == image.KindImage {
		return p.Image
	}
	return p.Text
}
