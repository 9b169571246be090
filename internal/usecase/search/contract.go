package search

import (
	"context"

	"github.com/kailas-cloud/imagedex/internal/domain"
	"github.com/kailas-cloud/imagedex/internal/domain/image"
)

// Store defines the storage contract for similarity search.
type Store interface {
	Get(ctx context.Context, id string) (image.Record, error)
	Nearest(
		ctx context.Context, field image.EmbeddingField,
		vector []float32, k int, dist image.Distance,
	) ([]image.Neighbor, error)
}

// TextEmbedder vectorizes query text.
type TextEmbedder interface {
	EmbedText(ctx context.Context, text string, dim int) (domain.EmbeddingResult, error)
}
