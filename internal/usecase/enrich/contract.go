package enrich

import (
	"context"

	"github.com/kailas-cloud/imagedex/internal/domain"
	"github.com/kailas-cloud/imagedex/internal/domain/image"
)

// Store pages through image records and merges enrichment results back.
type Store interface {
	Page(ctx context.Context, cursor string, size int) (image.Page, error)
	Merge(ctx context.Context, id string, p image.Patch) error
}

// CursorStore persists the resume point between runs.
type CursorStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, cursor string) error
	Clear(ctx context.Context) error
}

// AssociationLookup resolves the company and album an image belongs to.
type AssociationLookup interface {
	Lookup(ctx context.Context, imageID string) (image.Association, bool, error)
}

// Annotator describes an image in one provider call.
type Annotator interface {
	Annotate(ctx context.Context, ref image.Ref) (domain.Annotation, error)
}

// PairEmbedder returns the text and image vectors of one dimension.
type PairEmbedder interface {
	EmbedPair(ctx context.Context, req domain.PairRequest) (domain.VectorPair, error)
}
