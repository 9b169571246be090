package ingest

import (
	"context"

	"github.com/kailas-cloud/imagedex/internal/domain/image"
)

// Store defines the storage contract for catalog operations.
type Store interface {
	Get(ctx context.Context, id string) (image.Record, error)
	Page(ctx context.Context, cursor string, size int) (image.Page, error)
	Merge(ctx context.Context, id string, p image.Patch) error
	Delete(ctx context.Context, id string) error
}
