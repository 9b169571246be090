package image

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/imagedex/internal/db"
	domimg "github.com/kailas-cloud/imagedex/internal/domain/image"
)

// metricFor maps a domain distance to the FT distance metric.
func metricFor(d domimg.Distance) db.DistanceMetric {
	switch d {
	case domimg.Cosine:
		return db.DistanceCosine
	case domimg.Euclidean:
		return db.DistanceL2
	default:
		return db.DistanceIP
	}
}

// vectorAlias names the index attribute for a field under one measure.
// Each measure needs its own vector attribute since FT fixes the metric per field.
func vectorAlias(f domimg.EmbeddingField, d domimg.Distance) string {
	return fmt.Sprintf("%s__%s", f, metricSuffix(d))
}

func metricSuffix(d domimg.Distance) string {
	switch d {
	case domimg.Cosine:
		return "cosine"
	case domimg.Euclidean:
		return "l2"
	default:
		return "ip"
	}
}

// buildIndex creates the FT definition over image documents: tag and numeric
// attributes for filtering plus one vector attribute per field and measure.
func (r *Repo) buildIndex() (*db.IndexDefinition, error) {
	b := db.NewIndex(r.indexName).
		Prefix(r.prefix+"image:").
		Tag("$."+fieldBucket, fieldBucket).
		Tag("$."+fieldCompanyID, fieldCompanyID).
		Tag("$."+fieldAlbumID, fieldAlbumID).
		Numeric("$."+fieldCreated, fieldCreated).
		Numeric("$."+fieldUpdated, fieldUpdated)

	for _, f := range r.fields {
		_, dim, err := domimg.ParseField(string(f))
		if err != nil {
			return nil, err
		}
		for _, d := range r.distances {
			p := r.vector
			p.Dim = dim
			p.Distance = metricFor(d)
			b.Vector("$."+string(f), vectorAlias(f, d), p)
		}
	}

	def, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("index definition: %w", err)
	}
	return def, nil
}

// EnsureIndex creates the FT index unless it already exists.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.indexName)
	if err != nil {
		return fmt.Errorf("check index %s: %w", r.indexName, wrapErr(err))
	}
	if exists {
		return nil
	}

	return r.createIndex(ctx)
}

// RebuildIndex drops the FT index and creates it from the current field and
// measure configuration. Documents are kept; the server re-indexes them in
// the background. Needed after embedding dimensions or distances change.
func (r *Repo) RebuildIndex(ctx context.Context) error {
	if err := r.store.DropIndex(ctx, r.indexName); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop index %s: %w", r.indexName, wrapErr(err))
	}
	return r.createIndex(ctx)
}

// IndexName is the FT index the repository queries.
func (r *Repo) IndexName() string { return r.indexName }

func (r *Repo) createIndex(ctx context.Context) error {
	def, err := r.buildIndex()
	if err != nil {
		return err
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", r.indexName, wrapErr(err))
	}
	return nil
}
