package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/kailas-cloud/imagedex/internal/domain"
	"github.com/kailas-cloud/imagedex/internal/domain/image"
)

// Result size limits.
const (
	DefaultK = 10
	MaxK     = 100
)

// Query is a nearest-neighbor request against one embedding field.
type Query struct {
	Vector   []float32
	Field    image.EmbeddingField
	K        int
	Distance image.Distance
}

// Service answers similarity queries over the configured embedding fields.
type Service struct {
	store    Store
	embed    TextEmbedder
	fields   map[image.EmbeddingField]int
	distance image.Distance
}

// New creates a search service for the given embedding fields.
func New(store Store, fields []image.EmbeddingField) *Service {
	dims := make(map[image.EmbeddingField]int, len(fields))
	for _, f := range fields {
		if _, dim, err := image.ParseField(string(f)); err == nil {
			dims[f] = dim
		}
	}
	return &Service{store: store, fields: dims, distance: image.DotProduct}
}

// WithTextEmbedder enables SearchText.
func (s *Service) WithTextEmbedder(e TextEmbedder) *Service {
	s.embed = e
	return s
}

// WithDefaultDistance sets the measure used when a query leaves it empty.
func (s *Service) WithDefaultDistance(d image.Distance) *Service {
	if d != "" {
		s.distance = d
	}
	return s
}

// FindNearest returns up to K records closest to the query vector, closest first.
func (s *Service) FindNearest(ctx context.Context, q Query) ([]image.Neighbor, error) {
	if q.Distance == "" {
		q.Distance = s.distance
	}
	if err := s.validate(&q); err != nil {
		return nil, err
	}

	hits, err := s.store.Nearest(ctx, q.Field, q.Vector, q.K, q.Distance)
	if err != nil {
		return nil, fmt.Errorf("nearest: %w", err)
	}
	if len(hits) > q.K {
		hits = hits[:q.K]
	}
	return hits, nil
}

// SimilarTo finds the records closest to a stored record's own vector,
// excluding the record itself.
func (s *Service) SimilarTo(
	ctx context.Context, id string, field image.EmbeddingField, k int, dist image.Distance,
) ([]image.Neighbor, error) {
	if !image.ValidID(id) {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidID, id)
	}
	if _, ok := s.fields[field]; !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownField, field)
	}
	if k < 1 || k > MaxK {
		return nil, fmt.Errorf("%w: k must be between 1 and %d", domain.ErrInvalidRequest, MaxK)
	}

	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	vector := rec.Vector(field)
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: image %s has no %s", domain.ErrInvalidRequest, id, field)
	}

	// one extra slot for the record itself
	kk := min(k+1, MaxK)
	hits, err := s.FindNearest(ctx, Query{Vector: vector, Field: field, K: kk, Distance: dist})
	if err != nil {
		return nil, err
	}

	out := make([]image.Neighbor, 0, k)
	for _, h := range hits {
		if h.Record.ID == id {
			continue
		}
		out = append(out, h)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// SearchText embeds text at the field's dimension and runs FindNearest.
// With a multimodal embedder this also searches image fields.
func (s *Service) SearchText(
	ctx context.Context, text string, field image.EmbeddingField, k int, dist image.Distance,
) ([]image.Neighbor, error) {
	if s.embed == nil {
		return nil, fmt.Errorf("text search: %w", domain.ErrNotConfigured)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: query text is empty", domain.ErrInvalidRequest)
	}
	dim, ok := s.fields[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownField, field)
	}

	res, err := s.embed.EmbedText(ctx, text, dim)
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}
	return s.FindNearest(ctx, Query{Vector: res.Embedding, Field: field, K: k, Distance: dist})
}

// validate checks q against the configured fields and rewrites its distance
// into the canonical lower-case form stores expect.
func (s *Service) validate(q *Query) error {
	dim, ok := s.fields[q.Field]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownField, q.Field)
	}
	if len(q.Vector) != dim {
		return fmt.Errorf("%w: %s expects %d, got %d", domain.ErrVectorDimMismatch, q.Field, dim, len(q.Vector))
	}
	if q.K < 1 || q.K > MaxK {
		return fmt.Errorf("%w: k must be between 1 and %d", domain.ErrInvalidRequest, MaxK)
	}
	dist, err := image.ParseDistance(string(q.Distance))
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUnsupportedDistance, err)
	}
	q.Distance = dist
	return nil
}
