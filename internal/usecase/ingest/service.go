package ingest

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/kailas-cloud/imagedex/internal/domain"
	"github.com/kailas-cloud/imagedex/internal/domain/image"
)

// MaxBatchSize is the maximum number of requests per AddAll call.
const MaxBatchSize = 500

// Request registers an image by its storage location. Description, labels,
// colors and embeddings are optional values computed at upload time; they
// only fill fields the stored record lacks.
type Request struct {
	Bucket      string
	Path        string
	Name        string
	URL         string
	Width       int
	Height      int
	CompanyID   string
	AlbumID     string
	Description string
	Labels      []string
	Colors      []image.ColorWeight
	Embeddings  map[image.EmbeddingField][]float32
}

// Result is the outcome of one Add.
type Result struct {
	ID      string
	Created bool
	Err     error
}

// Service registers, lists and removes image records.
type Service struct {
	store           Store
	now             func() time.Time
	defaultPageSize int
	maxPageSize     int
}

// New creates an ingest service.
func New(store Store) *Service {
	return &Service{
		store:           store,
		now:             time.Now,
		defaultPageSize: 20,
		maxPageSize:     100,
	}
}

// WithPagination configures page size limits.
func (s *Service) WithPagination(defaultPageSize, maxPageSize int) *Service {
	if defaultPageSize > 0 {
		s.defaultPageSize = defaultPageSize
	}
	if maxPageSize > 0 {
		s.maxPageSize = maxPageSize
	}
	return s
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Add registers an image. The id is derived from bucket and path, so adding
// the same location twice updates the same record. TimeCreated is only set
// when the record did not exist; re-adding unchanged metadata writes nothing.
func (s *Service) Add(ctx context.Context, req Request) (Result, error) {
	req.Path = strings.TrimPrefix(strings.TrimSpace(req.Path), "/")
	req.Bucket = strings.TrimSpace(req.Bucket)
	if req.Path == "" {
		return Result{}, fmt.Errorf("%w: path is required", domain.ErrInvalidRequest)
	}
	if req.Width < 0 || req.Height < 0 {
		return Result{}, fmt.Errorf("%w: width and height must not be negative", domain.ErrInvalidRequest)
	}
	for f := range req.Embeddings {
		if _, _, err := image.ParseField(string(f)); err != nil {
			return Result{}, fmt.Errorf("%w: %w", domain.ErrUnknownField, err)
		}
	}
	if req.Name == "" {
		req.Name = path.Base(req.Path)
	}

	id := image.NewID(image.StorageKey(req.Bucket, req.Path))

	existing, err := s.store.Get(ctx, id)
	created := errors.Is(err, domain.ErrImageNotFound)
	if err != nil && !created {
		return Result{}, fmt.Errorf("get %s: %w", id, err)
	}

	p := diff(existing, req)
	now := s.now()
	if created {
		p.TimeCreated = &now
	} else if p.IsEmpty() {
		return Result{ID: id}, nil
	}
	p.TimeUpdated = &now

	if err := s.store.Merge(ctx, id, p); err != nil {
		return Result{}, fmt.Errorf("merge %s: %w", id, err)
	}
	return Result{ID: id, Created: created}, nil
}

// AddAll registers every request and reports per-item results.
func (s *Service) AddAll(ctx context.Context, reqs []Request) []Result {
	results := make([]Result, len(reqs))
	if len(reqs) > MaxBatchSize {
		for i := range results {
			results[i].Err = fmt.Errorf("batch size exceeds %d: %w", MaxBatchSize, domain.ErrInvalidRequest)
		}
		return results
	}
	for i, req := range reqs {
		res, err := s.Add(ctx, req)
		if err != nil {
			res.Err = err
		}
		results[i] = res
	}
	return results
}

// Get returns one record.
func (s *Service) Get(ctx context.Context, id string) (image.Record, error) {
	if !image.ValidID(id) {
		return image.Record{}, fmt.Errorf("%w: %q", domain.ErrInvalidID, id)
	}
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return image.Record{}, fmt.Errorf("get image: %w", err)
	}
	return rec, nil
}

// List returns a page of records in store order.
func (s *Service) List(ctx context.Context, cursor string, limit int) (image.Page, error) {
	if limit <= 0 {
		limit = s.defaultPageSize
	}
	if limit > s.maxPageSize {
		limit = s.maxPageSize
	}
	page, err := s.store.Page(ctx, cursor, limit)
	if err != nil {
		return image.Page{}, fmt.Errorf("list images: %w", err)
	}
	return page, nil
}

// Delete removes a record.
func (s *Service) Delete(ctx context.Context, id string) error {
	if !image.ValidID(id) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidID, id)
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}

// diff builds the patch that brings existing up to date with req.
// Empty request fields never clear stored values, and computed fields never
// overwrite stored ones.
func diff(existing image.Record, req Request) image.Patch {
	var p image.Patch
	str := func(cur, want string) *string {
		if want == "" || want == cur {
			return nil
		}
		return &want
	}
	num := func(cur, want int) *int {
		if want == 0 || want == cur {
			return nil
		}
		return &want
	}
	p.Bucket = str(existing.Bucket, req.Bucket)
	p.Path = str(existing.Path, req.Path)
	p.Name = str(existing.Name, req.Name)
	p.URL = str(existing.URL, req.URL)
	p.Width = num(existing.Width, req.Width)
	p.Height = num(existing.Height, req.Height)
	p.CompanyID = str(existing.CompanyID, req.CompanyID)
	p.AlbumID = str(existing.AlbumID, req.AlbumID)

	if existing.Description == "" {
		p.Description = str("", req.Description)
	}
	if len(existing.Labels) == 0 && len(req.Labels) > 0 {
		p.Labels = req.Labels
	}
	if len(existing.Colors) == 0 && len(req.Colors) > 0 {
		p.Colors = req.Colors
	}
	for f, v := range req.Embeddings {
		if len(v) > 0 && !existing.HasVector(f) {
			p.SetVector(f, v)
		}
	}
	return p
}
