// Package memory is an in-process image store with brute-force vector search.
// Intended for tests, local runs and small collections.
//
// It is safe for concurrent use.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/kailas-cloud/imagedex/internal/domain"
	domimg "github.com/kailas-cloud/imagedex/internal/domain/image"
)

const defaultPageSize = 200

type entry struct {
	seq int64
	rec domimg.Record
}

// Repo keeps records in insertion order.
type Repo struct {
	mu      sync.RWMutex
	seq     int64
	byID    map[string]*entry
	ordered []*entry
}

// New creates an empty store.
func New() *Repo {
	return &Repo{byID: make(map[string]*entry)}
}

// Get returns a copy of the record.
func (r *Repo) Get(_ context.Context, id string) (domimg.Record, error) {
	if !domimg.ValidID(id) {
		return domimg.Record{}, fmt.Errorf("get %q: %w", id, domain.ErrInvalidID)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[id]
	if !ok {
		return domimg.Record{}, domain.ErrImageNotFound
	}
	return cloneRecord(e.rec), nil
}

// Merge applies a field-level merge-upsert.
func (r *Repo) Merge(_ context.Context, id string, p domimg.Patch) error {
	if !domimg.ValidID(id) {
		return fmt.Errorf("merge %q: %w", id, domain.ErrInvalidID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[id]
	if !ok {
		r.seq++
		e = &entry{seq: r.seq, rec: domimg.Record{ID: id}}
		r.byID[id] = e
		r.ordered = append(r.ordered, e)
	}
	p.Apply(&e.rec)
	return nil
}

// Page returns up to size records after cursor in insertion order.
func (r *Repo) Page(_ context.Context, cursor string, size int) (domimg.Page, error) {
	if size <= 0 {
		size = defaultPageSize
	}
	var after int64
	if cursor != "" {
		n, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return domimg.Page{}, fmt.Errorf("invalid cursor %q: %w", cursor, domain.ErrInvalidRequest)
		}
		after = n
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	start := sort.Search(len(r.ordered), func(i int) bool { return r.ordered[i].seq > after })
	page := domimg.Page{Cursor: cursor}
	end := start + size
	if end < len(r.ordered) {
		page.More = true
	} else {
		end = len(r.ordered)
	}
	for _, e := range r.ordered[start:end] {
		page.Records = append(page.Records, cloneRecord(e.rec))
	}
	if end > start {
		page.Cursor = strconv.FormatInt(r.ordered[end-1].seq, 10)
	}
	return page, nil
}

// Delete removes a record.
func (r *Repo) Delete(_ context.Context, id string) error {
	if !domimg.ValidID(id) {
		return fmt.Errorf("delete %q: %w", id, domain.ErrInvalidID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return domain.ErrImageNotFound
	}
	delete(r.byID, id)
	for i, o := range r.ordered {
		if o == e {
			r.ordered = append(r.ordered[:i], r.ordered[i+1:]...)
			break
		}
	}
	return nil
}

// Ping always succeeds.
func (r *Repo) Ping(context.Context) error { return nil }

// Len returns the number of records.
func (r *Repo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ordered)
}

// Nearest scans every record holding field. A stored vector whose length
// differs from the query fails the search with ErrVectorDimMismatch.
func (r *Repo) Nearest(
	_ context.Context, field domimg.EmbeddingField, vector []float32, k int, dist domimg.Distance,
) ([]domimg.Neighbor, error) {
	score, err := scorer(dist)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	r.mu.RLock()
	out := make([]domimg.Neighbor, 0, len(r.ordered))
	for _, e := range r.ordered {
		v := e.rec.Vector(field)
		if len(v) == 0 {
			continue
		}
		if len(v) != len(vector) {
			r.mu.RUnlock()
			return nil, fmt.Errorf("%s: record %s holds %d, query has %d: %w",
				field, e.rec.ID, len(v), len(vector), domain.ErrVectorDimMismatch)
		}
		out = append(out, domimg.Neighbor{Record: cloneRecord(e.rec), Distance: score(vector, v)})
	}
	r.mu.RUnlock()

	higher := dist.HigherIsCloser()
	sort.SliceStable(out, func(i, j int) bool {
		if higher {
			return out[i].Distance > out[j].Distance
		}
		return out[i].Distance < out[j].Distance
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func scorer(d domimg.Distance) (func(a, b []float32) float64, error) {
	switch d {
	case domimg.DotProduct:
		return dotProduct, nil
	case domimg.Cosine:
		return cosineDistance, nil
	case domimg.Euclidean:
		return euclidean, nil
	default:
		return nil, fmt.Errorf("%s: %w", d, domain.ErrUnsupportedDistance)
	}
}

func dotProduct(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// cosineDistance is 1 - cosine similarity, in [0, 2]. A zero vector has no
// direction and is treated as maximally distant.
func cosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}
	if normA == 0 || normB == 0 {
		return 2
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	sim = math.Max(-1, math.Min(1, sim))
	return 1 - sim
}

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func cloneRecord(r domimg.Record) domimg.Record {
	out := r
	out.Labels = append([]string(nil), r.Labels...)
	out.Colors = append([]domimg.ColorWeight(nil), r.Colors...)
	if r.Embeddings != nil {
		out.Embeddings = make(map[domimg.EmbeddingField][]float32, len(r.Embeddings))
		for f, v := range r.Embeddings {
			out.Embeddings[f] = append([]float32(nil), v...)
		}
	}
	return out
}
