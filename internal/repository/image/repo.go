// Package image stores image records as RedisJSON documents. Paging follows
// insertion order through a sorted set keyed by a monotonic sequence, and
// nearest-neighbor queries go through an FT vector index.
package image

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"

	"go.uber.org/zap"

	"github.com/kailas-cloud/imagedex/internal/db"
	"github.com/kailas-cloud/imagedex/internal/domain"
	domimg "github.com/kailas-cloud/imagedex/internal/domain/image"
	"github.com/kailas-cloud/imagedex/internal/logger"
)

const defaultPageSize = 200

// store is the consumer interface for image documents (ISP).
type store interface {
	JSONSet(ctx context.Context, key, path string, data []byte) error
	JSONMerge(ctx context.Context, key, path string, data []byte) error
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
	JSONGetMulti(ctx context.Context, keys []string) ([][]byte, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
	ZAddNX(ctx context.Context, key string, score float64, member string) error
	ZRangeAfter(ctx context.Context, key, after string, limit int) ([]db.ScoredMember, error)
	ZRem(ctx context.Context, key, member string) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Options configures the repository.
type Options struct {
	KeyPrefix       string
	IndexName       string
	Fields          []domimg.EmbeddingField
	Distances       []domimg.Distance
	HNSWM           int
	HNSWEFConstruct int
	// Flat selects exact brute-force vector attributes instead of HNSW.
	Flat bool
}

// Repo implements the image document store on Redis/Valkey.
type Repo struct {
	store     store
	prefix    string
	indexName string
	fields    []domimg.EmbeddingField
	distances []domimg.Distance
	vector    db.VectorParams
}

// New creates an image repository.
func New(s store, opts Options) *Repo {
	r := &Repo{
		store:     s,
		prefix:    opts.KeyPrefix,
		indexName: opts.IndexName,
		fields:    opts.Fields,
		distances: opts.Distances,
		vector: db.VectorParams{
			Algo:           db.VectorHNSW,
			M:              opts.HNSWM,
			EFConstruction: opts.HNSWEFConstruct,
		},
	}
	if opts.Flat {
		r.vector = db.VectorParams{Algo: db.VectorFlat}
	}
	if r.indexName == "" {
		r.indexName = "images"
	}
	r.indexName = r.prefix + r.indexName + ":idx"
	if len(r.distances) == 0 {
		r.distances = []domimg.Distance{domimg.DotProduct}
	}
	return r
}

// Get returns a record by id.
func (r *Repo) Get(ctx context.Context, id string) (domimg.Record, error) {
	if !domimg.ValidID(id) {
		return domimg.Record{}, fmt.Errorf("get %q: %w", id, domain.ErrInvalidID)
	}
	key := r.imageKey(id)
	raw, err := r.store.JSONGet(ctx, key, "$")
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domimg.Record{}, domain.ErrImageNotFound
		}
		return domimg.Record{}, fmt.Errorf("json.get %s: %w", key, wrapErr(err))
	}
	return parseDoc(raw)
}

// Merge applies a field-level merge-upsert. A new id gets the next sequence
// number in the paging order before its document is written, so a retry
// after a partial failure converges on a single order entry.
func (r *Repo) Merge(ctx context.Context, id string, p domimg.Patch) error {
	if !domimg.ValidID(id) {
		return fmt.Errorf("merge %q: %w", id, domain.ErrInvalidID)
	}
	key := r.imageKey(id)

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check exists %s: %w", key, wrapErr(err))
	}

	if exists {
		members := patchMembers(&p)
		if len(members) == 0 {
			return nil
		}
		data, err := json.Marshal(members)
		if err != nil {
			return fmt.Errorf("marshal patch: %w", err)
		}
		if err := r.store.JSONMerge(ctx, key, "$", data); err != nil {
			return fmt.Errorf("json.merge %s: %w", key, wrapErr(err))
		}
		return nil
	}

	seq, err := r.store.Incr(ctx, r.seqKey())
	if err != nil {
		return fmt.Errorf("incr %s: %w", r.seqKey(), wrapErr(err))
	}
	if err := r.store.ZAddNX(ctx, r.orderKey(), float64(seq), id); err != nil {
		return fmt.Errorf("zadd %s: %w", r.orderKey(), wrapErr(err))
	}
	data, err := json.Marshal(newDocMembers(id, seq, &p))
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if err := r.store.JSONSet(ctx, key, "$", data); err != nil {
		return fmt.Errorf("json.set %s: %w", key, wrapErr(err))
	}
	return nil
}

// Page returns up to size records after cursor in insertion order.
// The cursor is the sequence number of the last returned record.
func (r *Repo) Page(ctx context.Context, cursor string, size int) (domimg.Page, error) {
	if size <= 0 {
		size = defaultPageSize
	}
	if cursor != "" {
		if _, err := strconv.ParseInt(cursor, 10, 64); err != nil {
			return domimg.Page{}, fmt.Errorf("invalid cursor %q: %w", cursor, domain.ErrInvalidRequest)
		}
	}

	members, err := r.store.ZRangeAfter(ctx, r.orderKey(), cursor, size+1)
	if err != nil {
		return domimg.Page{}, fmt.Errorf("zrange %s: %w", r.orderKey(), wrapErr(err))
	}

	page := domimg.Page{Cursor: cursor}
	if len(members) > size {
		page.More = true
		members = members[:size]
	}
	if len(members) == 0 {
		return page, nil
	}
	page.Cursor = strconv.FormatInt(int64(members[len(members)-1].Score), 10)

	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = r.imageKey(m.Member)
	}
	docs, err := r.store.JSONGetMulti(ctx, keys)
	if err != nil {
		return domimg.Page{}, fmt.Errorf("json.get page: %w", wrapErr(err))
	}

	page.Records = make([]domimg.Record, 0, len(docs))
	for i, raw := range docs {
		if raw == nil {
			// ordered but never written
			continue
		}
		rec, err := parseDoc(raw)
		if err != nil {
			return domimg.Page{}, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		if rec.ID == "" {
			rec.ID = members[i].Member
		}
		page.Records = append(page.Records, rec)
	}
	return page, nil
}

// Delete removes a record and its paging entry.
func (r *Repo) Delete(ctx context.Context, id string) error {
	if !domimg.ValidID(id) {
		return fmt.Errorf("delete %q: %w", id, domain.ErrInvalidID)
	}
	key := r.imageKey(id)

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check exists %s: %w", key, wrapErr(err))
	}
	if !exists {
		return domain.ErrImageNotFound
	}

	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("del %s: %w", key, wrapErr(err))
	}
	if err := r.store.ZRem(ctx, r.orderKey(), id); err != nil {
		return fmt.Errorf("zrem %s: %w", r.orderKey(), wrapErr(err))
	}
	return nil
}

// Nearest runs a KNN query over the vector attribute for field and measure.
// Results are closest first; dot product distances are reported as similarities.
// Hits whose document fails to decode are logged and dropped.
func (r *Repo) Nearest(
	ctx context.Context, field domimg.EmbeddingField, vector []float32, k int, dist domimg.Distance,
) ([]domimg.Neighbor, error) {
	if !slices.Contains(r.distances, dist) {
		return nil, fmt.Errorf("%s is not indexed: %w", dist, domain.ErrUnsupportedDistance)
	}

	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.indexName,
		Field:        vectorAlias(field, dist),
		Vector:       vector,
		K:            k,
		ReturnFields: []string{"$"},
	})
	if err != nil {
		return nil, fmt.Errorf("knn %s: %w", field, wrapErr(err))
	}

	out := make([]domimg.Neighbor, 0, len(res.Entries))
	for _, e := range res.Entries {
		raw := e.Fields["$"]
		if raw == "" {
			continue
		}
		rec, err := parseDoc([]byte(raw))
		if err != nil {
			logger.FromContext(ctx).Warn("skipping undecodable search hit",
				zap.String("key", e.Key), zap.String("field", string(field)), zap.Error(err))
			continue
		}
		out = append(out, domimg.Neighbor{Record: rec, Distance: engineDistance(dist, e.Score)})
	}
	return out, nil
}

// engineDistance converts a raw FT score into the domain convention:
// IP scores are 1-dot, L2 scores are squared.
func engineDistance(d domimg.Distance, score float64) float64 {
	switch d {
	case domimg.DotProduct:
		return 1 - score
	case domimg.Euclidean:
		return math.Sqrt(math.Max(score, 0))
	default:
		return score
	}
}

func (r *Repo) imageKey(id string) string { return r.prefix + "image:" + id }
func (r *Repo) seqKey() string            { return r.prefix + "images:seq" }
func (r *Repo) orderKey() string          { return r.prefix + "images:order" }

// wrapErr tags retryable failures with domain.ErrTransient.
func wrapErr(err error) error {
	if db.IsTransient(err) {
		return fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}
	return err
}
