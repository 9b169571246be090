// Package firestore stores image records in a Cloud Firestore collection.
// Paging walks documents in document-id order and nearest-neighbor queries
// use Firestore vector search, which needs a vector index per field and
// measure (created with gcloud, outside this service).
package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kailas-cloud/imagedex/internal/domain"
	domimg "github.com/kailas-cloud/imagedex/internal/domain/image"
)

const (
	defaultPageSize = 200
	distanceField   = "__distance"
)

// Repo implements the image document store on Firestore.
type Repo struct {
	client     *firestore.Client
	collection string
}

// New wraps an existing client.
func New(client *firestore.Client, collection string) *Repo {
	return &Repo{client: client, collection: collection}
}

// Open creates a client for the given project and database.
func Open(ctx context.Context, projectID, database string) (*firestore.Client, error) {
	c, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return c, nil
}

func (r *Repo) col() *firestore.CollectionRef {
	return r.client.Collection(r.collection)
}

// Get returns a record by id.
func (r *Repo) Get(ctx context.Context, id string) (domimg.Record, error) {
	if !domimg.ValidID(id) {
		return domimg.Record{}, fmt.Errorf("get %q: %w", id, domain.ErrInvalidID)
	}
	snap, err := r.col().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return domimg.Record{}, domain.ErrImageNotFound
		}
		return domimg.Record{}, fmt.Errorf("get %s: %w", id, wrapErr(err))
	}
	return recordFromData(snap.Ref.ID, snap.Data()), nil
}

// Merge applies a field-level merge-upsert via Set with MergeAll.
func (r *Repo) Merge(ctx context.Context, id string, p domimg.Patch) error {
	if !domimg.ValidID(id) {
		return fmt.Errorf("merge %q: %w", id, domain.ErrInvalidID)
	}
	if _, err := r.col().Doc(id).Set(ctx, patchData(id, &p), firestore.MergeAll); err != nil {
		return fmt.Errorf("set %s: %w", id, wrapErr(err))
	}
	return nil
}

// Page returns up to size documents after the cursor document id.
func (r *Repo) Page(ctx context.Context, cursor string, size int) (domimg.Page, error) {
	if size <= 0 {
		size = defaultPageSize
	}
	q := r.col().OrderBy(firestore.DocumentID, firestore.Asc)
	if cursor != "" {
		q = q.StartAfter(cursor)
	}
	snaps, err := q.Limit(size + 1).Documents(ctx).GetAll()
	if err != nil {
		return domimg.Page{}, fmt.Errorf("list %s: %w", r.collection, wrapErr(err))
	}

	page := domimg.Page{Cursor: cursor}
	if len(snaps) > size {
		page.More = true
		snaps = snaps[:size]
	}
	page.Records = make([]domimg.Record, 0, len(snaps))
	for _, s := range snaps {
		page.Records = append(page.Records, recordFromData(s.Ref.ID, s.Data()))
	}
	if len(snaps) > 0 {
		page.Cursor = snaps[len(snaps)-1].Ref.ID
	}
	return page, nil
}

// Delete removes a record; an absent record is ErrImageNotFound.
func (r *Repo) Delete(ctx context.Context, id string) error {
	if !domimg.ValidID(id) {
		return fmt.Errorf("delete %q: %w", id, domain.ErrInvalidID)
	}
	if _, err := r.col().Doc(id).Delete(ctx, firestore.Exists); err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.ErrImageNotFound
		}
		return fmt.Errorf("delete %s: %w", id, wrapErr(err))
	}
	return nil
}

// Nearest runs a Firestore vector query. For dot product the returned
// distance is the similarity, as Firestore reports it.
func (r *Repo) Nearest(
	ctx context.Context, field domimg.EmbeddingField, vector []float32, k int, dist domimg.Distance,
) ([]domimg.Neighbor, error) {
	measure, err := measureFor(dist)
	if err != nil {
		return nil, err
	}

	vq := r.col().FindNearest(docField(field), firestore.Vector32(vector), k, measure,
		&firestore.FindNearestOptions{DistanceResultField: distanceField})
	snaps, err := vq.Documents(ctx).GetAll()
	if err != nil {
		if status.Code(err) == codes.FailedPrecondition {
			return nil, fmt.Errorf("no vector index on %s for %s: %w", field, dist, domain.ErrUnsupportedDistance)
		}
		return nil, fmt.Errorf("find nearest %s: %w", field, wrapErr(err))
	}

	out := make([]domimg.Neighbor, 0, len(snaps))
	for _, s := range snaps {
		data := s.Data()
		d := getFloat(data, distanceField)
		delete(data, distanceField)
		out = append(out, domimg.Neighbor{Record: recordFromData(s.Ref.ID, data), Distance: d})
	}
	return out, nil
}

// Ping reads one document id to check connectivity and credentials.
func (r *Repo) Ping(ctx context.Context) error {
	_, err := r.col().Select().Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return fmt.Errorf("firestore ping: %w", err)
	}
	return nil
}

func measureFor(d domimg.Distance) (firestore.DistanceMeasure, error) {
	switch d {
	case domimg.DotProduct:
		return firestore.DistanceMeasureDotProduct, nil
	case domimg.Cosine:
		return firestore.DistanceMeasureCosine, nil
	case domimg.Euclidean:
		return firestore.DistanceMeasureEuclidean, nil
	default:
		return 0, fmt.Errorf("%s: %w", d, domain.ErrUnsupportedDistance)
	}
}

// isTransient reports gRPC codes that clear up on retry.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	}
	return false
}

// wrapErr tags retryable failures with domain.ErrTransient.
func wrapErr(err error) error {
	if isTransient(err) {
		return fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}
	return err
}
