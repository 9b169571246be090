package enrich

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/googleapis/gax-go/v2"

	"github.com/kailas-cloud/imagedex/internal/domain"
	"github.com/kailas-cloud/imagedex/internal/domain/image"
	"github.com/kailas-cloud/imagedex/internal/domain/moderation"
	"github.com/kailas-cloud/imagedex/internal/repository/memory"
)

var testDims = []int{4, 8}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// countingStore wraps the memory repo and counts calls. mergeErrs, when set,
// is consumed one error per Merge call before delegating.
type countingStore struct {
	*memory.Repo

	mu        sync.Mutex
	merges    int
	pages     int
	mergeErrs []error
	pageErr   error
	failIDs   map[string]error
}

func newCountingStore() *countingStore {
	return &countingStore{Repo: memory.New()}
}

func (s *countingStore) Page(ctx context.Context, cursor string, size int) (image.Page, error) {
	s.mu.Lock()
	s.pages++
	err := s.pageErr
	s.mu.Unlock()
	if err != nil {
		return image.Page{}, err
	}
	return s.Repo.Page(ctx, cursor, size)
}

func (s *countingStore) Merge(ctx context.Context, id string, p image.Patch) error {
	s.mu.Lock()
	s.merges++
	if err, ok := s.failIDs[id]; ok {
		s.mu.Unlock()
		return err
	}
	if len(s.mergeErrs) > 0 {
		err := s.mergeErrs[0]
		s.mergeErrs = s.mergeErrs[1:]
		s.mu.Unlock()
		if err != nil {
			return err
		}
		return s.Repo.Merge(ctx, id, p)
	}
	s.mu.Unlock()
	return s.Repo.Merge(ctx, id, p)
}

func (s *countingStore) mergeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.merges
}

// seed inserts n bare records straight into the memory repo.
func (s *countingStore) seed(t *testing.T, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := range ids {
		bucket, path := "photos", "img-"+strconv.Itoa(i)+".jpg"
		ids[i] = image.NewID(image.StorageKey(bucket, path))
		created := fixedNow.Add(-time.Hour)
		if err := s.Repo.Merge(context.Background(), ids[i], image.Patch{
			Bucket:      &bucket,
			Path:        &path,
			TimeCreated: &created,
		}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return ids
}

func (s *countingStore) get(t *testing.T, id string) image.Record {
	t.Helper()
	rec, err := s.Repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return rec
}

type memCursor struct {
	mu      sync.Mutex
	value   string
	saves   []string
	clears  int
	loadErr error
}

func (c *memCursor) Load(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.loadErr
}

func (c *memCursor) Save(_ context.Context, cursor string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = cursor
	c.saves = append(c.saves, cursor)
	return nil
}

func (c *memCursor) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = ""
	c.clears++
	return nil
}

type mockAnnotator struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, ref image.Ref) (domain.Annotation, error)
}

func (m *mockAnnotator) Annotate(ctx context.Context, ref image.Ref) (domain.Annotation, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.fn != nil {
		return m.fn(ctx, ref)
	}
	return domain.Annotation{
		Description: "a dog on a beach",
		Labels:      []string{"dog", "beach"},
		Colors:      []image.ColorWeight{{Name: "blue", Shade: "light", Weight: 0.6}},
		Moderation: moderation.Scores{
			moderation.Adult:    moderation.VeryUnlikely,
			moderation.Spoof:    moderation.VeryUnlikely,
			moderation.Medical:  moderation.VeryUnlikely,
			moderation.Violence: moderation.VeryUnlikely,
			moderation.Racy:     moderation.Unlikely,
		},
	}, nil
}

func (m *mockAnnotator) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockEmbedder struct {
	mu       sync.Mutex
	calls    int
	requests []domain.PairRequest
	fn       func(req domain.PairRequest) (domain.VectorPair, error)
}

func (m *mockEmbedder) EmbedPair(_ context.Context, req domain.PairRequest) (domain.VectorPair, error) {
	m.mu.Lock()
	m.calls++
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.fn != nil {
		return m.fn(req)
	}
	return fullPair(req), nil
}

func (m *mockEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func fullPair(req domain.PairRequest) domain.VectorPair {
	var p domain.VectorPair
	if req.Wants(image.KindText) {
		p.Text = vec(req.Dim, 0.1)
	}
	if req.Wants(image.KindImage) {
		p.Image = vec(req.Dim, 0.2)
	}
	return p
}

func vec(dim int, v float32) []float32 {
	out := make([]float32, dim)
	for i := range out {
		out[i] = v
	}
	return out
}

type mapAssociations map[string]image.Association

func (m mapAssociations) Lookup(_ context.Context, id string) (image.Association, bool, error) {
	a, ok := m[id]
	return a, ok, nil
}

type fixture struct {
	store     *countingStore
	cursor    *memCursor
	annotator *mockAnnotator
	embedder  *mockEmbedder
	sleeps    int
	svc       *Service
}

func newFixture() *fixture {
	f := &fixture{
		store:     newCountingStore(),
		cursor:    &memCursor{},
		annotator: &mockAnnotator{},
		embedder:  &mockEmbedder{},
	}
	f.svc = New(f.store, f.cursor, f.annotator, f.embedder, testDims).
		WithPipelineName("test").
		WithClock(func() time.Time { return fixedNow }).
		WithBackoff(gax.Backoff{Initial: time.Millisecond}, func(context.Context, time.Duration) error {
			f.sleeps++
			return nil
		})
	return f
}
