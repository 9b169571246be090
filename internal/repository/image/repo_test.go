package image

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/imagedex/internal/db"
	"github.com/kailas-cloud/imagedex/internal/domain"
	domimg "github.com/kailas-cloud/imagedex/internal/domain/image"
	"github.com/kailas-cloud/imagedex/internal/logger"
)

func strPtr(s string) *string { return &s }

func TestMerge_ExistingUsesJSONMerge(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.existsFn = func(_ context.Context, _ string) (bool, error) { return true, nil }
	ms.incrFn = func(_ context.Context, _ string) (int64, error) {
		t.Fatal("INCR must not run for an existing record")
		return 0, nil
	}

	var merged map[string]any
	ms.jsonMergeFn = func(_ context.Context, key, path string, data []byte) error {
		if key != "t:image:"+testID || path != "$" {
			t.Errorf("unexpected key/path %s %s", key, path)
		}
		return json.Unmarshal(data, &merged)
	}

	valid := true
	p := domimg.Patch{Description: strPtr("a cat"), Valid: &valid}
	p.SetVector("text_embedding_4", []float32{1, 0, 0, 0})
	if err := repo.Merge(context.Background(), testID, p); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	if merged[fieldDescription] != "a cat" || merged[fieldValid] != true {
		t.Errorf("unexpected merge members: %v", merged)
	}
	if _, ok := merged["text_embedding_4"]; !ok {
		t.Error("vector missing from merge")
	}
	if _, ok := merged[fieldLabels]; ok {
		t.Error("absent labels must not be written")
	}
	for k, v := range merged {
		if v == nil {
			t.Errorf("member %s written as null", k)
		}
	}
}

func TestMerge_EmptyPatchOnExistingIsNoop(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.existsFn = func(_ context.Context, _ string) (bool, error) { return true, nil }
	ms.jsonMergeFn = func(_ context.Context, _, _ string, _ []byte) error {
		t.Fatal("empty patch must not write")
		return nil
	}

	if err := repo.Merge(context.Background(), testID, domimg.Patch{}); err != nil {
		t.Fatalf("Merge: %v", err)
	}
}

func TestMerge_NewRecordOrdersThenWrites(t *testing.T) {
	repo, ms := newTestRepo(t)
	var calls []string
	ms.incrFn = func(_ context.Context, key string) (int64, error) {
		calls = append(calls, "incr "+key)
		return 42, nil
	}
	ms.zaddFn = func(_ context.Context, key string, score float64, member string) error {
		calls = append(calls, "zadd")
		if key != "t:images:order" || score != 42 || member != testID {
			t.Errorf("zadd %s %v %s", key, score, member)
		}
		return nil
	}
	var doc map[string]any
	ms.jsonSetFn = func(_ context.Context, _, _ string, data []byte) error {
		calls = append(calls, "set")
		return json.Unmarshal(data, &doc)
	}

	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	p := domimg.Patch{Bucket: strPtr("b"), Path: strPtr("cat.jpg"), TimeCreated: &created, TimeUpdated: &created}
	if err := repo.Merge(context.Background(), testID, p); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	if strings.Join(calls, ",") != "incr t:images:seq,zadd,set" {
		t.Errorf("call order = %v", calls)
	}
	if doc[fieldID] != testID || doc[fieldBucket] != "b" || doc[fieldValid] != false {
		t.Errorf("unexpected document %v", doc)
	}
	if doc[fieldCreated] != float64(created.UnixMilli()) {
		t.Errorf("timeCreated = %v", doc[fieldCreated])
	}
}

func TestMerge_InvalidID(t *testing.T) {
	repo, _ := newTestRepo(t)
	err := repo.Merge(context.Background(), "not-an-id", domimg.Patch{})
	if !errors.Is(err, domain.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestMerge_TransientWrapped(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.existsFn = func(_ context.Context, _ string) (bool, error) {
		return false, &db.Error{Op: db.OpExists, Err: context.DeadlineExceeded}
	}

	err := repo.Merge(context.Background(), testID, domimg.Patch{Name: strPtr("x")})
	if !errors.Is(err, domain.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
}

func TestMerge_PermanentNotTransient(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.existsFn = func(_ context.Context, _ string) (bool, error) { return true, nil }
	ms.jsonMergeFn = func(_ context.Context, _, _ string, _ []byte) error {
		return &db.Error{Op: db.OpJSONMerge, Err: errors.New("ERR wrong type")}
	}

	err := repo.Merge(context.Background(), testID, domimg.Patch{Name: strPtr("x")})
	if err == nil || errors.Is(err, domain.ErrTransient) {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestGet_Found(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.jsonGetFn = func(_ context.Context, _ string, _ ...string) ([]byte, error) {
		return []byte(`[{"imageId":"` + testID + `","bucket":"b","imagePath":"cat.jpg",` +
			`"imageDescription":"a cat","labels":["cat"],"valid":true,` +
			`"colorWeights":[{"name":"red","shade":"dark","weight":0.5}],` +
			`"timeCreated":1700000000000,"text_embedding_4":[1,2,3,4],"image_embedding_4":[]}]`), nil
	}

	rec, err := repo.Get(context.Background(), testID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.ID != testID || rec.Description != "a cat" || !rec.Valid || len(rec.Colors) != 1 {
		t.Errorf("unexpected record %+v", rec)
	}
	if !rec.HasVector("text_embedding_4") {
		t.Error("text vector missing")
	}
	if rec.HasVector("image_embedding_4") {
		t.Error("empty vector must be treated as absent")
	}
	if rec.TimeCreated.UnixMilli() != 1700000000000 {
		t.Errorf("timeCreated = %v", rec.TimeCreated)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.Get(context.Background(), testID)
	if !errors.Is(err, domain.ErrImageNotFound) {
		t.Fatalf("expected ErrImageNotFound, got %v", err)
	}
}

func TestPage_MoreAndCursor(t *testing.T) {
	repo, ms := newTestRepo(t)
	ids := []string{domimg.NewID("a"), domimg.NewID("b"), domimg.NewID("c")}
	ms.zrangeFn = func(_ context.Context, _, after string, limit int) ([]db.ScoredMember, error) {
		if after != "" || limit != 3 {
			t.Errorf("after=%q limit=%d", after, limit)
		}
		return []db.ScoredMember{{Member: ids[0], Score: 1}, {Member: ids[1], Score: 2}, {Member: ids[2], Score: 5}}, nil
	}
	ms.jsonGetMultiFn = func(_ context.Context, keys []string) ([][]byte, error) {
		if len(keys) != 2 {
			t.Fatalf("fetched %d keys, want 2", len(keys))
		}
		return [][]byte{
			[]byte(`[{"imageId":"` + ids[0] + `"}]`),
			nil,
		}, nil
	}

	page, err := repo.Page(context.Background(), "", 2)
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if !page.More || page.Cursor != "2" || page.Next() != "2" {
		t.Errorf("page = %+v", page)
	}
	if len(page.Records) != 1 || page.Records[0].ID != ids[0] {
		t.Errorf("records = %+v", page.Records)
	}
}

func TestPage_LastPage(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.zrangeFn = func(_ context.Context, _, after string, _ int) ([]db.ScoredMember, error) {
		if after != "7" {
			t.Errorf("after = %q", after)
		}
		return []db.ScoredMember{{Member: testID, Score: 8}}, nil
	}
	ms.jsonGetMultiFn = func(_ context.Context, _ []string) ([][]byte, error) {
		return [][]byte{[]byte(`{"imageId":"` + testID + `"}`)}, nil
	}

	page, err := repo.Page(context.Background(), "7", 10)
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if page.More || page.Cursor != "8" || page.Next() != "" {
		t.Errorf("page = %+v", page)
	}
}

func TestPage_Empty(t *testing.T) {
	repo, _ := newTestRepo(t)
	page, err := repo.Page(context.Background(), "3", 10)
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if len(page.Records) != 0 || page.More || page.Cursor != "3" {
		t.Errorf("page = %+v", page)
	}
}

func TestPage_InvalidCursor(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.Page(context.Background(), "abc", 10)
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.existsFn = func(_ context.Context, _ string) (bool, error) { return true, nil }
	var removed string
	ms.zremFn = func(_ context.Context, _, member string) error {
		removed = member
		return nil
	}

	if err := repo.Delete(context.Background(), testID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if removed != testID {
		t.Errorf("zrem member = %q", removed)
	}
}

func TestDelete_NotFound(t *testing.T) {
	repo, _ := newTestRepo(t)
	if err := repo.Delete(context.Background(), testID); !errors.Is(err, domain.ErrImageNotFound) {
		t.Fatalf("expected ErrImageNotFound, got %v", err)
	}
}

func TestNearest_DotProductSimilarity(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.searchKNNFn = func(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
		if q.Field != "image_embedding_4__ip" || q.K != 2 || q.IndexName != "t:images:idx" {
			t.Errorf("query = %+v", q)
		}
		return &db.SearchResult{Total: 2, Entries: []db.SearchEntry{
			{Key: "t:image:a", Score: 0, Fields: map[string]string{"$": `{"imageId":"a"}`}},
			{Key: "t:image:b", Score: 0.75, Fields: map[string]string{"$": `{"imageId":"b"}`}},
		}}, nil
	}

	got, err := repo.Nearest(context.Background(), "image_embedding_4", []float32{1, 0, 0, 0}, 2, domimg.DotProduct)
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if len(got) != 2 || got[0].Record.ID != "a" || got[0].Distance != 1 || got[1].Distance != 0.25 {
		t.Errorf("neighbors = %+v", got)
	}
}

func TestNearest_UndecodableHitIsLogged(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.searchKNNFn = func(context.Context, *db.KNNQuery) (*db.SearchResult, error) {
		return &db.SearchResult{Total: 2, Entries: []db.SearchEntry{
			{Key: "t:image:a", Score: 0.1, Fields: map[string]string{"$": `{"imageId":"a"}`}},
			{Key: "t:image:bad", Score: 0.2, Fields: map[string]string{"$": `{"imageId":`}},
		}}, nil
	}
	core, logs := observer.New(zapcore.WarnLevel)
	ctx := logger.ContextWithLogger(context.Background(), zap.New(core))

	got, err := repo.Nearest(ctx, "image_embedding_4", []float32{1, 0, 0, 0}, 2, domimg.DotProduct)
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if len(got) != 1 || got[0].Record.ID != "a" {
		t.Errorf("neighbors = %+v", got)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries", len(entries))
	}
	if entries[0].ContextMap()["key"] != "t:image:bad" {
		t.Errorf("fields = %v", entries[0].ContextMap())
	}
}

func TestNearest_EuclideanTakesRoot(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.searchKNNFn = func(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
		if q.Field != "text_embedding_4__l2" {
			t.Errorf("field = %s", q.Field)
		}
		return &db.SearchResult{Entries: []db.SearchEntry{
			{Score: 4, Fields: map[string]string{"$": `{"imageId":"a"}`}},
		}}, nil
	}

	got, err := repo.Nearest(context.Background(), "text_embedding_4", []float32{1, 0, 0, 0}, 1, domimg.Euclidean)
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if math.Abs(got[0].Distance-2) > 1e-9 {
		t.Errorf("distance = %v, want 2", got[0].Distance)
	}
}

func TestNearest_UnindexedMeasure(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.Nearest(context.Background(), "text_embedding_4", []float32{1, 0, 0, 0}, 1, domimg.Cosine)
	if !errors.Is(err, domain.ErrUnsupportedDistance) {
		t.Fatalf("expected ErrUnsupportedDistance, got %v", err)
	}
}

func TestEnsureIndex_Creates(t *testing.T) {
	repo, ms := newTestRepo(t)
	var created *db.IndexDefinition
	ms.createIndexFn = func(_ context.Context, def *db.IndexDefinition) error {
		created = def
		return nil
	}

	if err := repo.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	if created == nil {
		t.Fatal("index not created")
	}
	// 5 attribute fields + 2 vector fields x 2 measures
	if len(created.Fields) != 9 {
		t.Errorf("fields = %d, want 9", len(created.Fields))
	}
	if created.Prefixes[0] != "t:image:" {
		t.Errorf("prefix = %v", created.Prefixes)
	}
	aliases := map[string]bool{}
	for _, f := range created.Fields {
		aliases[f.Alias] = true
	}
	for _, want := range []string{"text_embedding_4__ip", "image_embedding_4__l2"} {
		if !aliases[want] {
			t.Errorf("missing alias %s", want)
		}
	}
	last := created.Fields[len(created.Fields)-1].Vector
	if last.Algo != db.VectorHNSW || last.Dim != 4 || last.M != 16 || last.Distance != db.DistanceL2 {
		t.Errorf("vector params = %+v", last)
	}
}

func TestEnsureIndex_Flat(t *testing.T) {
	ms := &mockStore{}
	repo := New(ms, Options{
		Fields:    []domimg.EmbeddingField{domimg.Field(domimg.KindImage, 8)},
		Distances: []domimg.Distance{domimg.Cosine},
		HNSWM:     16,
		Flat:      true,
	})
	var created *db.IndexDefinition
	ms.createIndexFn = func(_ context.Context, def *db.IndexDefinition) error {
		created = def
		return nil
	}
	if err := repo.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	v := created.Fields[len(created.Fields)-1].Vector
	if v.Algo != db.VectorFlat || v.M != 0 || v.Dim != 8 || v.Distance != db.DistanceCosine {
		t.Errorf("vector params = %+v", v)
	}
}

func TestRebuildIndex(t *testing.T) {
	repo, ms := newTestRepo(t)
	var calls []string
	ms.dropIndexFn = func(_ context.Context, name string) error {
		calls = append(calls, "drop "+name)
		return db.ErrIndexNotFound
	}
	ms.createIndexFn = func(_ context.Context, def *db.IndexDefinition) error {
		calls = append(calls, "create "+def.Name)
		return nil
	}

	if err := repo.RebuildIndex(context.Background()); err != nil {
		t.Fatalf("RebuildIndex: %v", err)
	}
	want := []string{"drop t:images:idx", "create t:images:idx"}
	if len(calls) != 2 || calls[0] != want[0] || calls[1] != want[1] {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestRebuildIndex_DropFailure(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.dropIndexFn = func(context.Context, string) error { return errors.New("boom") }
	ms.createIndexFn = func(context.Context, *db.IndexDefinition) error {
		t.Fatal("must not create after failed drop")
		return nil
	}
	if err := repo.RebuildIndex(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestEnsureIndex_ExistsIsNoop(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.indexExistsFn = func(_ context.Context, _ string) (bool, error) { return true, nil }
	ms.createIndexFn = func(_ context.Context, _ *db.IndexDefinition) error {
		t.Fatal("must not create existing index")
		return nil
	}
	if err := repo.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
}

func TestEnsureIndex_RaceTolerated(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.createIndexFn = func(_ context.Context, _ *db.IndexDefinition) error { return db.ErrIndexExists }
	if err := repo.EnsureIndex(context.Background()); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
}
