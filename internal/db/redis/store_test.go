package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/imagedex/internal/db"
)

// --- client.go tests ---

func TestPing_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.Result(mock.RedisString("PONG")))

	s := NewStoreForTest(c)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPing_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	if err := s.Ping(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

// --- json.go tests ---

func TestJSONSet_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("JSON.SET", "img:1", "$", `{"a":1}`)).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreForTest(c)
	if err := s.JSONSet(context.Background(), "img:1", "$", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestJSONMerge_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("JSON.MERGE", "img:1", "$", `{"valid":true}`)).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreForTest(c)
	if err := s.JSONMerge(context.Background(), "img:1", "$", []byte(`{"valid":true}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestJSONMerge_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "JSON.MERGE"
		})).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	err := s.JSONMerge(context.Background(), "img:1", "$", []byte(`{}`))
	if !isDBError(err) {
		t.Fatalf("expected db.Error, got %v", err)
	}
	if !db.IsTransient(err) {
		t.Error("deadline exceeded should be transient")
	}
}

func TestJSONGet_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "JSON.GET" && cmd[1] == "img:1"
		})).
		Return(mock.Result(mock.RedisString(`[{"a":1}]`)))

	s := NewStoreForTest(c)
	data, err := s.JSONGet(context.Background(), "img:1", "$")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `[{"a":1}]` {
		t.Errorf("unexpected data: %s", data)
	}
}

func TestJSONGet_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "JSON.GET"
		})).
		Return(mock.Result(mock.RedisNil()))

	s := NewStoreForTest(c)
	_, err := s.JSONGet(context.Background(), "img:1", "$")
	if !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestJSONGet_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "JSON.GET"
		})).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	_, err := s.JSONGet(context.Background(), "img:1", "$")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, db.ErrKeyNotFound) {
		t.Error("should not be ErrKeyNotFound for network errors")
	}
}

func TestJSONGetMulti_SkipsMissing(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		DoMulti(gomock.Any(), gomock.Any()).
		Return([]rueidis.RedisResult{
			mock.Result(mock.RedisString(`[{"imageId":"a"}]`)),
			mock.Result(mock.RedisNil()),
		})

	s := NewStoreForTest(c)
	out, err := s.JSONGetMulti(context.Background(), []string{"img:a", "img:b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if string(out[0]) != `[{"imageId":"a"}]` || out[1] != nil {
		t.Errorf("unexpected results: %q", out)
	}
}

func TestJSONGetMulti_Empty(t *testing.T) {
	s := NewStoreForTest(nil) // client not called
	out, err := s.JSONGetMulti(context.Background(), nil)
	if err != nil || out != nil {
		t.Fatalf("got %v, %v", out, err)
	}
}

// --- kv.go tests ---

func TestGet_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "cursor")).
		Return(mock.Result(mock.RedisBlobString("42")))

	s := NewStoreForTest(c)
	data, err := s.Get(context.Background(), "cursor")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "42" {
		t.Errorf("got %q", data)
	}
}

func TestGet_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "cursor")).
		Return(mock.Result(mock.RedisNil()))

	s := NewStoreForTest(c)
	_, err := s.Get(context.Background(), "cursor")
	if !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestSet_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("SET", "cursor", "42")).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreForTest(c)
	if err := s.Set(context.Background(), "cursor", []byte("42")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDel_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("DEL", "img:1")).
		Return(mock.Result(mock.RedisInt64(1)))

	s := NewStoreForTest(c)
	if err := s.Del(context.Background(), "img:1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("EXISTS", "img:1")).
		Return(mock.Result(mock.RedisInt64(1)))
	c.EXPECT().
		Do(gomock.Any(), mock.Match("EXISTS", "img:2")).
		Return(mock.Result(mock.RedisInt64(0)))

	s := NewStoreForTest(c)
	if ok, err := s.Exists(context.Background(), "img:1"); err != nil || !ok {
		t.Errorf("img:1 exists = %v, %v", ok, err)
	}
	if ok, err := s.Exists(context.Background(), "img:2"); err != nil || ok {
		t.Errorf("img:2 exists = %v, %v", ok, err)
	}
}

// --- zset.go tests ---

func TestIncr(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("INCR", "seq")).
		Return(mock.Result(mock.RedisInt64(7)))

	s := NewStoreForTest(c)
	n, err := s.Incr(context.Background(), "seq")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 7 {
		t.Errorf("n = %d, want 7", n)
	}
}

func TestIncrBy(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("INCRBY", "budget:gemini:daily:2026-01-01", "120")).
		Return(mock.Result(mock.RedisInt64(120)))

	s := NewStoreForTest(c)
	if err := s.IncrBy(context.Background(), "budget:gemini:daily:2026-01-01", 120); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExpire_NX(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("EXPIRE", "k", "3600", "NX")).
		Return(mock.Result(mock.RedisInt64(1)))
	c.EXPECT().
		Do(gomock.Any(), mock.Match("EXPIRE", "k", "60")).
		Return(mock.Result(mock.RedisInt64(1)))

	s := NewStoreForTest(c)
	if err := s.Expire(context.Background(), "k", time.Hour, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Expire(context.Background(), "k", time.Minute, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestZAddNX(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("ZADD", "order", "NX", "7", "abc")).
		Return(mock.Result(mock.RedisInt64(1)))

	s := NewStoreForTest(c)
	if err := s.ZAddNX(context.Background(), "order", 7, "abc"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestZRangeAfter_FromStart(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("ZRANGE", "order", "-inf", "+inf", "BYSCORE", "LIMIT", "0", "3", "WITHSCORES")).
		Return(mock.Result(mock.RedisArray(
			mock.RedisString("a"), mock.RedisString("1"),
			mock.RedisString("b"), mock.RedisString("2"),
		)))

	s := NewStoreForTest(c)
	got, err := s.ZRangeAfter(context.Background(), "order", "", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Member != "a" || got[1].Score != 2 {
		t.Errorf("got %+v", got)
	}
}

func TestZRangeAfter_ExclusiveCursor(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "ZRANGE" && cmd[2] == "(2"
		})).
		Return(mock.Result(mock.RedisArray()))

	s := NewStoreForTest(c)
	got, err := s.ZRangeAfter(context.Background(), "order", "2", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %+v", got)
	}
}

func TestZRem(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("ZREM", "order", "abc")).
		Return(mock.Result(mock.RedisInt64(1)))

	s := NewStoreForTest(c)
	if err := s.ZRem(context.Background(), "order", "abc"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// --- index.go tests ---

func TestCreateIndex_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match(
			"FT.CREATE", "images", "ON", "JSON", "PREFIX", "1", "imagedex:image:",
			"SCHEMA", "$.bucket", "AS", "bucket", "TAG",
		)).
		Return(mock.Result(mock.RedisString("OK")))

	s := NewStoreForTest(c)
	idx := &db.IndexDefinition{
		Name:     "images",
		Prefixes: []string{"imagedex:image:"},
		Fields: []db.IndexField{
			{Path: "$.bucket", Alias: "bucket", Type: db.IndexFieldTag},
		},
	}
	if err := s.CreateIndex(context.Background(), idx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateIndex_AlreadyExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.CREATE"
		})).
		Return(mock.Result(mock.RedisError("Index already exists")))

	s := NewStoreForTest(c)
	idx := &db.IndexDefinition{
		Name:   "images",
		Fields: []db.IndexField{{Path: "$.bucket", Type: db.IndexFieldTag}},
	}
	if err := s.CreateIndex(context.Background(), idx); !errors.Is(err, db.ErrIndexExists) {
		t.Errorf("expected ErrIndexExists, got %v", err)
	}
}

func TestCreateIndex_InvalidDefinitionSkipsServer(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	s := NewStoreForTest(c)
	if err := s.CreateIndex(context.Background(), &db.IndexDefinition{Name: "images"}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestDropIndex(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.DROPINDEX", "images")).
		Return(mock.Result(mock.RedisString("OK")))
	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.DROPINDEX", "gone")).
		Return(mock.Result(mock.RedisError("Unknown Index name")))

	s := NewStoreForTest(c)
	if err := s.DropIndex(context.Background(), "images"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := s.DropIndex(context.Background(), "gone"); !errors.Is(err, db.ErrIndexNotFound) {
		t.Errorf("expected ErrIndexNotFound, got %v", err)
	}
}

func TestIndexExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.INFO", "images")).
		Return(mock.Result(mock.RedisArray(mock.RedisString("index_name"), mock.RedisString("images"))))
	c.EXPECT().
		Do(gomock.Any(), mock.Match("FT.INFO", "other")).
		Return(mock.Result(mock.RedisError("Unknown Index name")))

	s := NewStoreForTest(c)
	if ok, err := s.IndexExists(context.Background(), "images"); err != nil || !ok {
		t.Errorf("images = %v, %v", ok, err)
	}
	if ok, err := s.IndexExists(context.Background(), "other"); err != nil || ok {
		t.Errorf("other = %v, %v", ok, err)
	}
}

func TestSearchKNN_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "FT.SEARCH" && cmd[1] == "images" &&
				cmd[2] == "*=>[KNN 2 @image_embedding_512__ip $BLOB AS __vector_score]"
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(2),
			mock.RedisString("imagedex:image:a"),
			mock.RedisArray(
				mock.RedisString("$"), mock.RedisString(`{"imageId":"a"}`),
				mock.RedisString("__vector_score"), mock.RedisString("0.1"),
			),
			mock.RedisString("imagedex:image:b"),
			mock.RedisArray(
				mock.RedisString("$"), mock.RedisString(`{"imageId":"b"}`),
				mock.RedisString("__vector_score"), mock.RedisString("0.4"),
			),
		)))

	s := NewStoreForTest(c)
	res, err := s.SearchKNN(context.Background(), &db.KNNQuery{
		IndexName:    "images",
		Field:        "image_embedding_512__ip",
		Vector:       []float32{1, 0},
		K:            2,
		ReturnFields: []string{"$"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Total != 2 || len(res.Entries) != 2 {
		t.Fatalf("got %+v", res)
	}
	if res.Entries[0].Key != "imagedex:image:a" || res.Entries[0].Score != 0.1 {
		t.Errorf("entry[0] = %+v", res.Entries[0])
	}
	if _, ok := res.Entries[0].Fields["__vector_score"]; ok {
		t.Error("score should be removed from fields")
	}
}

func TestSearchKNN_Validation(t *testing.T) {
	s := NewStoreForTest(nil)
	cases := []*db.KNNQuery{
		{Field: "f", Vector: []float32{1}, K: 1},
		{IndexName: "i", Vector: []float32{1}, K: 1},
		{IndexName: "i", Field: "f", K: 1},
		{IndexName: "i", Field: "f", Vector: []float32{1}},
	}
	for i, q := range cases {
		if _, err := s.SearchKNN(context.Background(), q); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}

func TestSearchKNN_Empty(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		Return(mock.Result(mock.RedisArray(mock.RedisInt64(0))))

	s := NewStoreForTest(c)
	res, err := s.SearchKNN(context.Background(), &db.KNNQuery{
		IndexName: "images", Field: "f", Vector: []float32{1}, K: 3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Entries) != 0 {
		t.Errorf("expected no entries, got %d", len(res.Entries))
	}
}

func TestVectorToBytes(t *testing.T) {
	b := vectorToBytes([]float32{1.0, 2.0})
	if len(b) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(b))
	}
	// 1.0f little-endian = 00 00 80 3f
	if b[2] != 0x80 || b[3] != 0x3f {
		t.Errorf("unexpected encoding % x", b[:4])
	}
}

// --- helpers ---

// isDBError is a test helper for checking wrapped db.Error.
func isDBError(err error) bool {
	var dbErr *db.Error
	return errors.As(err, &dbErr)
}
