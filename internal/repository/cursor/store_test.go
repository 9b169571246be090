package cursor

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/imagedex/internal/db"
)

// mockKV implements the consumer interface for tests.
type mockKV struct {
	data  map[string][]byte
	getFn func(ctx context.Context, key string) ([]byte, error)
}

func newMockKV() *mockKV { return &mockKV{data: map[string][]byte{}} }

func (m *mockKV) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockKV) Set(_ context.Context, key string, value []byte) error {
	m.data[key] = value
	return nil
}

func (m *mockKV) Del(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func TestLoad_Absent(t *testing.T) {
	s := New(newMockKV(), "cursor:rehydrate")
	got, err := s.Load(context.Background())
	if err != nil || got != "" {
		t.Fatalf("Load = %q, %v", got, err)
	}
}

func TestSaveLoadClear(t *testing.T) {
	ctx := context.Background()
	kv := newMockKV()
	s := New(kv, "cursor:rehydrate")

	if err := s.Save(ctx, "42"); err != nil {
		t.Fatal(err)
	}
	if string(kv.data["cursor:rehydrate"]) != "42" {
		t.Errorf("stored = %q", kv.data["cursor:rehydrate"])
	}
	got, _ := s.Load(ctx)
	if got != "42" {
		t.Errorf("Load = %q", got)
	}

	if err := s.Save(ctx, "43"); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Load(ctx)
	if got != "43" {
		t.Errorf("Load after overwrite = %q", got)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	got, _ = s.Load(ctx)
	if got != "" {
		t.Errorf("Load after clear = %q", got)
	}
}

func TestSave_EmptyClears(t *testing.T) {
	ctx := context.Background()
	kv := newMockKV()
	kv.data["k"] = []byte("x")
	s := New(kv, "k")

	if err := s.Save(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if _, ok := kv.data["k"]; ok {
		t.Error("empty save must clear")
	}
}

func TestLoad_Error(t *testing.T) {
	kv := newMockKV()
	kv.getFn = func(_ context.Context, _ string) ([]byte, error) { return nil, errors.New("conn refused") }
	s := New(kv, "k")

	if _, err := s.Load(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
