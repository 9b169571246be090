package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

// --- Mocks ---

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

type mockProvider struct {
	err error
}

func (m *mockProvider) HealthCheck(_ context.Context) error { return m.err }

type slowPinger struct{}

func (slowPinger) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// --- Tests ---

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(&mockPinger{}).
		WithStore("cursor", &mockPinger{}).
		WithProvider("gemini", &mockProvider{})
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	for _, name := range []string{"database", "cursor", "gemini"} {
		if r.Checks[name] != CheckOK {
			t.Errorf("expected %s %q, got %q", name, CheckOK, r.Checks[name])
		}
	}
}

func TestCheck_DBErrorIsUnhealthy(t *testing.T) {
	svc := New(&mockPinger{err: errors.New("conn refused")}).
		WithProvider("gemini", &mockProvider{err: errors.New("x")})
	r := svc.Check(context.Background())

	if r.Status != Unhealthy {
		t.Errorf("expected %q, got %q", Unhealthy, r.Status)
	}
	if r.Checks["database"] != CheckError {
		t.Errorf("expected database %q, got %q", CheckError, r.Checks["database"])
	}
}

func TestCheck_ProviderErrorIsDegraded(t *testing.T) {
	svc := New(&mockPinger{}).WithProvider("openai", &mockProvider{err: errors.New("timeout")})
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["openai"] != CheckError {
		t.Errorf("expected openai %q, got %q", CheckError, r.Checks["openai"])
	}
}

func TestCheck_NilProviderSkipped(t *testing.T) {
	svc := New(&mockPinger{}).WithProvider("gemini", nil).WithStore("cursor", nil)
	r := svc.Check(context.Background())

	if len(r.Checks) != 1 {
		t.Errorf("expected only database check, got %v", r.Checks)
	}
}

func TestCheck_Timeout(t *testing.T) {
	svc := New(&mockPinger{}).WithStore("cursor", slowPinger{}).WithTimeout(10 * time.Millisecond)
	r := svc.Check(context.Background())

	if r.Checks["cursor"] != CheckError || r.Status != Degraded {
		t.Errorf("unexpected report %+v", r)
	}
}

func TestNames(t *testing.T) {
	svc := New(&mockPinger{}).WithProvider("gemini", &mockProvider{}).WithStore("cursor", &mockPinger{})
	got := svc.Names()
	want := []string{"cursor", "database", "gemini"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
