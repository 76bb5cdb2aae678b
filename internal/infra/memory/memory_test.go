package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"batch-disburser/internal/domain"
)

func TestRateLimitStoreGateAndIncrement(t *testing.T) {
	s := NewRateLimitStore()
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		count, ok, err := s.TryAcquire(ctx, "k", 5)
		if err != nil {
			t.Fatalf("TryAcquire returned error: %v", err)
		}
		if !ok || count != i {
			t.Fatalf("attempt %d: got (%d, %v), want (%d, true)", i, count, ok, i)
		}
	}

	// At the ceiling the counter must stay put.
	for i := 0; i < 3; i++ {
		count, ok, err := s.TryAcquire(ctx, "k", 5)
		if err != nil {
			t.Fatalf("TryAcquire returned error: %v", err)
		}
		if ok || count != 5 {
			t.Errorf("past ceiling: got (%d, %v), want (5, false)", count, ok)
		}
	}

	count, found, err := s.Get(ctx, "k")
	if err != nil || !found || count != 5 {
		t.Errorf("Get = (%d, %v, %v), want (5, true, nil)", count, found, err)
	}
}

func TestRateLimitStoreUnknownKey(t *testing.T) {
	s := NewRateLimitStore()

	count, found, err := s.Get(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if found || count != 0 {
		t.Errorf("Get = (%d, %v), want (0, false)", count, found)
	}
}

func TestRateLimitStoreKeysAreIndependent(t *testing.T) {
	s := NewRateLimitStore()
	ctx := context.Background()

	s.TryAcquire(ctx, "a", 1)
	if _, ok, _ := s.TryAcquire(ctx, "a", 1); ok {
		t.Error("key a should be at its ceiling")
	}
	if _, ok, _ := s.TryAcquire(ctx, "b", 1); !ok {
		t.Error("key b must not be affected by key a's ceiling")
	}
}

func TestSessionStoreRoundTrip(t *testing.T) {
	s := NewSessionStore()
	ctx := context.Background()

	sess := domain.AuthSession{Verifier: "v-1", CreatedAt: time.Now()}
	if err := s.Save(ctx, "state-1", sess, time.Minute); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	got, err := s.Get(ctx, "state-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.Verifier != "v-1" {
		t.Errorf("verifier = %q, want v-1", got.Verifier)
	}

	if err := s.Delete(ctx, "state-1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := s.Get(ctx, "state-1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("after delete: error = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionStoreExpiry(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	s := &sessionStore{
		sessions: make(map[string]sessionEntry),
		now:      func() time.Time { return now },
	}
	ctx := context.Background()

	if err := s.Save(ctx, "state-1", domain.AuthSession{Verifier: "v-1"}, 10*time.Minute); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	now = now.Add(9 * time.Minute)
	if _, err := s.Get(ctx, "state-1"); err != nil {
		t.Fatalf("session expired too early: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := s.Get(ctx, "state-1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("past ttl: error = %v, want ErrSessionNotFound", err)
	}
}
