package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"batch-disburser/internal/domain"
	"batch-disburser/internal/infra/memory"
)

func TestAuthBeginCompleteRoundTrip(t *testing.T) {
	s := NewAuthService(memory.NewSessionStore(), time.Minute, testLogger())
	ctx := context.Background()

	state, verifier, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}
	if state == "" || verifier == "" {
		t.Fatal("Begin returned empty tokens")
	}

	got, err := s.Complete(ctx, state)
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if got != verifier {
		t.Errorf("redeemed verifier = %q, want %q", got, verifier)
	}
}

func TestAuthStateRedeemsOnce(t *testing.T) {
	s := NewAuthService(memory.NewSessionStore(), time.Minute, testLogger())
	ctx := context.Background()

	state, _, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}
	if _, err := s.Complete(ctx, state); err != nil {
		t.Fatalf("first Complete returned error: %v", err)
	}
	if _, err := s.Complete(ctx, state); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("second Complete error = %v, want ErrSessionNotFound", err)
	}
}

func TestAuthUnknownState(t *testing.T) {
	s := NewAuthService(memory.NewSessionStore(), time.Minute, testLogger())

	if _, err := s.Complete(context.Background(), "never-issued"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("error = %v, want ErrSessionNotFound", err)
	}
}

func TestAuthStatesAreUnique(t *testing.T) {
	s := NewAuthService(memory.NewSessionStore(), time.Minute, testLogger())
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 32; i++ {
		state, _, err := s.Begin(ctx)
		if err != nil {
			t.Fatalf("Begin returned error: %v", err)
		}
		if seen[state] {
			t.Fatalf("state %q issued twice", state)
		}
		seen[state] = true
	}
}
