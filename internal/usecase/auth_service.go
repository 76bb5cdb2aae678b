package usecase

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"batch-disburser/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// AuthService manages the two legs of the external auth flow. The
// initiating leg stores a verifier keyed by a request-scoped state;
// the callback leg, possibly served by a different instance, redeems
// it. Sessions expire on their own, so abandoned flows leave nothing
// behind.
type AuthService struct {
	sessions domain.SessionStore
	ttl      time.Duration
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewAuthService creates an AuthService whose sessions live for ttl.
func NewAuthService(sessions domain.SessionStore, ttl time.Duration, logger *slog.Logger) *AuthService {
	return &AuthService{
		sessions: sessions,
		ttl:      ttl,
		logger:   logger,
		tracer:   otel.Tracer("batch-disburser-usecase"),
	}
}

// Begin starts an auth flow: it generates the state and code verifier
// and persists the session.
func (s *AuthService) Begin(ctx context.Context) (state, verifier string, err error) {
	ctx, span := s.tracer.Start(ctx, "service.AuthBegin")
	defer span.End()

	state, err = randomToken(24)
	if err != nil {
		return "", "", err
	}
	verifier, err = randomToken(48)
	if err != nil {
		return "", "", err
	}

	sess := domain.AuthSession{Verifier: verifier, CreatedAt: time.Now()}
	if err := s.sessions.Save(ctx, state, sess, s.ttl); err != nil {
		span.RecordError(err)
		return "", "", err
	}

	s.logger.Info("auth flow started", "state", state)
	return state, verifier, nil
}

// Complete redeems the callback leg: it returns the stored verifier
// and deletes the session so a state can be redeemed once.
func (s *AuthService) Complete(ctx context.Context, state string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "service.AuthComplete")
	defer span.End()

	sess, err := s.sessions.Get(ctx, state)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if err := s.sessions.Delete(ctx, state); err != nil {
		s.logger.Warn("failed to delete redeemed auth session", "state", state, "error", err)
	}
	return sess.Verifier, nil
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
