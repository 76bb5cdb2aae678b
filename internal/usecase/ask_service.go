package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"batch-disburser/internal/domain"
	"batch-disburser/internal/jobrunner"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// AskService handles single-question jobs: rate-limit the requesting
// emails, dispatch one remote execution, and let the caller poll for
// the answer.
type AskService struct {
	runner *jobrunner.Runner
	limits domain.RateLimitStore
	limit  int64
	logger *slog.Logger
	tracer trace.Tracer
}

// NewAskService creates an AskService enforcing limit attempts per
// requester email.
func NewAskService(runner *jobrunner.Runner, limits domain.RateLimitStore, limit int64, logger *slog.Logger) *AskService {
	return &AskService{
		runner: runner,
		limits: limits,
		limit:  limit,
		logger: logger,
		tracer: otel.Tracer("batch-disburser-usecase"),
	}
}

// AskResult is one poll of a dispatched question.
type AskResult struct {
	Status string `json:"status"`
	Answer string `json:"answer,omitempty"`
}

// Ask gates every requester email against the rate limit, then
// dispatches a single job carrying the question. An email already at
// its ceiling rejects the whole request before the dispatch and
// without touching any counter further.
func (s *AskService) Ask(ctx context.Context, question string, emails []string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "service.Ask")
	defer span.End()
	span.SetAttributes(attribute.Int("ask.emails", len(emails)))

	if question == "" {
		return "", fmt.Errorf("%w: question cannot be empty", domain.ErrPrecondition)
	}
	if len(emails) == 0 {
		return "", fmt.Errorf("%w: at least one requester email is required", domain.ErrPrecondition)
	}

	for _, email := range emails {
		count, ok, err := s.limits.TryAcquire(ctx, email, s.limit)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "rate-limit store unavailable")
			return "", err
		}
		if !ok {
			s.logger.Info("ask rejected by rate limit", "email", email, "count", count)
			return "", fmt.Errorf("%w for %s", domain.ErrRateLimited, email)
		}
	}

	emailsJSON, err := json.Marshal(emails)
	if err != nil {
		return "", fmt.Errorf("failed to encode requester emails: %w", err)
	}

	handle, err := s.runner.Dispatch(ctx, domain.JobInput{
		"question": question,
		"emails":   string(emailsJSON),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch failed")
		return "", err
	}
	return handle.RunID, nil
}

// Result polls the run once. While the run is still processing the
// status is "processing"; once the artifact exists the answer field of
// the result document is returned with status "done".
func (s *AskService) Result(ctx context.Context, runID string) (*AskResult, error) {
	ctx, span := s.tracer.Start(ctx, "service.AskResult",
		trace.WithAttributes(attribute.String("job.run_id", runID)))
	defer span.End()

	doc, ready, err := s.runner.PeekResult(ctx, runID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !ready {
		return &AskResult{Status: "processing"}, nil
	}

	var parsed struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal(doc, &parsed); err != nil {
		return nil, fmt.Errorf("%w: unreadable result document for run %s: %v", domain.ErrArtifactMissing, runID, err)
	}
	return &AskResult{Status: "done", Answer: parsed.Answer}, nil
}

// Cleanup deletes a consumed artifact on the remote service.
func (s *AskService) Cleanup(ctx context.Context, artifactID string) error {
	ctx, span := s.tracer.Start(ctx, "service.AskCleanup",
		trace.WithAttributes(attribute.String("artifact.id", artifactID)))
	defer span.End()

	if err := s.runner.DeleteArtifact(ctx, artifactID); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}
