// Package jobrunner turns one asynchronous remote execution into a
// value the caller can await, hiding the submit/poll/fetch protocol of
// the execution service.
package jobrunner

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"batch-disburser/internal/backoff"
	"batch-disburser/internal/domain"
	"batch-disburser/internal/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PollPolicy bounds the poll loop of AwaitCompletion.
type PollPolicy struct {
	// Strategy yields the delay before each status query.
	Strategy backoff.Strategy
	// MaxWait bounds the whole wait; ErrTimeout past it.
	MaxWait time.Duration
}

// Runner drives jobs through Dispatched → Polling → terminal states.
type Runner struct {
	svc    domain.ExecutionService
	clock  backoff.Clock
	logger *slog.Logger
	tracer trace.Tracer

	// settleDelay is waited between a dispatch and the first status
	// query, because the service registers the run asynchronously.
	settleDelay time.Duration
}

// New creates a Runner. A zero settleDelay is replaced by the 2s
// default the execution service needs to register a run.
func New(svc domain.ExecutionService, clock backoff.Clock, settleDelay time.Duration, logger *slog.Logger) *Runner {
	if clock == nil {
		clock = backoff.SystemClock{}
	}
	if settleDelay <= 0 {
		settleDelay = 2 * time.Second
	}
	return &Runner{
		svc:         svc,
		clock:       clock,
		settleDelay: settleDelay,
		logger:      logger.With("component", "jobrunner"),
		tracer:      otel.Tracer("batch-disburser-jobrunner"),
	}
}

// Dispatch submits input to the execution service and resolves the run
// id of the registered run.
func (r *Runner) Dispatch(ctx context.Context, input domain.JobInput) (*domain.JobHandle, error) {
	ctx, span := r.tracer.Start(ctx, "jobrunner.Dispatch")
	defer span.End()

	if err := r.svc.Submit(ctx, input); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit rejected")
		return nil, fmt.Errorf("%w: %v", domain.ErrDispatch, err)
	}
	metrics.JobsDispatchedTotal.Inc()

	// The service does not return a run id synchronously; querying too
	// early races its own bookkeeping.
	if err := r.clock.Sleep(ctx, r.settleDelay); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDispatch, err)
	}

	runs, err := r.svc.RecentRuns(ctx, 1)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resolve run id")
		return nil, fmt.Errorf("%w: resolving run id: %v", domain.ErrDispatch, err)
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: no run registered after dispatch", domain.ErrDispatch)
	}

	handle := &domain.JobHandle{
		RunID:        runs[0].ID,
		Input:        input,
		State:        domain.JobStateDispatched,
		DispatchedAt: r.clock.Now(),
	}
	span.SetAttributes(attribute.String("job.run_id", handle.RunID))
	r.logger.Info("job dispatched", "run_id", handle.RunID)
	return handle, nil
}

// AwaitCompletion polls run artifacts until the job produces one, the
// service becomes unreachable, or policy.MaxWait elapses. The
// "no artifact yet" state is retryable, not an error.
func (r *Runner) AwaitCompletion(ctx context.Context, handle *domain.JobHandle, policy PollPolicy) (*domain.JobResult, error) {
	ctx, span := r.tracer.Start(ctx, "jobrunner.AwaitCompletion",
		trace.WithAttributes(attribute.String("job.run_id", handle.RunID)))
	defer span.End()

	if policy.Strategy == nil {
		policy.Strategy = backoff.NewConstant(3 * time.Second)
	}

	handle.State = domain.JobStatePolling
	deadline := r.clock.Now().Add(policy.MaxWait)

	for attempt := 1; ; attempt++ {
		metrics.JobPollAttemptsTotal.Inc()
		artifacts, err := r.svc.Artifacts(ctx, handle.RunID)
		if err != nil {
			handle.State = domain.JobStateFailed
			span.RecordError(err)
			span.SetStatus(codes.Error, "service unreachable mid-poll")
			return &domain.JobResult{RunID: handle.RunID, State: handle.State},
				fmt.Errorf("%w: run %s: %v", domain.ErrPoll, handle.RunID, err)
		}

		if len(artifacts) > 0 {
			handle.State = domain.JobStateSucceeded
			handle.ArtifactID = artifacts[0].ID
			span.SetAttributes(attribute.Int("job.poll_attempts", attempt))
			r.logger.Info("job completed", "run_id", handle.RunID, "attempts", attempt)
			return &domain.JobResult{
				RunID:      handle.RunID,
				State:      handle.State,
				ArtifactID: handle.ArtifactID,
			}, nil
		}

		if policy.MaxWait > 0 && !r.clock.Now().Before(deadline) {
			handle.State = domain.JobStateTimedOut
			span.SetStatus(codes.Error, "poll deadline exceeded")
			return &domain.JobResult{RunID: handle.RunID, State: handle.State},
				fmt.Errorf("%w: run %s after %s", domain.ErrTimeout, handle.RunID, policy.MaxWait)
		}

		if err := r.clock.Sleep(ctx, policy.Strategy.Delay(attempt)); err != nil {
			handle.State = domain.JobStateFailed
			return &domain.JobResult{RunID: handle.RunID, State: handle.State},
				fmt.Errorf("%w: run %s: %v", domain.ErrPoll, handle.RunID, err)
		}
	}
}

// FetchArtifact retrieves and unpacks the result document of a
// succeeded job. Exactly one successful fetch is allowed per handle.
func (r *Runner) FetchArtifact(ctx context.Context, handle *domain.JobHandle) ([]byte, error) {
	ctx, span := r.tracer.Start(ctx, "jobrunner.FetchArtifact",
		trace.WithAttributes(attribute.String("job.run_id", handle.RunID)))
	defer span.End()

	if handle.State != domain.JobStateSucceeded {
		return nil, fmt.Errorf("%w: job in state %q", domain.ErrArtifactMissing, handle.State)
	}
	if handle.ArtifactConsumed() {
		return nil, fmt.Errorf("%w: artifact already consumed", domain.ErrArtifactMissing)
	}

	artifacts, err := r.svc.Artifacts(ctx, handle.RunID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: run %s: %v", domain.ErrPoll, handle.RunID, err)
	}
	if len(artifacts) == 0 {
		span.SetStatus(codes.Error, "run reported success without artifact")
		return nil, fmt.Errorf("%w: run %s has no artifact attached", domain.ErrArtifactMissing, handle.RunID)
	}

	archive, err := r.svc.Fetch(ctx, artifacts[0].DownloadRef)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: downloading artifact for run %s: %v", domain.ErrPoll, handle.RunID, err)
	}

	doc, err := ExtractResultDocument(archive)
	if err != nil {
		return nil, fmt.Errorf("%w: run %s: %v", domain.ErrArtifactMissing, handle.RunID, err)
	}

	handle.MarkArtifactConsumed()
	return doc, nil
}

// PeekResult makes a single non-blocking status query for a run: the
// result document when the run has produced its artifact, or
// ready=false while it is still processing.
func (r *Runner) PeekResult(ctx context.Context, runID string) (doc []byte, ready bool, err error) {
	ctx, span := r.tracer.Start(ctx, "jobrunner.PeekResult",
		trace.WithAttributes(attribute.String("job.run_id", runID)))
	defer span.End()

	artifacts, err := r.svc.Artifacts(ctx, runID)
	if err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("%w: run %s: %v", domain.ErrPoll, runID, err)
	}
	if len(artifacts) == 0 {
		return nil, false, nil
	}

	archive, err := r.svc.Fetch(ctx, artifacts[0].DownloadRef)
	if err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("%w: downloading artifact for run %s: %v", domain.ErrPoll, runID, err)
	}

	doc, err = ExtractResultDocument(archive)
	if err != nil {
		return nil, false, fmt.Errorf("%w: run %s: %v", domain.ErrArtifactMissing, runID, err)
	}
	return doc, true, nil
}

// DeleteArtifact removes one artifact by id. Unlike Cleanup this is a
// caller-driven operation, so errors are returned.
func (r *Runner) DeleteArtifact(ctx context.Context, artifactID string) error {
	return r.svc.Delete(ctx, artifactID)
}

// Cleanup removes the artifact on the remote service. Cleanup is
// advisory; failures are logged and never propagated.
func (r *Runner) Cleanup(ctx context.Context, handle *domain.JobHandle) {
	if handle.ArtifactID == "" {
		artifacts, err := r.svc.Artifacts(ctx, handle.RunID)
		if err != nil || len(artifacts) == 0 {
			return
		}
		handle.ArtifactID = artifacts[0].ID
	}
	if err := r.svc.Delete(ctx, handle.ArtifactID); err != nil {
		r.logger.Warn("artifact cleanup failed", "run_id", handle.RunID, "artifact_id", handle.ArtifactID, "error", err)
	}
}

// ExtractResultDocument reads the single result document out of an
// artifact ZIP archive.
func ExtractResultDocument(archive []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("unreadable artifact archive: %w", err)
	}
	if len(zr.File) == 0 {
		return nil, fmt.Errorf("artifact archive is empty")
	}

	f, err := zr.File[0].Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open result document: %w", err)
	}
	defer f.Close()

	doc, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read result document: %w", err)
	}
	if len(doc) == 0 {
		return nil, fmt.Errorf("result document is empty")
	}
	return doc, nil
}
