// Package engine applies one remote operation to many recipients with
// per-item failure isolation, rate limiting and a single consolidated
// report.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"batch-disburser/internal/domain"
	"batch-disburser/internal/metrics"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// reportTimeout bounds the best-effort report send and record save
// after a batch finishes, independently of the batch's own context.
const reportTimeout = 30 * time.Second

// WorkflowRunner runs one asynchronous remote execution to completion
// and returns its run id. Used for OperationWorkflow items.
type WorkflowRunner interface {
	RunToCompletion(ctx context.Context, input domain.JobInput) (runID string, err error)
}

// Options tune one Engine instance.
type Options struct {
	// Limit is the per-key attempt ceiling.
	Limit int64
	// InterItemDelay spaces successive remote operations. Zero
	// disables the throttle.
	InterItemDelay time.Duration
	// BatchDeadline bounds one whole batch. Zero disables it.
	BatchDeadline time.Duration
}

// Engine is the batch disbursement engine. Recipients are processed
// sequentially, in input order; the rate-limit gate and the throttle
// both rely on that ordering.
type Engine struct {
	limits    domain.RateLimitStore
	transfers domain.TransferClient
	workflows WorkflowRunner
	notifier  domain.Notifier
	records   domain.RecordRepository

	opts     Options
	throttle *rate.Limiter
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New creates an Engine. transfers and workflows may be nil when the
// corresponding operation kind is not configured; executing a batch of
// that kind then aborts with a precondition error. records may be nil.
func New(limits domain.RateLimitStore, transfers domain.TransferClient, workflows WorkflowRunner,
	notifier domain.Notifier, records domain.RecordRepository, opts Options, logger *slog.Logger) *Engine {

	throttle := rate.NewLimiter(rate.Inf, 1)
	if opts.InterItemDelay > 0 {
		throttle = rate.NewLimiter(rate.Every(opts.InterItemDelay), 1)
	}
	if opts.Limit <= 0 {
		opts.Limit = 5
	}

	return &Engine{
		limits:    limits,
		transfers: transfers,
		workflows: workflows,
		notifier:  notifier,
		records:   records,
		opts:      opts,
		throttle:  throttle,
		logger:    logger.With("component", "engine"),
		tracer:    otel.Tracer("batch-disburser-engine"),
	}
}

// Execute runs one batch. The returned result is never nil and the
// report is handed to the notifier on every path, including fatal
// aborts. The error is non-nil only when the batch aborted before
// completing all items.
func (e *Engine) Execute(ctx context.Context, req *domain.BatchRequest) (*domain.BatchResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Execute")
	defer span.End()

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	span.SetAttributes(
		attribute.String("batch.id", req.ID),
		attribute.String("batch.name", req.Name),
		attribute.Int("batch.recipients", len(req.Recipients)),
	)

	result := &domain.BatchResult{
		BatchID:   req.ID,
		Name:      req.Name,
		Items:     []domain.ItemResult{},
		StartedAt: time.Now(),
	}

	if err := e.preflight(req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch aborted before any remote call")
		e.finish(result, domain.BatchFatalError, err.Error(), string(req.OperationKind))
		return result, err
	}

	if e.opts.BatchDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.BatchDeadline)
		defer cancel()
	}

	for i, recipient := range req.Recipients {
		if err := ctx.Err(); err != nil {
			// Deadline or cancellation mid-batch: the remaining
			// recipients are never attempted.
			e.logger.Error("batch aborted mid-run", "batch_id", req.ID, "processed", i, "error", err)
			e.finish(result, domain.BatchFatalError,
				fmt.Sprintf("aborted after %d of %d items: %v", i, len(req.Recipients), err),
				string(req.OperationKind))
			return result, fmt.Errorf("%w: %v", domain.ErrPrecondition, err)
		}
		result.Items = append(result.Items, e.processItem(ctx, req, recipient))
	}

	result.DeriveOverall()
	e.finish(result, result.Overall, "", string(req.OperationKind))
	return result, nil
}

// preflight checks the batch-level preconditions before any remote
// call is made.
func (e *Engine) preflight(req *domain.BatchRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	switch req.OperationKind {
	case domain.OperationTransfer:
		if e.transfers == nil {
			return fmt.Errorf("%w: signing credential not loaded", domain.ErrPrecondition)
		}
	case domain.OperationWorkflow:
		if e.workflows == nil {
			return fmt.Errorf("%w: no execution service configured", domain.ErrPrecondition)
		}
	}
	return nil
}

// processItem handles a single recipient. Failures are caught here, at
// the iteration boundary, so one recipient can never abort the loop.
func (e *Engine) processItem(ctx context.Context, req *domain.BatchRequest, recipient domain.RecipientTarget) domain.ItemResult {
	ctx, span := e.tracer.Start(ctx, "engine.ProcessItem",
		trace.WithAttributes(attribute.String("recipient", recipient.Address)))
	defer span.End()

	item := domain.ItemResult{Recipient: recipient}
	key := req.RateLimitKey(recipient)

	count, ok, err := e.limits.TryAcquire(ctx, key, e.opts.Limit)
	if err != nil {
		span.RecordError(err)
		item.Status = domain.ItemFailed
		item.Detail = fmt.Sprintf("rate-limit store: %v", err)
		metrics.BatchItemsTotal.WithLabelValues(string(req.OperationKind), string(item.Status)).Inc()
		return item
	}
	if !ok {
		// At the ceiling: no remote call, and the counter stays put.
		span.SetAttributes(attribute.Int64("rate_limit.count", count))
		e.logger.Info("recipient rate limited", "batch_id", req.ID, "key", key, "count", count)
		item.Status = domain.ItemRateLimited
		item.Detail = fmt.Sprintf("%v for %s", domain.ErrRateLimited, key)
		metrics.BatchItemsTotal.WithLabelValues(string(req.OperationKind), string(item.Status)).Inc()
		return item
	}

	// Deliberate throttle: the ledger RPC rejects bursts.
	if err := e.throttle.Wait(ctx); err != nil {
		item.Status = domain.ItemFailed
		item.Detail = err.Error()
		metrics.BatchItemsTotal.WithLabelValues(string(req.OperationKind), string(item.Status)).Inc()
		return item
	}

	detail, err := e.perform(ctx, req.OperationKind, recipient)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "remote operation failed")
		e.logger.Warn("recipient failed", "batch_id", req.ID, "recipient", recipient.Address, "error", err)
		item.Status = domain.ItemFailed
		item.Detail = fmt.Errorf("%w: %v", domain.ErrRemoteCall, err).Error()
	} else {
		item.Status = domain.ItemSuccess
		item.Detail = detail
	}
	metrics.BatchItemsTotal.WithLabelValues(string(req.OperationKind), string(item.Status)).Inc()
	return item
}

// perform executes the remote operation for one recipient and returns
// the identifier the remote side assigned.
func (e *Engine) perform(ctx context.Context, kind domain.OperationKind, recipient domain.RecipientTarget) (string, error) {
	switch kind {
	case domain.OperationTransfer:
		return e.transfers.SubmitTransfer(ctx, recipient.Address, recipient.Amount)
	case domain.OperationWorkflow:
		input := domain.JobInput{"recipient": recipient.Address}
		if recipient.Amount != "" {
			input["amount"] = recipient.Amount
		}
		return e.workflows.RunToCompletion(ctx, input)
	default:
		return "", fmt.Errorf("unknown operation kind %q", kind)
	}
}

// finish stamps the result, persists it and hands the report to the
// notifier. Both steps are best-effort and never alter the computed
// per-item results.
func (e *Engine) finish(result *domain.BatchResult, overall domain.OverallStatus, fatal, operation string) {
	result.Overall = overall
	result.FatalError = fatal
	result.FinishedAt = time.Now()
	metrics.BatchesTotal.WithLabelValues(operation, string(overall)).Inc()

	// The batch context may already be dead (deadline, shutdown); the
	// report still has to go out.
	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()

	if e.records != nil {
		if err := e.records.Save(ctx, result); err != nil {
			e.logger.Warn("failed to persist batch record", "batch_id", result.BatchID, "error", err)
		}
	}

	subject, body := FormatReport(result)
	if err := e.notifier.Send(ctx, subject, body); err != nil {
		metrics.ReportSendFailuresTotal.Inc()
		e.logger.Error("failed to send batch report", "batch_id", result.BatchID, "error", err)
	}
}

// IsFatal reports whether err marks a batch-level abort rather than a
// per-item failure.
func IsFatal(err error) bool {
	return errors.Is(err, domain.ErrPrecondition)
}
