// Package scheduler fires recurring disbursement batches on a cron
// schedule. Triggering only hands the batch to the dispatcher; the
// workers do the actual processing.
package scheduler

import (
	"context"
	"log/slog"

	"batch-disburser/internal/domain"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type cronScheduler struct {
	cron       *cron.Cron
	dispatcher domain.BatchDispatcher
	entries    map[string]cron.EntryID
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewCronScheduler creates a scheduler that publishes due batches via
// the dispatcher.
func NewCronScheduler(dispatcher domain.BatchDispatcher, logger *slog.Logger) domain.Scheduler {
	return &cronScheduler{
		cron:       cron.New(cron.WithSeconds()),
		dispatcher: dispatcher,
		entries:    make(map[string]cron.EntryID),
		logger:     logger.With("component", "cron-scheduler"),
		tracer:     otel.Tracer("batch-disburser-scheduler"),
	}
}

func (s *cronScheduler) Start(ctx context.Context) error {
	s.logger.Info("batch scheduler started")
	s.cron.Start()
	<-ctx.Done()
	s.logger.Info("batch scheduler stopping...")
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("batch scheduler stopped")
	return ctx.Err()
}

// Stop halts firing and waits for in-flight dispatches. Called on
// leadership loss; Start may be called again on re-election.
func (s *cronScheduler) Stop() {
	<-s.cron.Stop().Done()
}

// AddBatch registers a recurring batch, replacing any existing entry
// of the same name.
func (s *cronScheduler) AddBatch(sb *domain.ScheduledBatch) error {
	if entryID, ok := s.entries[sb.Name]; ok {
		s.cron.Remove(entryID)
	}

	wrapper := &scheduledBatchWrapper{
		batch:      sb,
		dispatcher: s.dispatcher,
		logger:     s.logger.With("batch_name", sb.Name),
		tracer:     s.tracer,
	}

	entryID, err := s.cron.AddJob(sb.CronExpr, wrapper)
	if err != nil {
		s.logger.Error("failed to add batch to cron", "batch_name", sb.Name, "error", err)
		return err
	}

	s.entries[sb.Name] = entryID
	s.logger.Info("added batch to scheduler", "batch_name", sb.Name, "schedule", sb.CronExpr)
	return nil
}

// RemoveBatch unregisters a recurring batch.
func (s *cronScheduler) RemoveBatch(name string) error {
	if entryID, ok := s.entries[name]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, name)
		s.logger.Info("removed batch from scheduler", "batch_name", name)
	}
	return nil
}

type scheduledBatchWrapper struct {
	batch      *domain.ScheduledBatch
	dispatcher domain.BatchDispatcher
	logger     *slog.Logger
	tracer     trace.Tracer
}

// Run is called by the cron library when the schedule fires. Each
// firing dispatches a fresh batch id so runs stay distinguishable in
// the record history.
func (w *scheduledBatchWrapper) Run() {
	ctx, span := w.tracer.Start(context.Background(), "scheduler.DispatchBatch",
		trace.WithAttributes(attribute.String("batch.name", w.batch.Name)))
	defer span.End()

	req := w.batch.Request
	req.ID = uuid.New().String()
	req.Name = w.batch.Name

	if err := w.dispatcher.DispatchBatch(ctx, &req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to dispatch scheduled batch")
		w.logger.Error("failed to dispatch scheduled batch", "error", err)
		return
	}
	w.logger.Info("scheduled batch dispatched", "batch_id", req.ID)
}
