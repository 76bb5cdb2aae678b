package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"batch-disburser/internal/domain"
	"batch-disburser/internal/engine"
	"batch-disburser/internal/queue"
)

const lockRetryDelay = 2 * time.Second

// WorkerService consumes batch requests from the intake topic and runs
// them through the disbursement engine. A distributed lock per batch
// name keeps two workers from disbursing the same schedule at once.
type WorkerService struct {
	consumer *queue.Consumer
	engine   *engine.Engine
	locker   domain.Locker
	logger   *slog.Logger
}

func NewWorkerService(consumer *queue.Consumer, eng *engine.Engine, locker domain.Locker, logger *slog.Logger) *WorkerService {
	return &WorkerService{
		consumer: consumer,
		engine:   eng,
		locker:   locker,
		logger:   logger.With("component", "worker-service"),
	}
}

// Start consumes and executes batches until ctx is canceled.
func (s *WorkerService) Start(ctx context.Context) error {
	s.logger.Info("worker service starting")

	for {
		msg, commit, err := s.consumer.ReadBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info("worker service shutting down")
				return ctx.Err()
			}
			s.logger.Error("failed to read batch message", "error", err)
			continue
		}

		s.processBatch(ctx, msg)

		if err := commit(ctx); err != nil {
			s.logger.Error("failed to commit batch message", "batch_id", msg.BatchID, "error", err)
		}
	}
}

func (s *WorkerService) processBatch(ctx context.Context, msg queue.BatchMessage) {
	req := msg.ToDomain()
	logger := s.logger.With("batch_id", req.ID, "batch_name", req.Name)

	lock, err := s.acquireLock(ctx, req.Name)
	if err != nil {
		logger.Error("could not acquire batch lock", "error", err)
		return
	}
	defer func() {
		if err := lock.Unlock(context.Background()); err != nil {
			logger.Warn("failed to release batch lock", "error", err)
		}
	}()

	result, err := s.engine.Execute(ctx, req)
	if err != nil {
		logger.Error("batch execution failed", "error", err)
		return
	}
	logger.Info("batch executed",
		"overall", result.Overall,
		"items", len(result.Items))
}

// acquireLock retries until the batch lock is free or ctx is done.
func (s *WorkerService) acquireLock(ctx context.Context, name string) (domain.Lock, error) {
	for {
		lock, err := s.locker.Lock(ctx, "batch/"+name)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, domain.ErrLockNotAcquired) {
			return nil, err
		}

		s.logger.Debug("batch lock held elsewhere, retrying", "batch_name", name)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
}
