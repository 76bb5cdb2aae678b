package usecase

import (
	"context"
	"log/slog"
	"time"

	"batch-disburser/internal/domain"
	"batch-disburser/internal/metrics"
)

// SchedulerService runs the recurring-batch scheduler on whichever
// node currently holds leadership, so a schedule fires exactly once
// across the cluster.
type SchedulerService struct {
	leaderManager domain.LeaderElectionManager
	scheduler     domain.Scheduler
	batches       []*domain.ScheduledBatch
	nodeID        string
	logger        *slog.Logger
}

// NewSchedulerService creates a SchedulerService firing the given
// scheduled batches.
func NewSchedulerService(leaderManager domain.LeaderElectionManager, scheduler domain.Scheduler,
	batches []*domain.ScheduledBatch, nodeID string, logger *slog.Logger) *SchedulerService {
	return &SchedulerService{
		leaderManager: leaderManager,
		scheduler:     scheduler,
		batches:       batches,
		nodeID:        nodeID,
		logger:        logger.With("component", "scheduler-service", "node_id", nodeID),
	}
}

// Start campaigns for leadership in a loop. While leading, the cron
// scheduler runs; when leadership is lost the scheduler stops and the
// node campaigns again.
func (s *SchedulerService) Start(ctx context.Context) error {
	s.logger.Info("scheduler service starting")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler service shutting down")
			s.scheduler.Stop()
			return ctx.Err()
		default:
			s.logger.Info("campaigning for scheduler leadership")
			lostLeadershipCh, err := s.leaderManager.Campaign(ctx)
			if err != nil {
				s.logger.Error("leadership campaign failed, retrying", "error", err)
				time.Sleep(5 * time.Second)
				continue
			}

			metrics.IsLeader.WithLabelValues(s.nodeID).Set(1)
			s.logger.Info("became leader, starting scheduler")
			s.runScheduler(ctx)

			select {
			case <-lostLeadershipCh:
				metrics.IsLeader.WithLabelValues(s.nodeID).Set(0)
				s.logger.Warn("lost scheduler leadership")
				s.scheduler.Stop()
			case <-ctx.Done():
				metrics.IsLeader.WithLabelValues(s.nodeID).Set(0)
				s.scheduler.Stop()
				return ctx.Err()
			}
		}
	}
}

func (s *SchedulerService) runScheduler(ctx context.Context) {
	for _, sb := range s.batches {
		if err := s.scheduler.AddBatch(sb); err != nil {
			s.logger.Error("failed to register scheduled batch", "batch_name", sb.Name, "error", err)
			return
		}
	}

	go func() {
		_ = s.scheduler.Start(ctx)
	}()
}
