package usecase

import (
	"context"
	"log/slog"

	"batch-disburser/internal/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// BatchService accepts batch requests on the API node and hands them
// to the intake queue; workers pick them up from there.
type BatchService struct {
	dispatcher domain.BatchDispatcher
	records    domain.RecordRepository
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewBatchService creates a BatchService.
func NewBatchService(dispatcher domain.BatchDispatcher, records domain.RecordRepository, logger *slog.Logger) *BatchService {
	return &BatchService{
		dispatcher: dispatcher,
		records:    records,
		logger:     logger,
		tracer:     otel.Tracer("batch-disburser-usecase"),
	}
}

// Submit validates the request, assigns a batch id and publishes it
// for execution. It returns the assigned id.
func (s *BatchService) Submit(ctx context.Context, req *domain.BatchRequest) (string, error) {
	ctx, span := s.tracer.Start(ctx, "service.SubmitBatch")
	defer span.End()

	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch validation failed")
		return "", err
	}

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	span.SetAttributes(
		attribute.String("batch.id", req.ID),
		attribute.String("batch.name", req.Name),
	)

	if err := s.dispatcher.DispatchBatch(ctx, req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish batch")
		s.logger.Error("failed to publish batch", "batch_id", req.ID, "error", err)
		return "", err
	}

	s.logger.Info("batch accepted", "batch_id", req.ID, "name", req.Name, "recipients", len(req.Recipients))
	return req.ID, nil
}

// History lists past results for a batch name, newest first.
func (s *BatchService) History(ctx context.Context, name string, page, pageSize int) ([]*domain.BatchResult, error) {
	ctx, span := s.tracer.Start(ctx, "service.BatchHistory")
	defer span.End()
	span.SetAttributes(
		attribute.String("batch.name", name),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	)

	results, err := s.records.ListByName(ctx, name, page, pageSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list batch history")
	}
	return results, err
}
