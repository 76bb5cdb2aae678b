package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"

	"batch-disburser/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// RecordDir is the etcd prefix for completed batch results,
	// keyed as /disburse/records/{batchName}/{batchID}.
	RecordDir = "/disburse/records/"
)

type recordRepository struct {
	client *clientv3.Client
	logger *slog.Logger
	tracer trace.Tracer
}

// NewRecordRepository creates a repository for batch results backed by
// etcd.
func NewRecordRepository(client *clientv3.Client, logger *slog.Logger) domain.RecordRepository {
	return &recordRepository{
		client: client,
		logger: logger,
		tracer: otel.Tracer("batch-disburser-etcd-records"),
	}
}

// Save persists one batch result.
func (r *recordRepository) Save(ctx context.Context, result *domain.BatchResult) error {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.SaveRecord")
	defer span.End()

	resultJSON, err := json.Marshal(result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal batch result")
		return fmt.Errorf("failed to marshal batch result %s to JSON: %w", result.BatchID, err)
	}

	key := path.Join(RecordDir, result.Name, result.BatchID)
	span.SetAttributes(
		attribute.String("batch.id", result.BatchID),
		attribute.String("batch.name", result.Name),
		attribute.String("etcd.key", key),
	)

	if _, err := r.client.Put(ctx, key, string(resultJSON)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put batch result to etcd")
		return fmt.Errorf("failed to save batch result %s to etcd: %w", result.BatchID, err)
	}
	return nil
}

// ListByName retrieves historical results for a batch name, newest
// first, with pagination.
func (r *recordRepository) ListByName(ctx context.Context, name string, page, pageSize int) ([]*domain.BatchResult, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.ListRecords")
	defer span.End()
	span.SetAttributes(
		attribute.String("batch.name", name),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize),
	)

	prefix := path.Join(RecordDir, name) + "/"
	resp, err := r.client.Get(ctx, prefix,
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByCreateRevision, clientv3.SortDescend),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list batch results from etcd")
		return nil, fmt.Errorf("failed to list batch results for %s from etcd: %w", name, err)
	}

	// Index-based pagination over the sorted key range. Fine for the
	// volumes a single batch name accumulates.
	startIdx := (page - 1) * pageSize
	endIdx := startIdx + pageSize

	results := make([]*domain.BatchResult, 0, pageSize)
	for i, kv := range resp.Kvs {
		if i < startIdx {
			continue
		}
		if i >= endIdx {
			break
		}

		var result domain.BatchResult
		if err := json.Unmarshal(kv.Value, &result); err != nil {
			r.logger.Warn("failed to unmarshal batch result from etcd", "key", string(kv.Key), "error", err)
			continue
		}
		results = append(results, &result)
	}
	span.SetAttributes(attribute.Int("records_returned", len(results)))
	return results, nil
}
