package etcd

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strconv"

	"batch-disburser/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// RateLimitDir is the etcd prefix under which attempt counters live.
	RateLimitDir = "/disburse/ratelimit/"

	// casRetries bounds the compare-and-swap loop when concurrent
	// batches contend on the same key.
	casRetries = 8
)

type rateLimitStore struct {
	client *clientv3.Client
	logger *slog.Logger
	tracer trace.Tracer
}

// NewRateLimitStore creates an etcd-backed rate-limit counter store.
// Increments are guarded by a mod-revision transaction so two
// concurrent batches can never both pass the ceiling on one key.
func NewRateLimitStore(client *clientv3.Client, logger *slog.Logger) domain.RateLimitStore {
	return &rateLimitStore{
		client: client,
		logger: logger,
		tracer: otel.Tracer("batch-disburser-etcd-ratelimit"),
	}
}

// Get returns the stored count for key, or found=false if the key was
// never observed.
func (s *rateLimitStore) Get(ctx context.Context, key string) (int64, bool, error) {
	ctx, span := s.tracer.Start(ctx, "store.etcd.GetCounter")
	defer span.End()
	span.SetAttributes(attribute.String("ratelimit.key", key))

	resp, err := s.client.Get(ctx, path.Join(RateLimitDir, key))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get counter from etcd")
		return 0, false, fmt.Errorf("failed to get counter %s from etcd: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return 0, false, nil
	}

	count, err := strconv.ParseInt(string(resp.Kvs[0].Value), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt counter value for %s: %w", key, err)
	}
	return count, true, nil
}

// TryAcquire atomically gates and increments the counter for key. At
// or above limit the counter is left untouched and ok=false is
// returned. The read-then-write is serialized per key by comparing the
// key's mod revision in a transaction and retrying on conflict.
func (s *rateLimitStore) TryAcquire(ctx context.Context, key string, limit int64) (int64, bool, error) {
	ctx, span := s.tracer.Start(ctx, "store.etcd.TryAcquire")
	defer span.End()
	span.SetAttributes(
		attribute.String("ratelimit.key", key),
		attribute.Int64("ratelimit.limit", limit),
	)

	etcdKey := path.Join(RateLimitDir, key)

	for attempt := 0; attempt < casRetries; attempt++ {
		resp, err := s.client.Get(ctx, etcdKey)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to read counter")
			return 0, false, fmt.Errorf("failed to read counter %s: %w", key, err)
		}

		var count int64
		var modRev int64
		if len(resp.Kvs) > 0 {
			count, err = strconv.ParseInt(string(resp.Kvs[0].Value), 10, 64)
			if err != nil {
				return 0, false, fmt.Errorf("corrupt counter value for %s: %w", key, err)
			}
			modRev = resp.Kvs[0].ModRevision
		}

		if count >= limit {
			span.SetAttributes(attribute.Int64("ratelimit.count", count))
			return count, false, nil
		}

		next := strconv.FormatInt(count+1, 10)
		var cmp clientv3.Cmp
		if modRev == 0 {
			// Key must still be absent.
			cmp = clientv3.Compare(clientv3.CreateRevision(etcdKey), "=", 0)
		} else {
			cmp = clientv3.Compare(clientv3.ModRevision(etcdKey), "=", modRev)
		}

		txnResp, err := s.client.Txn(ctx).
			If(cmp).
			Then(clientv3.OpPut(etcdKey, next)).
			Commit()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "counter transaction failed")
			return 0, false, fmt.Errorf("counter transaction for %s failed: %w", key, err)
		}
		if txnResp.Succeeded {
			span.SetAttributes(attribute.Int64("ratelimit.count", count+1))
			return count + 1, true, nil
		}

		// Another batch won the race on this key; re-read and retry.
		s.logger.Debug("counter CAS conflict, retrying", "key", key, "attempt", attempt+1)
	}

	return 0, false, fmt.Errorf("counter %s: too many concurrent updates", key)
}
