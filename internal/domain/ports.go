package domain

import (
	"context"
	"math/big"
	"time"
)

// RunRef identifies one run registered by the execution service.
type RunRef struct {
	ID        string
	CreatedAt time.Time
}

// ArtifactRef points at one result artifact of a run.
type ArtifactRef struct {
	ID          string
	DownloadRef string
}

// ExecutionService is the remote asynchronous execution collaborator.
// Submit is accepted without a run id; the service registers the run on
// its own schedule, so callers resolve the id afterwards via RecentRuns.
type ExecutionService interface {
	Submit(ctx context.Context, input JobInput) error
	RecentRuns(ctx context.Context, limit int) ([]RunRef, error)
	Artifacts(ctx context.Context, runID string) ([]ArtifactRef, error)
	// Fetch downloads the artifact archive (a ZIP containing a single
	// result document).
	Fetch(ctx context.Context, downloadRef string) ([]byte, error)
	Delete(ctx context.Context, artifactID string) error
}

// RateLimitStore persists attempt counters per rate-limit key. All
// mutations of a given key must be serialized so two concurrent
// batches cannot both pass the ceiling.
type RateLimitStore interface {
	// Get returns the stored count for key, or found=false if the key
	// has never been observed.
	Get(ctx context.Context, key string) (count int64, found bool, err error)
	// TryAcquire atomically performs the gate-and-increment: if the
	// stored count is below limit it is incremented (inserted with 1
	// when absent) and ok=true is returned with the new count. At or
	// above the limit the counter is left untouched and ok=false is
	// returned with the current count.
	TryAcquire(ctx context.Context, key string, limit int64) (count int64, ok bool, err error)
}

// TransferClient signs and submits ledger transfers from a configured
// funding account.
type TransferClient interface {
	Balance(ctx context.Context, address string) (*big.Int, error)
	// SubmitTransfer moves amount (a decimal token string) to the
	// recipient and returns the transaction reference.
	SubmitTransfer(ctx context.Context, to string, amount string) (txRef string, err error)
}

// Notifier delivers the consolidated batch report. Send failures are
// logged by callers, never escalated past a completed batch.
type Notifier interface {
	Send(ctx context.Context, subject, body string) error
}

// AuthSession is one leg of a multi-step external auth flow. Sessions
// are persisted with expiry so a stateless instance can serve the
// callback leg.
type AuthSession struct {
	Verifier  string    `json:"verifier"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionStore persists auth sessions keyed by the request-scoped
// state parameter.
type SessionStore interface {
	Save(ctx context.Context, state string, sess AuthSession, ttl time.Duration) error
	Get(ctx context.Context, state string) (AuthSession, error)
	Delete(ctx context.Context, state string) error
}

// RecordRepository persists completed batch results for later review.
type RecordRepository interface {
	Save(ctx context.Context, result *BatchResult) error
	// ListByName returns historical results for a batch name, newest
	// first, with pagination.
	ListByName(ctx context.Context, name string, page, pageSize int) ([]*BatchResult, error)
}

// BatchDispatcher hands an accepted batch request off for execution,
// e.g. by publishing it to the intake queue.
type BatchDispatcher interface {
	DispatchBatch(ctx context.Context, req *BatchRequest) error
}
