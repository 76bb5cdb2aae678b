package domain

import (
	"fmt"
	"time"
)

// OperationKind selects which remote action the engine performs per
// recipient.
type OperationKind string

const (
	// OperationTransfer submits a signed ledger transfer directly.
	OperationTransfer OperationKind = "transfer"
	// OperationWorkflow delegates each recipient to the job runner,
	// running an asynchronous remote execution per item.
	OperationWorkflow OperationKind = "workflow"
)

// RecipientTarget is one unit of work within a batch.
type RecipientTarget struct {
	Address string `json:"address"`
	// Amount is a decimal token amount. Optional for workflow
	// operations.
	Amount string `json:"amount,omitempty"`
}

// RateLimitKeyFunc maps a recipient to its rate-limit identity,
// e.g. an email or wallet address.
type RateLimitKeyFunc func(RecipientTarget) string

// KeyByAddress is the default rate-limit identity: the recipient
// address itself.
func KeyByAddress(t RecipientTarget) string { return t.Address }

// BatchRequest is one invocation of the disbursement engine.
type BatchRequest struct {
	ID            string
	Name          string
	OperationKind OperationKind
	Recipients    []RecipientTarget
	RateLimitKey  RateLimitKeyFunc
}

// Validate checks the batch-level preconditions that must hold before
// any remote call is made.
func (b *BatchRequest) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("%w: batch name cannot be empty", ErrPrecondition)
	}
	if len(b.Recipients) == 0 {
		return fmt.Errorf("%w: recipient list cannot be empty", ErrPrecondition)
	}
	switch b.OperationKind {
	case OperationTransfer, OperationWorkflow:
	default:
		return fmt.Errorf("%w: invalid operation kind %q", ErrPrecondition, b.OperationKind)
	}
	if b.RateLimitKey == nil {
		b.RateLimitKey = KeyByAddress
	}
	for i, r := range b.Recipients {
		if b.RateLimitKey(r) == "" {
			return fmt.Errorf("%w: recipient %d has no resolvable rate-limit key", ErrPrecondition, i)
		}
		if b.OperationKind == OperationTransfer && r.Amount == "" {
			return fmt.Errorf("%w: recipient %d is missing a transfer amount", ErrPrecondition, i)
		}
	}
	return nil
}

// ItemStatus is the per-recipient outcome within a batch.
type ItemStatus string

const (
	ItemSuccess     ItemStatus = "success"
	ItemFailed      ItemStatus = "failed"
	ItemRateLimited ItemStatus = "rate_limited"
)

// ItemResult records the outcome for a single recipient. Detail holds
// the transaction reference on success and the error text on failure.
type ItemResult struct {
	Recipient RecipientTarget `json:"recipient"`
	Status    ItemStatus      `json:"status"`
	Detail    string          `json:"detail,omitempty"`
}

// OverallStatus is the derived status of a completed batch.
type OverallStatus string

const (
	BatchSuccess        OverallStatus = "success"
	BatchPartialFailure OverallStatus = "partial_failure"
	BatchFatalError     OverallStatus = "fatal_error"
)

// BatchResult is the consolidated report of one batch. Items appear in
// the same order recipients were supplied.
type BatchResult struct {
	BatchID    string        `json:"batch_id"`
	Name       string        `json:"name"`
	Items      []ItemResult  `json:"items"`
	Overall    OverallStatus `json:"overall_status"`
	FatalError string        `json:"fatal_error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// DeriveOverall computes the overall status from the item outcomes.
// A fatal abort is recorded by the engine directly and is never
// derived here.
func (r *BatchResult) DeriveOverall() {
	failed := 0
	for _, it := range r.Items {
		if it.Status != ItemSuccess {
			failed++
		}
	}
	switch failed {
	case 0:
		r.Overall = BatchSuccess
	default:
		r.Overall = BatchPartialFailure
	}
}
