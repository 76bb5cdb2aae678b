package queue

import (
	"testing"

	"batch-disburser/internal/domain"
)

func TestToDomainBindsKeySelector(t *testing.T) {
	msg := BatchMessage{
		BatchID:       "b-1",
		Name:          "payroll",
		OperationKind: "transfer",
		KeyBy:         "address",
		Recipients:    []domain.RecipientTarget{{Address: "0xabc", Amount: "1"}},
	}

	req := msg.ToDomain()
	if req.RateLimitKey == nil {
		t.Fatal("ToDomain must bind a rate-limit key selector")
	}
	if got := req.RateLimitKey(req.Recipients[0]); got != "0xabc" {
		t.Errorf("key = %q, want the recipient address", got)
	}
	if err := req.Validate(); err != nil {
		t.Errorf("reconstructed request is invalid: %v", err)
	}
}
