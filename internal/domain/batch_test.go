package domain

import (
	"errors"
	"testing"
)

func TestBatchRequestValidate(t *testing.T) {
	valid := func() *BatchRequest {
		return &BatchRequest{
			Name:          "payroll",
			OperationKind: OperationTransfer,
			Recipients:    []RecipientTarget{{Address: "0xabc", Amount: "1.5"}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*BatchRequest)
		wantErr bool
	}{
		{"valid transfer", func(b *BatchRequest) {}, false},
		{"valid workflow without amount", func(b *BatchRequest) {
			b.OperationKind = OperationWorkflow
			b.Recipients[0].Amount = ""
		}, false},
		{"empty name", func(b *BatchRequest) { b.Name = "" }, true},
		{"no recipients", func(b *BatchRequest) { b.Recipients = nil }, true},
		{"unknown kind", func(b *BatchRequest) { b.OperationKind = "mint" }, true},
		{"transfer without amount", func(b *BatchRequest) { b.Recipients[0].Amount = "" }, true},
		{"empty rate-limit key", func(b *BatchRequest) { b.Recipients[0].Address = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(req)
			err := req.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrPrecondition) {
					t.Errorf("error = %v, want ErrPrecondition", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateBindsDefaultKey(t *testing.T) {
	req := &BatchRequest{
		Name:          "payroll",
		OperationKind: OperationTransfer,
		Recipients:    []RecipientTarget{{Address: "0xabc", Amount: "1"}},
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if req.RateLimitKey == nil {
		t.Fatal("Validate must bind the default key selector")
	}
	if got := req.RateLimitKey(req.Recipients[0]); got != "0xabc" {
		t.Errorf("default key = %q, want the recipient address", got)
	}
}

func TestDeriveOverall(t *testing.T) {
	tests := []struct {
		name     string
		statuses []ItemStatus
		want     OverallStatus
	}{
		{"all success", []ItemStatus{ItemSuccess, ItemSuccess}, BatchSuccess},
		{"one failed", []ItemStatus{ItemSuccess, ItemFailed}, BatchPartialFailure},
		{"one rate limited", []ItemStatus{ItemRateLimited, ItemSuccess}, BatchPartialFailure},
		{"empty", nil, BatchSuccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &BatchResult{}
			for _, s := range tt.statuses {
				r.Items = append(r.Items, ItemResult{Status: s})
			}
			r.DeriveOverall()
			if r.Overall != tt.want {
				t.Errorf("overall = %q, want %q", r.Overall, tt.want)
			}
		})
	}
}

func TestJobStateTerminal(t *testing.T) {
	terminal := map[JobState]bool{
		JobStateDispatched: false,
		JobStatePolling:    false,
		JobStateSucceeded:  true,
		JobStateFailed:     true,
		JobStateTimedOut:   true,
	}
	for state, want := range terminal {
		if got := state.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", state, got, want)
		}
	}
}
