package http

import (
	"batch-disburser/internal/domain"
)

// AskRequest is the DTO for dispatching a question job.
type AskRequest struct {
	Question string   `json:"question" validate:"required,min=1,max=4096"`
	Emails   []string `json:"emails" validate:"required,min=1,dive,email"`
}

// RecipientRequest is the DTO for one disbursement target.
type RecipientRequest struct {
	Address string `json:"address" validate:"required"`
	Amount  string `json:"amount" validate:"omitempty,decimal"`
}

// SubmitBatchRequest is the Data Transfer Object for enqueueing a batch.
type SubmitBatchRequest struct {
	Name          string             `json:"name" validate:"required,min=1,max=128"`
	OperationKind string             `json:"operation_kind" validate:"required,oneof=transfer workflow"`
	Recipients    []RecipientRequest `json:"recipients" validate:"required,min=1,dive"`
}

// ToDomainRequest converts a SubmitBatchRequest DTO to a domain.BatchRequest.
func (r *SubmitBatchRequest) ToDomainRequest() *domain.BatchRequest {
	recipients := make([]domain.RecipientTarget, 0, len(r.Recipients))
	for _, rec := range r.Recipients {
		recipients = append(recipients, domain.RecipientTarget{
			Address: rec.Address,
			Amount:  rec.Amount,
		})
	}

	return &domain.BatchRequest{
		Name:          r.Name,
		OperationKind: domain.OperationKind(r.OperationKind),
		Recipients:    recipients,
	}
}
