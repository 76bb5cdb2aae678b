package queue

import "batch-disburser/internal/domain"

// BatchMessage is the wire form of a batch request on the intake
// topic. The rate-limit key function does not serialize, so KeyBy
// names the identity selector instead.
type BatchMessage struct {
	BatchID       string                   `json:"batch_id"`
	Name          string                   `json:"name"`
	OperationKind string                   `json:"operation_kind"`
	KeyBy         string                   `json:"key_by,omitempty"`
	Recipients    []domain.RecipientTarget `json:"recipients"`
}

// FromDomain converts a batch request into its wire form.
func FromDomain(req *domain.BatchRequest) BatchMessage {
	return BatchMessage{
		BatchID:       req.ID,
		Name:          req.Name,
		OperationKind: string(req.OperationKind),
		KeyBy:         "address",
		Recipients:    req.Recipients,
	}
}

// ToDomain reconstructs the batch request, binding the key selector.
func (m BatchMessage) ToDomain() *domain.BatchRequest {
	return &domain.BatchRequest{
		ID:            m.BatchID,
		Name:          m.Name,
		OperationKind: domain.OperationKind(m.OperationKind),
		Recipients:    m.Recipients,
		RateLimitKey:  domain.KeyByAddress,
	}
}
