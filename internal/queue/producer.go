// Package queue carries accepted batch requests from the API node to
// the workers over Kafka.
package queue

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"batch-disburser/internal/domain"

	kgo "github.com/segmentio/kafka-go"
)

type Producer struct {
	writer  *kgo.Writer
	timeout time.Duration
}

// NewProducer creates the intake topic producer.
func NewProducer(brokersCSV, topic string) *Producer {
	brokers := splitCSV(brokersCSV)

	w := &kgo.Writer{
		Addr:         kgo.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kgo.LeastBytes{},
		RequiredAcks: kgo.RequireOne,
	}

	return &Producer{
		writer:  w,
		timeout: 3 * time.Second,
	}
}

func (p *Producer) Close() error { return p.writer.Close() }

var _ domain.BatchDispatcher = (*Producer)(nil)

// DispatchBatch publishes the batch request to the intake topic,
// keyed by batch id.
func (p *Producer) DispatchBatch(ctx context.Context, req *domain.BatchRequest) error {
	b, err := json.Marshal(FromDomain(req))
	if err != nil {
		return err
	}

	// Small timeout so the API does not hang if Kafka is down.
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	return p.writer.WriteMessages(cctx, kgo.Message{
		Key:   []byte(req.ID),
		Value: b,
		Time:  time.Now(),
	})
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
