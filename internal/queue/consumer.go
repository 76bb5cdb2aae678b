package queue

import (
	"context"
	"encoding/json"
	"time"

	kgo "github.com/segmentio/kafka-go"
)

type Consumer struct {
	reader *kgo.Reader
}

// NewConsumer creates an intake topic consumer in the given group.
func NewConsumer(brokersCSV, topic, groupID string) *Consumer {
	r := kgo.NewReader(kgo.ReaderConfig{
		Brokers:        splitCSV(brokersCSV),
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commits
	})

	return &Consumer{reader: r}
}

func (c *Consumer) Close() error { return c.reader.Close() }

// ReadBatch blocks until a batch message arrives. It returns the
// message and a commit function to call after the batch has been
// processed and its report sent.
func (c *Consumer) ReadBatch(ctx context.Context) (BatchMessage, func(context.Context) error, error) {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return BatchMessage{}, nil, err
	}

	var bm BatchMessage
	if err := json.Unmarshal(m.Value, &bm); err != nil {
		// Commit undecodable messages so the group does not get stuck
		// re-reading them forever.
		_ = c.reader.CommitMessages(ctx, m)
		return BatchMessage{}, nil, err
	}

	commit := func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		return c.reader.CommitMessages(cctx, m)
	}

	return bm, commit, nil
}
