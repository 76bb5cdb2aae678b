// Package ses delivers batch reports as plain-text email via AWS SESv2.
package ses

import (
	"context"
	"fmt"

	"batch-disburser/internal/domain"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

type notifier struct {
	client *sesv2.Client
	from   string
	to     string
}

// NewNotifier creates an SES-backed report notifier sending from
// `from` to the operator address `to`.
func NewNotifier(ctx context.Context, from, to string) (domain.Notifier, error) {
	if from == "" || to == "" {
		return nil, fmt.Errorf("report sender and recipient addresses are required")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &notifier{
		client: sesv2.NewFromConfig(cfg),
		from:   from,
		to:     to,
	}, nil
}

func (n *notifier) Send(ctx context.Context, subject, body string) error {
	_, err := n.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.from),
		Destination: &types.Destination{
			ToAddresses: []string{n.to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body)},
				},
			},
		},
	})
	return err
}
