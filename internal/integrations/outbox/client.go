// Package outbox publishes outbound turn results to the channel gateway's
// FIFO queue.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type sqsAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Envelope is the published message body.
type Envelope struct {
	Identity      string `json:"identity"`
	CorrelationID string `json:"correlationId,omitempty"`
	Payload       any    `json:"payload"`
}

type Publisher struct {
	api      sqsAPI
	queueURL string
}

func New(api sqsAPI, queueURL string) (*Publisher, error) {
	if api == nil {
		return nil, errors.New("outbox: api must not be nil")
	}
	if strings.TrimSpace(queueURL) == "" {
		return nil, errors.New("outbox: queue url must not be empty")
	}
	return &Publisher{api: api, queueURL: queueURL}, nil
}

// Publish sends payload for identity. Messages of one identity share a
// group so the gateway delivers them in order.
func (p *Publisher) Publish(ctx context.Context, identity, correlationID string, payload any) error {
	if strings.TrimSpace(identity) == "" {
		return errors.New("outbox: identity is required")
	}
	body, err := json.Marshal(Envelope{Identity: identity, CorrelationID: correlationID, Payload: payload})
	if err != nil {
		return fmt.Errorf("outbox: marshal: %w", err)
	}
	in := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"identity": {DataType: aws.String("String"), StringValue: aws.String(identity)},
		},
	}
	if strings.HasSuffix(p.queueURL, ".fifo") {
		in.MessageGroupId = aws.String(identity)
		if correlationID != "" {
			in.MessageDeduplicationId = aws.String(correlationID)
		}
	}
	if _, err := p.api.SendMessage(ctx, in); err != nil {
		return fmt.Errorf("outbox: send: %w", err)
	}
	return nil
}
