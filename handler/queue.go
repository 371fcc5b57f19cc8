package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/zecanovaes/pizzaria-sapore-bot/internal/usecase"
)

const correlationAttribute = "correlationId"

var errGroupBlocked = errors.New("handler: earlier message of the group failed")

// Publisher delivers an outbound reply to the chat transport.
type Publisher interface {
	Publish(ctx context.Context, identity, correlationID string, payload any) error
}

type QueueHandler struct {
	turns     TurnHandler
	publisher Publisher
	logger    *slog.Logger
}

func NewQueueHandler(turns TurnHandler, publisher Publisher, logger *slog.Logger) (*QueueHandler, error) {
	if turns == nil {
		return nil, errors.New("handler: turn handler must not be nil")
	}
	if publisher == nil {
		return nil, errors.New("handler: publisher must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueHandler{turns: turns, publisher: publisher, logger: logger}, nil
}

// Handle runs one turn per record, in delivery order. Records that fail are
// reported back so only they are redelivered. On a FIFO queue the records
// that follow a failure in the same message group are reported too, so a
// customer's messages are never answered out of order.
func (q *QueueHandler) Handle(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	failedGroups := map[string]bool{}
	for _, record := range event.Records {
		group := record.Attributes["MessageGroupId"]
		err := errGroupBlocked
		if group == "" || !failedGroups[group] {
			err = q.handleRecord(ctx, record)
		}
		if err == nil {
			continue
		}
		q.logger.Error("handler: record failed", "message_id", record.MessageId, "err", err)
		if group != "" {
			failedGroups[group] = true
		}
		resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
			ItemIdentifier: record.MessageId,
		})
	}
	return resp, nil
}

func (q *QueueHandler) handleRecord(ctx context.Context, record events.SQSMessage) error {
	correlationID := record.MessageId
	if attr, ok := record.MessageAttributes[correlationAttribute]; ok && attr.StringValue != nil && *attr.StringValue != "" {
		correlationID = *attr.StringValue
	}

	var in usecase.Inbound
	if err := json.Unmarshal([]byte(record.Body), &in); err != nil {
		return err
	}
	out, err := q.turns.Handle(ctx, in)
	if err != nil {
		return err
	}
	return q.publisher.Publish(ctx, in.Identity, correlationID, out)
}
