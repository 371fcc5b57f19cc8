package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/zecanovaes/pizzaria-sapore-bot/internal/domain"
)

type conversationRecord struct {
	PK                string              `dynamodbav:"PK"`
	SK                string              `dynamodbav:"SK"`
	ID                string              `dynamodbav:"id"`
	Identity          string              `dynamodbav:"identity"`
	State             int                 `dynamodbav:"state"`
	Messages          []domain.Message    `dynamodbav:"messages"`
	AddressData       *domain.AddressData `dynamodbav:"addressData,omitempty"`
	PendingOrder      *domain.StagedOrder `dynamodbav:"pendingOrder,omitempty"`
	CommittedOrderRef string              `dynamodbav:"committedOrderRef,omitempty"`
	ConfirmationText  string              `dynamodbav:"confirmationText,omitempty"`
	ConfirmationAsset string              `dynamodbav:"confirmationAsset,omitempty"`
	PaymentPrompted   bool                `dynamodbav:"paymentPrompted"`
	StartedAt         time.Time           `dynamodbav:"startedAt"`
	UpdatedAt         time.Time           `dynamodbav:"updatedAt"`
	DurationMinutes   int                 `dynamodbav:"durationMinutes"`
	Version           int64               `dynamodbav:"version"`
}

func toRecord(conv *domain.Conversation, version int64) conversationRecord {
	return conversationRecord{
		PK:                phonePK(conv.Identity),
		SK:                convSK(conv.StartedAt, conv.ID),
		ID:                conv.ID,
		Identity:          conv.Identity,
		State:             int(conv.State),
		Messages:          conv.Messages,
		AddressData:       conv.AddressData,
		PendingOrder:      conv.PendingOrder,
		CommittedOrderRef: conv.CommittedOrderRef,
		ConfirmationText:  conv.ConfirmationText,
		ConfirmationAsset: conv.ConfirmationAsset,
		PaymentPrompted:   conv.PaymentPrompted,
		StartedAt:         conv.StartedAt.UTC(),
		UpdatedAt:         conv.UpdatedAt.UTC(),
		DurationMinutes:   conv.DurationMinutes,
		Version:           version,
	}
}

func (r conversationRecord) conversation() *domain.Conversation {
	return &domain.Conversation{
		ID:                r.ID,
		Identity:          r.Identity,
		State:             domain.State(r.State),
		Messages:          r.Messages,
		AddressData:       r.AddressData,
		PendingOrder:      r.PendingOrder,
		CommittedOrderRef: r.CommittedOrderRef,
		ConfirmationText:  r.ConfirmationText,
		ConfirmationAsset: r.ConfirmationAsset,
		PaymentPrompted:   r.PaymentPrompted,
		StartedAt:         r.StartedAt,
		UpdatedAt:         r.UpdatedAt,
		DurationMinutes:   r.DurationMinutes,
		Version:           r.Version,
	}
}

func decodeConversation(item map[string]types.AttributeValue) (*domain.Conversation, error) {
	var rec conversationRecord
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, err
	}
	return rec.conversation(), nil
}

// LatestConversation returns the most recently started conversation of
// identity, or domain.ErrNotFound.
func (c *Client) LatestConversation(ctx context.Context, identity string) (*domain.Conversation, error) {
	out, err := c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: phonePK(identity)},
			":prefix": &types.AttributeValueMemberS{Value: skConvPrefix},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
		ConsistentRead:   aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: LatestConversation query: %w", err)
	}
	if out == nil || len(out.Items) == 0 {
		return nil, domain.ErrNotFound
	}
	conv, err := decodeConversation(out.Items[0])
	if err != nil {
		return nil, fmt.Errorf("repository: LatestConversation unmarshal: %w", err)
	}
	return conv, nil
}

// GetConversation loads one conversation of identity by id.
func (c *Client) GetConversation(ctx context.Context, identity, conversationID string) (*domain.Conversation, error) {
	items, err := c.queryAll(ctx, phonePK(identity), skConvPrefix)
	if err != nil {
		return nil, fmt.Errorf("repository: GetConversation query: %w", err)
	}
	for _, item := range items {
		conv, err := decodeConversation(item)
		if err != nil {
			return nil, fmt.Errorf("repository: GetConversation unmarshal: %w", err)
		}
		if conv.ID == conversationID {
			return conv, nil
		}
	}
	return nil, domain.ErrNotFound
}

// SaveConversation writes conv if the stored version still matches
// conv.Version, then bumps conv.Version. A stale write returns
// domain.ErrConflict.
func (c *Client) SaveConversation(ctx context.Context, conv *domain.Conversation) error {
	if conv == nil || conv.ID == "" || conv.Identity == "" {
		return errors.New("repository: SaveConversation: id and identity are required")
	}
	put, err := c.conversationPut(conv)
	if err != nil {
		return fmt.Errorf("repository: SaveConversation marshal: %w", err)
	}
	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 put.TableName,
		Item:                      put.Item,
		ConditionExpression:       put.ConditionExpression,
		ExpressionAttributeValues: put.ExpressionAttributeValues,
	})
	if err != nil {
		if isConditionFailure(err) {
			return fmt.Errorf("repository: SaveConversation %s: %w", conv.ID, domain.ErrConflict)
		}
		return fmt.Errorf("repository: SaveConversation: %w", err)
	}
	conv.Version++
	return nil
}

// conversationPut builds a versioned put of conv. The first write requires
// the row to be absent.
func (c *Client) conversationPut(conv *domain.Conversation) (*types.Put, error) {
	item, err := attributevalue.MarshalMap(toRecord(conv, conv.Version+1))
	if err != nil {
		return nil, err
	}
	put := &types.Put{
		TableName: aws.String(c.tableName),
		Item:      item,
	}
	if conv.Version == 0 {
		put.ConditionExpression = aws.String("attribute_not_exists(PK)")
		return put, nil
	}
	put.ConditionExpression = aws.String("version = :expected")
	put.ExpressionAttributeValues = map[string]types.AttributeValue{
		":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(conv.Version, 10)},
	}
	return put, nil
}
