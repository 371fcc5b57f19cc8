package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/zecanovaes/pizzaria-sapore-bot/internal/domain"
)

type orderRecord struct {
	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`
	domain.Order
}

// CommitOrder writes the order and the committed conversation in one
// transaction. The conversation write only succeeds if the stored row has no
// committed order yet and its version matches; otherwise nothing is written
// and domain.ErrAlreadyCommitted is returned.
func (c *Client) CommitOrder(ctx context.Context, o domain.Order, conv *domain.Conversation) error {
	if o.ID == "" {
		return errors.New("repository: CommitOrder: order id is required")
	}
	if conv == nil || conv.ID == "" {
		return errors.New("repository: CommitOrder: conversation is required")
	}

	orderItem, err := attributevalue.MarshalMap(orderRecord{PK: orderPK(o.ID), SK: skOrder, Order: o})
	if err != nil {
		return fmt.Errorf("repository: CommitOrder marshal order: %w", err)
	}
	convPut, err := c.conversationPut(conv)
	if err != nil {
		return fmt.Errorf("repository: CommitOrder marshal conversation: %w", err)
	}
	if conv.Version == 0 {
		convPut.ConditionExpression = aws.String("attribute_not_exists(PK)")
	} else {
		convPut.ConditionExpression = aws.String("attribute_not_exists(committedOrderRef) AND version = :expected")
	}

	_, err = c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                orderItem,
					ConditionExpression: aws.String("attribute_not_exists(PK)"),
				},
			},
			{Put: convPut},
		},
	})
	if err != nil {
		if isConditionFailure(err) {
			return fmt.Errorf("repository: CommitOrder %s: %w", conv.ID, domain.ErrAlreadyCommitted)
		}
		return fmt.Errorf("repository: CommitOrder: %w", err)
	}
	conv.Version++
	return nil
}

func (c *Client) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	var rec orderRecord
	if err := c.getItem(ctx, orderPK(id), skOrder, &rec); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Order{}, err
		}
		return domain.Order{}, fmt.Errorf("repository: GetOrder: %w", err)
	}
	return rec.Order, nil
}
