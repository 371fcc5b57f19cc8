package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"

	"github.com/zecanovaes/pizzaria-sapore-bot/internal/domain"
)

// Catalog records are owned by the admin surface; the engine only reads them.

// ListMenuItems returns menu items ordered by identifier.
func (c *Client) ListMenuItems(ctx context.Context, activeOnly bool) ([]domain.MenuItem, error) {
	items, err := c.queryAll(ctx, pkMenu, skItemPrefix)
	if err != nil {
		return nil, fmt.Errorf("repository: ListMenuItems query: %w", err)
	}
	var all []domain.MenuItem
	if err := attributevalue.UnmarshalListOfMaps(items, &all); err != nil {
		return nil, fmt.Errorf("repository: ListMenuItems unmarshal: %w", err)
	}
	out := all[:0]
	for _, it := range all {
		if it.Identifier == "" {
			it.Identifier = domain.MenuIdentifier(it.Category, it.Name)
		}
		if activeOnly && !it.Available {
			continue
		}
		out = append(out, it)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out, nil
}

func (c *Client) ListPaymentMethods(ctx context.Context, activeOnly bool) ([]domain.PaymentMethod, error) {
	items, err := c.queryAll(ctx, pkPayment, skMethodPrefix)
	if err != nil {
		return nil, fmt.Errorf("repository: ListPaymentMethods query: %w", err)
	}
	var all []domain.PaymentMethod
	if err := attributevalue.UnmarshalListOfMaps(items, &all); err != nil {
		return nil, fmt.Errorf("repository: ListPaymentMethods unmarshal: %w", err)
	}
	out := all[:0]
	for _, m := range all {
		if activeOnly && !m.Active {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// GetBotConfiguration returns the persona and template. A missing record is
// domain.ErrNotFound.
func (c *Client) GetBotConfiguration(ctx context.Context) (domain.BotConfiguration, error) {
	var cfg domain.BotConfiguration
	if err := c.getItem(ctx, pkConfig, skBot, &cfg); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.BotConfiguration{}, err
		}
		return domain.BotConfiguration{}, fmt.Errorf("repository: GetBotConfiguration: %w", err)
	}
	return cfg, nil
}
