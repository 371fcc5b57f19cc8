package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zecanovaes/pizzaria-sapore-bot/internal/domain"
)

// CatalogReader is the store surface the loader reads from.
type CatalogReader interface {
	GetBotConfiguration(ctx context.Context) (domain.BotConfiguration, error)
	ListMenuItems(ctx context.Context, activeOnly bool) ([]domain.MenuItem, error)
	ListPaymentMethods(ctx context.Context, activeOnly bool) ([]domain.PaymentMethod, error)
}

type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// StoreLoader reads the snapshot from the document store and the story text
// from the parameter store.
type StoreLoader struct {
	store       CatalogReader
	params      ParamGetter
	paramPrefix string
}

func NewStoreLoader(store CatalogReader, params ParamGetter, paramPrefix string) (*StoreLoader, error) {
	if store == nil {
		return nil, errors.New("prompt: catalog reader must not be nil")
	}
	if params == nil {
		return nil, errors.New("prompt: param getter must not be nil")
	}
	return &StoreLoader{store: store, params: params, paramPrefix: strings.TrimRight(strings.TrimSpace(paramPrefix), "/")}, nil
}

func (l *StoreLoader) Load(ctx context.Context) (Snapshot, error) {
	bot, err := l.store.GetBotConfiguration(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("prompt: load bot configuration: %w", err)
	}
	menu, err := l.store.ListMenuItems(ctx, true)
	if err != nil {
		return Snapshot{}, fmt.Errorf("prompt: load menu: %w", err)
	}
	payments, err := l.store.ListPaymentMethods(ctx, true)
	if err != nil {
		return Snapshot{}, fmt.Errorf("prompt: load payment methods: %w", err)
	}
	// The story is optional; a missing parameter renders as unknown.
	story, err := l.params.GetParameter(ctx, l.paramPrefix+"/story")
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return Snapshot{}, fmt.Errorf("prompt: load story: %w", err)
	}
	return Snapshot{Bot: bot, Menu: menu, Payments: payments, Story: story}, nil
}
