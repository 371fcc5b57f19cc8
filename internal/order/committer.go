package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zecanovaes/pizzaria-sapore-bot/internal/dialogue"
	"github.com/zecanovaes/pizzaria-sapore-bot/internal/domain"
	"github.com/zecanovaes/pizzaria-sapore-bot/internal/textutil"
)

// Store persists committed orders. CommitOrder must write the order and the
// conversation atomically and return domain.ErrAlreadyCommitted when the
// stored conversation already has a committed order.
type Store interface {
	CommitOrder(ctx context.Context, o domain.Order, conv *domain.Conversation) error
	GetConversation(ctx context.Context, identity, conversationID string) (*domain.Conversation, error)
	SaveConversation(ctx context.Context, conv *domain.Conversation) error
}

// Confirmation is what the customer receives once the order is committed.
type Confirmation struct {
	Text     string
	AssetRef string
}

type CommitResult struct {
	OrderRef   string
	Text       string
	AssetRef   string
	TotalValue float64
}

type Committer struct {
	store  Store
	area   *StagingArea
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

type CommitterOption func(*Committer)

func WithClock(now func() time.Time) CommitterOption {
	return func(c *Committer) { c.now = now }
}

func WithIDGenerator(f func() string) CommitterOption {
	return func(c *Committer) { c.newID = f }
}

func WithLogger(l *slog.Logger) CommitterOption {
	return func(c *Committer) { c.logger = l }
}

func NewCommitter(store Store, area *StagingArea, opts ...CommitterOption) (*Committer, error) {
	if store == nil {
		return nil, errors.New("order: store must not be nil")
	}
	c := &Committer{
		store:  store,
		area:   area,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Commit persists the staged order of conv exactly once. A conversation that
// already carries a committed order gets its stored confirmation back and
// nothing is written. An address that still lacks a house number (and cannot
// be recovered from the customer's messages) sends the conversation back to
// the address step and returns ErrAddressMissingNumber.
func (c *Committer) Commit(ctx context.Context, conv *domain.Conversation, conf Confirmation) (CommitResult, error) {
	if conv.CommittedOrderRef != "" {
		c.logger.Info("order: commit replayed", "conversation_id", conv.ID, "order_id", conv.CommittedOrderRef)
		return replayResult(conv), nil
	}

	staged := conv.PendingOrder
	if staged == nil && c.area != nil {
		if o, ok := c.area.Get(conv.Identity); ok {
			staged = &o
		}
	}
	if staged == nil {
		return CommitResult{}, ErrNothingStaged
	}

	address := strings.TrimSpace(staged.Address)
	if !textutil.HasDigit(address) {
		number := RecoverNumber(conv)
		if number == "" || address == "" {
			conv.State = domain.StateAddress
			return CommitResult{}, ErrAddressMissingNumber
		}
		address = dialogue.SpliceNumber(address, number)
	}

	draft := Draft{Items: staged.Items, Address: address, PaymentMethod: staged.PaymentMethod}
	if err := Validate(draft); err != nil {
		if errors.Is(err, ErrAddressMissingNumber) {
			conv.State = domain.StateAddress
		}
		return CommitResult{}, err
	}

	now := c.now().UTC()
	items := make([]domain.OrderItem, len(staged.Items))
	copy(items, staged.Items)
	o := domain.Order{
		ID:             c.newID(),
		Identity:       conv.Identity,
		ConversationID: conv.ID,
		Items:          items,
		TotalValue:     domain.ComputeTotal(items),
		Address:        address,
		PaymentMethod:  staged.PaymentMethod,
		Status:         domain.OrderStatusConfirmed,
		CreatedAt:      now,
	}

	next := *conv
	next.PendingOrder = &domain.StagedOrder{
		Items:         items,
		Address:       address,
		PaymentMethod: staged.PaymentMethod,
		TotalValue:    o.TotalValue,
		StagedAt:      staged.StagedAt,
	}
	next.CommittedOrderRef = o.ID
	next.ConfirmationText = strings.TrimSpace(conf.Text)
	next.ConfirmationAsset = conf.AssetRef
	next.State = domain.StateCommitted
	next.Touch(now)

	if err := c.store.CommitOrder(ctx, o, &next); err != nil {
		if errors.Is(err, domain.ErrAlreadyCommitted) {
			return c.replayStored(ctx, conv)
		}
		return CommitResult{}, fmt.Errorf("order: commit: %w", err)
	}
	*conv = next

	if c.area != nil {
		c.area.Delete(conv.Identity)
	}
	c.logger.Info("order: committed", "conversation_id", conv.ID, "order_id", o.ID, "total", o.TotalValue)

	fresh := domain.NewConversation(c.newID(), conv.Identity, now)
	if err := c.store.SaveConversation(ctx, fresh); err != nil {
		// The committed row is terminal, so the next inbound message opens a
		// conversation anyway.
		c.logger.Error("order: start fresh conversation", "identity", conv.Identity, "err", err)
	}

	return CommitResult{
		OrderRef:   o.ID,
		Text:       next.ConfirmationText,
		AssetRef:   next.ConfirmationAsset,
		TotalValue: o.TotalValue,
	}, nil
}

func (c *Committer) replayStored(ctx context.Context, conv *domain.Conversation) (CommitResult, error) {
	stored, err := c.store.GetConversation(ctx, conv.Identity, conv.ID)
	if err != nil {
		return CommitResult{}, fmt.Errorf("order: reload committed conversation: %w", err)
	}
	if stored.CommittedOrderRef == "" {
		return CommitResult{}, fmt.Errorf("order: commit: %w", domain.ErrConflict)
	}
	*conv = *stored
	c.logger.Info("order: commit raced, replaying stored result", "conversation_id", conv.ID, "order_id", conv.CommittedOrderRef)
	return replayResult(conv), nil
}

func replayResult(conv *domain.Conversation) CommitResult {
	r := CommitResult{
		OrderRef: conv.CommittedOrderRef,
		Text:     conv.ConfirmationText,
		AssetRef: conv.ConfirmationAsset,
	}
	if conv.PendingOrder != nil {
		r.TotalValue = conv.PendingOrder.TotalValue
	}
	return r
}

// RecoverNumber looks for a house number the customer already gave: the
// resolved address first, then the newest digits-only message.
func RecoverNumber(conv *domain.Conversation) string {
	if n := strings.TrimSpace(conv.AddressData.Component(domain.ComponentNumber)); n != "" {
		return n
	}
	msgs := conv.UserMessages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if textutil.IsDigitsOnly(msgs[i].Content) {
			return strings.TrimSpace(msgs[i].Content)
		}
	}
	return ""
}
