package order

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zecanovaes/pizzaria-sapore-bot/internal/domain"
)

type fakeStore struct {
	orders        []domain.Order
	conversations map[string]*domain.Conversation
	saved         []*domain.Conversation
	commitErr     error
	saveErr       error
}

func newFakeStore() *fakeStore {
	return &fakeStore{conversations: map[string]*domain.Conversation{}}
}

func (f *fakeStore) CommitOrder(_ context.Context, o domain.Order, conv *domain.Conversation) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	if stored, ok := f.conversations[conv.ID]; ok && stored.CommittedOrderRef != "" {
		return domain.ErrAlreadyCommitted
	}
	f.orders = append(f.orders, o)
	cp := *conv
	f.conversations[conv.ID] = &cp
	return nil
}

func (f *fakeStore) GetConversation(_ context.Context, _, id string) (*domain.Conversation, error) {
	c, ok := f.conversations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) SaveConversation(_ context.Context, conv *domain.Conversation) error {
	f.saved = append(f.saved, conv)
	return f.saveErr
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func confirmableConversation(address string) *domain.Conversation {
	conv := domain.NewConversation("conv-1", "5511", time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC))
	conv.State = domain.StateConfirmation
	conv.PendingOrder = &domain.StagedOrder{
		Items:         []domain.OrderItem{{Name: "Calabresa", Quantity: 2, Price: 45}, {Name: "Coca", Quantity: 1, Price: 10}},
		Address:       address,
		PaymentMethod: "pix",
		TotalValue:    1, // never trusted
	}
	return conv
}

func newTestCommitter(t *testing.T, store Store, area *StagingArea) *Committer {
	t.Helper()
	c, err := NewCommitter(store, area,
		WithIDGenerator(sequentialIDs()),
		WithClock(func() time.Time { return time.Date(2026, 3, 1, 19, 30, 0, 0, time.UTC) }),
	)
	require.NoError(t, err)
	return c
}

func TestNewCommitter_ValidatesStore(t *testing.T) {
	_, err := NewCommitter(nil, nil)
	require.Error(t, err)
}

func TestCommit_PersistsOnceAndStartsFreshConversation(t *testing.T) {
	store := newFakeStore()
	area := NewStagingArea(0, nil)
	area.Put("5511", domain.StagedOrder{})
	c := newTestCommitter(t, store, area)
	conv := confirmableConversation("Rua Augusta, 1234")

	res, err := c.Commit(context.Background(), conv, Confirmation{Text: " Pedido confirmado! ", AssetRef: "https://cdn/confirm.png"})
	require.NoError(t, err)
	require.Equal(t, CommitResult{OrderRef: "id-1", Text: "Pedido confirmado!", AssetRef: "https://cdn/confirm.png", TotalValue: 100}, res)

	require.Len(t, store.orders, 1)
	o := store.orders[0]
	require.Equal(t, 100.0, o.TotalValue)
	require.Equal(t, "Rua Augusta, 1234", o.Address)
	require.Equal(t, domain.OrderStatusConfirmed, o.Status)
	require.Equal(t, "conv-1", o.ConversationID)

	require.Equal(t, domain.StateCommitted, conv.State)
	require.Equal(t, "id-1", conv.CommittedOrderRef)
	require.Equal(t, 30, conv.DurationMinutes)

	require.Len(t, store.saved, 1)
	require.Equal(t, domain.StateFlavor, store.saved[0].State)
	require.Equal(t, "id-2", store.saved[0].ID)
	require.Equal(t, "5511", store.saved[0].Identity)

	_, ok := area.Get("5511")
	require.False(t, ok)
}

func TestCommit_TwiceIsIdempotent(t *testing.T) {
	store := newFakeStore()
	c := newTestCommitter(t, store, nil)
	conv := confirmableConversation("Rua Augusta, 1234")
	conf := Confirmation{Text: "Pedido confirmado!", AssetRef: "asset"}

	first, err := c.Commit(context.Background(), conv, conf)
	require.NoError(t, err)
	second, err := c.Commit(context.Background(), conv, conf)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Len(t, store.orders, 1)
	require.Len(t, store.saved, 1)
}

func TestCommit_StaleCopyReplaysStoredResult(t *testing.T) {
	store := newFakeStore()
	c := newTestCommitter(t, store, nil)
	conf := Confirmation{Text: "ok"}

	first, err := c.Commit(context.Background(), confirmableConversation("Rua A, 1"), conf)
	require.NoError(t, err)

	stale := confirmableConversation("Rua A, 1")
	second, err := c.Commit(context.Background(), stale, conf)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, store.orders, 1)
	require.Equal(t, first.OrderRef, stale.CommittedOrderRef)
}

func TestCommit_AddressWithoutNumberRevertsToAddressStep(t *testing.T) {
	store := newFakeStore()
	c := newTestCommitter(t, store, nil)
	conv := confirmableConversation("Rua Augusta")

	_, err := c.Commit(context.Background(), conv, Confirmation{Text: "ok"})
	require.ErrorIs(t, err, ErrAddressMissingNumber)
	require.Equal(t, domain.StateAddress, conv.State)
	require.Empty(t, conv.CommittedOrderRef)
	require.Empty(t, store.orders)
}

func TestCommit_RecoversNumberFromHistory(t *testing.T) {
	store := newFakeStore()
	c := newTestCommitter(t, store, nil)
	conv := confirmableConversation("Rua Augusta")
	conv.AppendMessage(domain.RoleUser, "Rua Augusta", time.Now())
	conv.AppendMessage(domain.RoleUser, "1234", time.Now())
	conv.AppendMessage(domain.RoleUser, "sim", time.Now())

	_, err := c.Commit(context.Background(), conv, Confirmation{Text: "ok"})
	require.NoError(t, err)
	require.Equal(t, "Rua Augusta, 1234", store.orders[0].Address)
}

func TestCommit_FallsBackToStagingArea(t *testing.T) {
	store := newFakeStore()
	area := NewStagingArea(0, nil)
	conv := confirmableConversation("Rua A, 1")
	area.Put(conv.Identity, *conv.PendingOrder)
	conv.PendingOrder = nil

	_, err := newTestCommitter(t, store, area).Commit(context.Background(), conv, Confirmation{})
	require.NoError(t, err)
	require.Len(t, store.orders, 1)
}

func TestCommit_NothingStaged(t *testing.T) {
	conv := confirmableConversation("Rua A, 1")
	conv.PendingOrder = nil
	_, err := newTestCommitter(t, newFakeStore(), nil).Commit(context.Background(), conv, Confirmation{})
	require.ErrorIs(t, err, ErrNothingStaged)
	require.Equal(t, domain.StateConfirmation, conv.State)
}

func TestCommit_StoreErrorLeavesConversationUntouched(t *testing.T) {
	store := newFakeStore()
	store.commitErr = errors.New("dynamodb down")
	conv := confirmableConversation("Rua A, 1")

	_, err := newTestCommitter(t, store, nil).Commit(context.Background(), conv, Confirmation{})
	require.Error(t, err)
	require.Equal(t, domain.StateConfirmation, conv.State)
	require.Empty(t, conv.CommittedOrderRef)
}

func TestCommit_FreshConversationFailureIsNotFatal(t *testing.T) {
	store := newFakeStore()
	store.saveErr = errors.New("throttled")
	res, err := newTestCommitter(t, store, nil).Commit(context.Background(), confirmableConversation("Rua A, 1"), Confirmation{})
	require.NoError(t, err)
	require.NotEmpty(t, res.OrderRef)
}
