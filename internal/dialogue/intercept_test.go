package dialogue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zecanovaes/pizzaria-sapore-bot/internal/domain"
)

func TestIntercept_HouseNumberSplice(t *testing.T) {
	conv := domain.NewConversation("c1", "5511", time.Now())
	conv.State = domain.StateAddress
	conv.AddressData = &domain.AddressData{
		FormattedAddress: "Rua Augusta, Consolação, São Paulo - SP",
		Components:       map[string]string{domain.ComponentStreet: "Rua Augusta"},
	}

	got, ok := NewMachine().Intercept(conv, " 1234 ")
	require.True(t, ok)
	require.Equal(t, InterceptHouseNumber, got.Kind)
	require.Equal(t, "Rua Augusta, 1234", got.Address)
	require.Equal(t, domain.StatePayment, conv.State)
	require.True(t, conv.PaymentPrompted)
	require.Equal(t, "Rua Augusta, 1234, Consolação, São Paulo - SP", conv.AddressData.FormattedAddress)
	require.Equal(t, "1234", conv.AddressData.Components[domain.ComponentNumber])
}

func TestSpliceFormatted(t *testing.T) {
	cases := []struct {
		formatted string
		want      string
	}{
		{"Rua Augusta - Consolação, São Paulo - SP", "Rua Augusta, 1234 - Consolação, São Paulo - SP"},
		{"Rua Augusta, Consolação, São Paulo - SP", "Rua Augusta, 1234, Consolação, São Paulo - SP"},
		{"Rua Augusta - Consolação", "Rua Augusta, 1234 - Consolação"},
		{"Rua Augusta", "Rua Augusta, 1234"},
		{"", "Rua Augusta, 1234"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, spliceFormatted(tc.formatted, "Rua Augusta, 1234"), tc.formatted)
	}
}

func TestIntercept_HouseNumberNeedsStreet(t *testing.T) {
	conv := domain.NewConversation("c1", "5511", time.Now())
	conv.State = domain.StateAddress

	_, ok := NewMachine().Intercept(conv, "1234")
	require.False(t, ok)
	require.Equal(t, domain.StateAddress, conv.State)
}

func TestIntercept_HouseNumberKeepsDistrictWithoutComponents(t *testing.T) {
	conv := domain.NewConversation("c1", "5511", time.Now())
	conv.State = domain.StateAddress
	conv.AddressData = &domain.AddressData{FormattedAddress: "Rua Augusta - Consolação, São Paulo - SP"}

	got, ok := NewMachine().Intercept(conv, "1234")
	require.True(t, ok)
	require.Equal(t, "Rua Augusta, 1234", got.Address)
	require.Equal(t, "Rua Augusta, 1234 - Consolação, São Paulo - SP", conv.AddressData.FormattedAddress)
}

func TestIntercept_HouseNumberPatchesStagedOrder(t *testing.T) {
	conv := domain.NewConversation("c1", "5511", time.Now())
	conv.State = domain.StateAddress
	conv.AddressData = &domain.AddressData{FormattedAddress: "Rua Augusta"}
	conv.PendingOrder = &domain.StagedOrder{Address: "Rua Augusta"}

	_, ok := NewMachine().Intercept(conv, "77")
	require.True(t, ok)
	require.Equal(t, "Rua Augusta, 77", conv.PendingOrder.Address)
}

func TestIntercept_PaymentFirstMessage(t *testing.T) {
	m := NewMachine()
	conv := domain.NewConversation("c1", "5511", time.Now())
	conv.State = domain.StatePayment

	got, ok := m.Intercept(conv, "e agora?")
	require.True(t, ok)
	require.Equal(t, InterceptPaymentOptions, got.Kind)
	require.True(t, conv.PaymentPrompted)

	_, ok = m.Intercept(conv, "pix")
	require.False(t, ok)
}

func TestIntercept_PaymentFirstMessageNamingMethodPassesThrough(t *testing.T) {
	conv := domain.NewConversation("c1", "5511", time.Now())
	conv.State = domain.StatePayment

	_, ok := NewMachine().Intercept(conv, "vai ser no pix")
	require.False(t, ok)
	require.True(t, conv.PaymentPrompted)
}

func TestIntercept_AmbiguousCard(t *testing.T) {
	m := NewMachine()
	conv := domain.NewConversation("c1", "5511", time.Now())
	conv.State = domain.StatePayment
	conv.PaymentPrompted = true

	got, ok := m.Intercept(conv, "pode ser no cartão")
	require.True(t, ok)
	require.Equal(t, InterceptCardClarification, got.Kind)

	_, ok = m.Intercept(conv, "cartão de débito")
	require.False(t, ok)
}

func TestIntercept_OtherStatesPassThrough(t *testing.T) {
	conv := domain.NewConversation("c1", "5511", time.Now())
	_, ok := NewMachine().Intercept(conv, "1234")
	require.False(t, ok)
}
