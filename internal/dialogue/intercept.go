package dialogue

import (
	"strings"

	"github.com/zecanovaes/pizzaria-sapore-bot/internal/domain"
	"github.com/zecanovaes/pizzaria-sapore-bot/internal/textutil"
)

type InterceptKind string

const (
	InterceptHouseNumber       InterceptKind = "house_number"
	InterceptPaymentOptions    InterceptKind = "payment_options"
	InterceptCardClarification InterceptKind = "card_clarification"
)

// Intercept is a turn answered without the language model. The caller renders
// the reply from Kind and applies the mutations already made on the
// conversation.
type Intercept struct {
	Kind    InterceptKind
	Address string
}

// Intercept applies the pre-model overrides for states 4 and 5. When ok is
// true the conversation has been updated and the model must not be called.
func (m *Machine) Intercept(conv *domain.Conversation, userText string) (Intercept, bool) {
	text := strings.TrimSpace(userText)
	switch conv.State {
	case domain.StateAddress:
		if !textutil.IsDigitsOnly(text) {
			return Intercept{}, false
		}
		street := conv.AddressData.Street()
		if street == "" || textutil.HasDigit(street) {
			return Intercept{}, false
		}
		full := SpliceNumber(street, text)
		spliceAddress(conv, full, text)
		conv.Advance(domain.StatePayment)
		conv.PaymentPrompted = true
		return Intercept{Kind: InterceptHouseNumber, Address: full}, true

	case domain.StatePayment:
		if !conv.PaymentPrompted {
			conv.PaymentPrompted = true
			if !MentionsPayment(text) {
				return Intercept{Kind: InterceptPaymentOptions}, true
			}
			return Intercept{}, false
		}
		if MentionsAmbiguousCard(text) {
			return Intercept{Kind: InterceptCardClarification}, true
		}
	}
	return Intercept{}, false
}

// SpliceNumber joins a street name and a house number.
func SpliceNumber(street, number string) string {
	return strings.TrimRight(strings.TrimSpace(street), ",") + ", " + strings.TrimSpace(number)
}

// spliceFormatted replaces the route of a formatted address with full, the
// street plus number. A district hung off the route with " - " and everything
// after the first comma are kept.
func spliceFormatted(formatted, full string) string {
	route, rest, _ := strings.Cut(formatted, ",")
	out := full
	if _, district, found := strings.Cut(route, " - "); found && strings.TrimSpace(district) != "" {
		out += " - " + strings.TrimSpace(district)
	}
	if rest = strings.TrimSpace(rest); rest != "" {
		out += ", " + rest
	}
	return out
}

func spliceAddress(conv *domain.Conversation, full, number string) {
	if conv.AddressData == nil {
		conv.AddressData = &domain.AddressData{}
	}
	if conv.AddressData.Components == nil {
		conv.AddressData.Components = map[string]string{}
	}
	conv.AddressData.Components[domain.ComponentNumber] = number
	conv.AddressData.FormattedAddress = spliceFormatted(conv.AddressData.FormattedAddress, full)
	if p := conv.PendingOrder; p != nil && !textutil.HasDigit(p.Address) {
		p.Address = conv.AddressData.FormattedAddress
	}
}
