package order

import (
	"github.com/zecanovaes/pizzaria-sapore-bot/internal/dialogue"
	"github.com/zecanovaes/pizzaria-sapore-bot/internal/domain"
)

// LooksLikeCompleteOrder reports whether a single message carries a flavor,
// a payment method and a postal code.
func LooksLikeCompleteOrder(text string, menu []domain.MenuItem) bool {
	return dialogue.MentionsFlavor(text, menu) &&
		dialogue.MentionsPayment(text) &&
		dialogue.HasPostalCode(text)
}
