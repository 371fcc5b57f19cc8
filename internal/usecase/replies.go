package usecase

import (
	"strings"

	"github.com/zecanovaes/pizzaria-sapore-bot/internal/domain"
)

const (
	replyApology          = "Desculpe, tive um probleminha para processar sua mensagem. Pode tentar de novo em instantes?"
	replyUnsupportedMedia = "Por enquanto só consigo entender mensagens de texto e áudio. Pode me escrever o que você gostaria?"
	replyCardClarify      = "Seria cartão de crédito ou de débito?"
)

func paymentOptionsReply(methods []domain.PaymentMethod) string {
	var names []string
	for _, m := range methods {
		if m.Active && strings.TrimSpace(m.Name) != "" {
			names = append(names, "- "+strings.TrimSpace(m.Name))
		}
	}
	if len(names) == 0 {
		return "Qual será a forma de pagamento?"
	}
	return "Qual será a forma de pagamento? Aceitamos:\n" + strings.Join(names, "\n")
}

func addressConfirmedReply(address string, methods []domain.PaymentMethod) string {
	return "Perfeito, anotei o endereço: " + address + ".\n\n" + paymentOptionsReply(methods)
}

func numberRequestReply(conv *domain.Conversation) string {
	if street := conv.AddressData.Street(); street != "" {
		return "Para finalizar, qual é o número do endereço na " + street + "?"
	}
	return "Para finalizar, qual é o número do endereço de entrega?"
}
