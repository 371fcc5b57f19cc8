package dialogue

import (
	"regexp"
	"strings"

	"github.com/zecanovaes/pizzaria-sapore-bot/internal/domain"
	"github.com/zecanovaes/pizzaria-sapore-bot/internal/textutil"
)

var (
	postalCodePattern = regexp.MustCompile(`\b\d{5}-?\d{3}\b`)
	numberToken       = regexp.MustCompile(`\b\d{1,6}\b`)
)

var (
	resetWords        = []string{"reiniciar", "recomecar", "comecar de novo", "novo pedido"}
	wholeOrSplitWords = []string{"inteira", "inteiro", "meio a meio", "metade", "meia", "dois sabores"}
	finishWords       = []string{"finalizar", "fechar", "fechar pedido", "so isso", "e so", "pode fechar", "mais nada", "nada mais", "acabou"}
	moreWords         = []string{"mais uma", "mais um", "outra", "adicionar", "acrescentar"}
	beverageWords     = []string{"sim", "nao", "quero", "sem bebida", "bebida", "refrigerante", "refri", "coca", "guarana", "suco", "agua", "cerveja", "dispenso", "nenhuma"}
	paymentWords      = []string{"pix", "dinheiro", "especie", "credito", "debito", "vale refeicao", "vale alimentacao", "vale", "cartao de credito", "cartao de debito"}
	cardWords         = []string{"cartao", "cartoes", "maquininha"}
	cardKindWords     = []string{"credito", "debito"}
	affirmativeWords  = []string{"sim", "confirmo", "confirmado", "confirma", "pode", "pode sim", "isso", "ok", "okay", "correto", "certo", "fechado", "perfeito", "manda", "pode mandar", "ta certo", "esta certo", "beleza"}
	negativeWords     = []string{"nao", "errado", "errada", "mudar", "trocar", "cancelar", "cancela", "espera", "peraí", "pera", "corrigir"}
	flavorWords       = []string{"sabor", "sabores", "pizza de", "quero uma", "quero a", "vou querer", "pode ser"}
)

// IsReset reports whether the customer asked to start over.
func IsReset(text string) bool {
	return textutil.ContainsAny(text, resetWords...)
}

// IsAffirmative reports a confirmation. Any negation wins over the affirmative
// words, and a bare "s" only counts as the whole message.
func IsAffirmative(text string) bool {
	if textutil.ContainsAny(text, negativeWords...) {
		return false
	}
	return strings.TrimRight(textutil.Fold(text), ".!") == "s" || textutil.ContainsAny(text, affirmativeWords...)
}

func HasPostalCode(text string) bool {
	return postalCodePattern.MatchString(text)
}

// HasNumberToken reports a standalone number that is not part of a postal code.
func HasNumberToken(text string) bool {
	return numberToken.MatchString(postalCodePattern.ReplaceAllString(text, " "))
}

// LastNumberToken returns the last standalone number in text, ignoring postal codes.
func LastNumberToken(text string) string {
	all := numberToken.FindAllString(postalCodePattern.ReplaceAllString(text, " "), -1)
	if len(all) == 0 {
		return ""
	}
	return all[len(all)-1]
}

// MentionsPayment reports a concrete payment method. A bare "cartão" is not
// concrete.
func MentionsPayment(text string) bool {
	return textutil.ContainsAny(text, paymentWords...)
}

// MentionsAmbiguousCard reports "cartão" without crédito/débito.
func MentionsAmbiguousCard(text string) bool {
	return textutil.ContainsAny(text, cardWords...) && !textutil.ContainsAny(text, cardKindWords...)
}

// MentionsFlavor reports whether text names a menu item or uses flavor vocabulary.
func MentionsFlavor(text string, menu []domain.MenuItem) bool {
	if textutil.ContainsAny(text, flavorWords...) {
		return true
	}
	folded := textutil.Fold(text)
	for _, item := range menu {
		name := textutil.Fold(item.Name)
		short := strings.TrimSpace(strings.TrimPrefix(name, "pizza "))
		if short != "" && textutil.ContainsAny(folded, short) {
			return true
		}
	}
	return false
}
