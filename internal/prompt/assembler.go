package prompt

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/zecanovaes/pizzaria-sapore-bot/internal/domain"
)

var placeholderPattern = regexp.MustCompile(`\{\{[A-Z_]+\}\}`)

// Assembler renders the configured prompt template for one conversation.
type Assembler struct {
	logger *slog.Logger
}

func NewAssembler(logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{logger: logger}
}

// Build substitutes the placeholders of the bot's template and appends the
// response protocol and the state-specific addenda.
func (a *Assembler) Build(snap Snapshot, conv *domain.Conversation) string {
	tmpl := strings.TrimSpace(snap.Bot.PromptTemplate)
	if tmpl == "" {
		tmpl = defaultTemplate()
	}

	out := strings.NewReplacer(replacements(snap, conv)...).Replace(tmpl)
	if left := placeholderPattern.FindAllString(out, -1); len(left) > 0 {
		a.logger.Warn("prompt: unresolved placeholders", "placeholders", left, "conversation_id", conv.ID)
	}

	parts := []string{out, "", protocolContract()}
	if addendum := stateAddendum(conv.State); addendum != "" {
		parts = append(parts, "", addendum)
	}
	return strings.Join(parts, "\n")
}

func replacements(snap Snapshot, conv *domain.Conversation) []string {
	addr := conv.AddressData
	formatted := ""
	if addr != nil {
		formatted = addr.FormattedAddress
	}
	return []string{
		"{{BOT_NAME}}", snap.Bot.Name,
		"{{PERSONALIDADE}}", snap.Bot.Personality,
		"{{TOM_DE_VOZ}}", snap.Bot.Tone,
		"{{SAUDACAO}}", snap.Bot.Greeting,
		"{{HISTORIA}}", strings.TrimSpace(snap.Story),
		"{{CARDAPIO}}", RenderMenu(snap.Menu),
		"{{FORMAS_PAGAMENTO}}", RenderPayments(snap.Payments),
		"{{CURRENT_STATE}}", fmt.Sprintf("%d", conv.State),
		"{{ESTADO_DESCRICAO}}", stateDescription(conv.State),
		"{{ENDERECO}}", orUnknown(formatted),
		"{{ENDERECO_RUA}}", orUnknown(addr.Street()),
		"{{ENDERECO_NUMERO}}", orUnknown(addr.Component(domain.ComponentNumber)),
		"{{ENDERECO_BAIRRO}}", orUnknown(addr.Component(domain.ComponentDistrict)),
		"{{ENDERECO_CIDADE}}", orUnknown(addr.Component(domain.ComponentCity)),
		"{{ENDERECO_CEP}}", orUnknown(addr.Component(domain.ComponentPostalCode)),
	}
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "não informado"
	}
	return s
}

// RenderMenu lists the menu grouped by category with identifiers and prices.
func RenderMenu(menu []domain.MenuItem) string {
	items := make([]domain.MenuItem, len(menu))
	copy(items, menu)
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Category != items[j].Category {
			return items[i].Category < items[j].Category
		}
		return items[i].Name < items[j].Name
	})

	var sb strings.Builder
	category := ""
	for _, it := range items {
		if it.Category != category {
			category = it.Category
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(category + ":\n")
		}
		fmt.Fprintf(&sb, "- %s (id: %s) %s", it.Name, it.Identifier, FormatPrice(it.Price))
		if d := strings.TrimSpace(it.Description); d != "" {
			sb.WriteString(": " + d)
		}
		if s := strings.TrimSpace(it.OriginStory); s != "" {
			sb.WriteString(" História: " + s)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// RenderPayments lists the active payment methods, one per line.
func RenderPayments(methods []domain.PaymentMethod) string {
	lines := make([]string, 0, len(methods))
	for _, m := range methods {
		line := "- " + m.Name
		if d := strings.TrimSpace(m.Description); d != "" {
			line += ": " + d
		}
		if m.AcceptsChange {
			line += " (aceita troco)"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// FormatPrice renders 45.9 as "R$ 45,90".
func FormatPrice(v float64) string {
	return "R$ " + strings.Replace(fmt.Sprintf("%.2f", v), ".", ",", 1)
}

func stateDescription(s domain.State) string {
	switch s {
	case domain.StateFlavor:
		return "Escolha do sabor."
	case domain.StateWholeOrSplit:
		return "Pizza inteira ou meio a meio."
	case domain.StateMoreOrFinish:
		return "Adicionar mais itens ou finalizar."
	case domain.StateBeverage:
		return "Oferta de bebidas."
	case domain.StateAddress:
		return "Endereço de entrega (com número)."
	case domain.StatePayment:
		return "Forma de pagamento."
	case domain.StateConfirmation:
		return "Resumo do pedido e confirmação do cliente."
	case domain.StateCommitted:
		return "Pedido confirmado."
	}
	return ""
}

func defaultTemplate() string {
	return strings.Join([]string{
		"Você é {{BOT_NAME}}, atendente virtual da pizzaria.",
		"Personalidade: {{PERSONALIDADE}}",
		"Tom de voz: {{TOM_DE_VOZ}}",
		"Saudação: {{SAUDACAO}}",
		"",
		"Nossa história:",
		"{{HISTORIA}}",
		"",
		"Cardápio:",
		"{{CARDAPIO}}",
		"",
		"Formas de pagamento:",
		"{{FORMAS_PAGAMENTO}}",
		"",
		"Etapa atual: {{CURRENT_STATE}} - {{ESTADO_DESCRICAO}}",
		"Endereço conhecido: {{ENDERECO}}",
	}, "\n")
}

func protocolContract() string {
	return strings.Join([]string{
		"Formato de resposta:",
		"- [TEXT_FORMAT]mensagem de texto[/END]",
		"- [VOICE_FORMAT]texto para ser falado[/END]",
		"- [IMAGE_FORMAT]id do item[/END] (pode repetir; use id1+id2 para pizza meio a meio; use cardapio para o cardápio)",
		"- [JSON_FORMAT]{\"pedido\":{\"items\":[{\"nome\":\"...\",\"quantidade\":1,\"preco\":0.0}],\"endereco\":\"...\",\"pagamento\":\"...\"}}[/END] quando o pedido estiver completo",
		"- [CONFIRMATION_FORMAT]resumo final[/END] somente depois que o cliente confirmar o pedido",
		"Use apenas ids do cardápio. Não escreva nada fora dos blocos.",
	}, "\n")
}

func stateAddendum(s domain.State) string {
	switch s {
	case domain.StateAddress:
		return "Se o endereço não tiver número, peça apenas o número da casa, sem repetir o restante."
	case domain.StatePayment:
		return "Pergunte a forma de pagamento. Se for cartão, pergunte se é crédito ou débito. " +
			"Só fale de troco se o cliente escolher dinheiro."
	}
	return ""
}

// Messages builds the chat request: the system prompt followed by the last
// limit entries of history, which must already end with the current user
// message.
func Messages(system string, history []domain.Message, limit int) []domain.ChatMessage {
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	out := make([]domain.ChatMessage, 0, len(history)+1)
	out = append(out, domain.ChatMessage{Role: "system", Content: system})
	for _, m := range history {
		role := "user"
		if m.Role == domain.RoleBot {
			role = "assistant"
		}
		out = append(out, domain.ChatMessage{Role: role, Content: m.Content})
	}
	return out
}
