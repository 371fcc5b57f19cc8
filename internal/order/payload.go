// Package order turns order payloads emitted by the language model into
// staged orders and commits exactly one order per conversation.
package order

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/zecanovaes/pizzaria-sapore-bot/internal/domain"
	"github.com/zecanovaes/pizzaria-sapore-bot/internal/textutil"
)

// MaxItemQuantity caps the quantity of a single order line.
const MaxItemQuantity = 50

var (
	ErrMalformedPayload     = errors.New("order: malformed payload")
	ErrNoItems              = errors.New("order: no items")
	ErrInvalidPrice         = errors.New("order: negative item price")
	ErrInvalidQuantity      = errors.New("order: invalid item quantity")
	ErrNoAddress            = errors.New("order: no address")
	ErrAddressMissingNumber = errors.New("order: address has no house number")
	ErrNoPayment            = errors.New("order: no payment method")
	ErrNothingStaged        = errors.New("order: nothing staged")
	ErrTerminal             = errors.New("order: conversation already committed")
)

// Shape identifies which of the accepted wire shapes a payload used.
type Shape int

const (
	// ShapeNested is {"pedido":{"items":[...],"endereco":...,"pagamento":...}}.
	ShapeNested Shape = iota + 1
	// ShapeFlat is {"items":[...],"endereco":...,"pagamento":...}.
	ShapeFlat
)

func (s Shape) String() string {
	switch s {
	case ShapeNested:
		return "nested"
	case ShapeFlat:
		return "flat"
	}
	return "unknown"
}

// Draft is a payload normalized at the boundary. Totals are never read from
// the wire.
type Draft struct {
	Shape         Shape
	Items         []domain.OrderItem
	Address       string
	PaymentMethod string
}

type wireItem struct {
	Nome       string     `json:"nome"`
	Name       string     `json:"name"`
	Quantidade flexNumber `json:"quantidade"`
	Quantity   flexNumber `json:"quantity"`
	Preco      flexNumber `json:"preco"`
	Price      flexNumber `json:"price"`
}

type wireOrder struct {
	Items     []wireItem `json:"items"`
	Itens     []wireItem `json:"itens"`
	Endereco  string     `json:"endereco"`
	Address   string     `json:"address"`
	Pagamento string     `json:"pagamento"`
	Payment   string     `json:"paymentMethod"`
}

type wireEnvelope struct {
	Pedido *wireOrder `json:"pedido"`
	wireOrder
}

// flexNumber accepts 45.9, "45.90", "45,90" and "R$ 45,90".
type flexNumber struct {
	value float64
	set   bool
}

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "R$"))
		if s == "" {
			return nil
		}
		if strings.Contains(s, ",") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("parse number %q: %w", s, err)
		}
		n.value, n.set = f, true
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	n.value, n.set = f, true
	return nil
}

// quantity converts a wire quantity. Fractional, negative or oversized values
// become 0, which Validate rejects.
func quantity(q float64) int {
	if q < 1 || q > MaxItemQuantity || q != math.Trunc(q) {
		return 0
	}
	return int(q)
}

func firstSet(ns ...flexNumber) (float64, bool) {
	for _, n := range ns {
		if n.set {
			return n.value, true
		}
	}
	return 0, false
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// ParsePayload decodes either wire shape into a Draft. It only fails on
// undecodable JSON; missing fields are reported by Validate.
func ParsePayload(raw string) (Draft, error) {
	var env wireEnvelope
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &env); err != nil {
		return Draft{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	src, shape := env.wireOrder, ShapeFlat
	if env.Pedido != nil {
		src, shape = *env.Pedido, ShapeNested
	}

	wireItems := src.Items
	if len(wireItems) == 0 {
		wireItems = src.Itens
	}
	items := make([]domain.OrderItem, 0, len(wireItems))
	for _, wi := range wireItems {
		name := firstNonEmpty(wi.Nome, wi.Name)
		if name == "" {
			continue
		}
		qty := 1
		if q, ok := firstSet(wi.Quantidade, wi.Quantity); ok && q != 0 {
			qty = quantity(q)
		}
		price, _ := firstSet(wi.Preco, wi.Price)
		items = append(items, domain.OrderItem{Name: name, Quantity: qty, Price: price})
	}

	return Draft{
		Shape:         shape,
		Items:         items,
		Address:       firstNonEmpty(src.Endereco, src.Address),
		PaymentMethod: firstNonEmpty(src.Pagamento, src.Payment),
	}, nil
}

// Validate checks a draft in order: items, quantities, prices, address, house
// number, payment method.
func Validate(d Draft) error {
	if len(d.Items) == 0 {
		return ErrNoItems
	}
	for _, it := range d.Items {
		if it.Quantity < 1 || it.Quantity > MaxItemQuantity {
			return ErrInvalidQuantity
		}
		if it.Price < 0 {
			return ErrInvalidPrice
		}
	}
	if strings.TrimSpace(d.Address) == "" {
		return ErrNoAddress
	}
	if !textutil.HasDigit(d.Address) {
		return ErrAddressMissingNumber
	}
	if strings.TrimSpace(d.PaymentMethod) == "" {
		return ErrNoPayment
	}
	return nil
}
