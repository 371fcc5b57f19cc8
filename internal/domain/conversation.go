package domain

import (
	"strings"
	"time"

	"github.com/zecanovaes/pizzaria-sapore-bot/internal/textutil"
)

// State is the dialogue step of a conversation. Values run 0..7.
type State int

const (
	StateFlavor State = iota
	StateWholeOrSplit
	StateMoreOrFinish
	StateBeverage
	StateAddress
	StatePayment
	StateConfirmation
	StateCommitted
)

var stateNames = [...]string{
	"flavor_selection",
	"whole_or_split",
	"more_or_finish",
	"beverages",
	"delivery_address",
	"payment_method",
	"order_confirmation",
	"committed",
}

func (s State) String() string {
	if s < StateFlavor || s > StateCommitted {
		return "unknown"
	}
	return stateNames[s]
}

// Valid reports whether s is one of the eight dialogue steps.
func (s State) Valid() bool {
	return s >= StateFlavor && s <= StateCommitted
}

type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Message is a single conversation turn entry.
type Message struct {
	Role      Role      `json:"role" dynamodbav:"role"`
	Content   string    `json:"content" dynamodbav:"content"`
	Timestamp time.Time `json:"timestamp" dynamodbav:"timestamp"`
}

// Address component keys as returned by the geocoder.
const (
	ComponentStreet       = "route"
	ComponentNumber       = "street_number"
	ComponentDistrict     = "sublocality"
	ComponentCity         = "city"
	ComponentPostalCode   = "postal_code"
	ComponentState        = "state"
	ComponentCountryShort = "country"
)

// AddressData is the resolved delivery address of a conversation.
type AddressData struct {
	FormattedAddress string            `json:"formattedAddress" dynamodbav:"formattedAddress"`
	Components       map[string]string `json:"components,omitempty" dynamodbav:"components,omitempty"`
}

// Street returns the street name, falling back to the route of the
// formatted address.
func (a *AddressData) Street() string {
	if a == nil {
		return ""
	}
	if s := strings.TrimSpace(a.Components[ComponentStreet]); s != "" {
		return s
	}
	first, _, _ := strings.Cut(a.FormattedAddress, ",")
	route, _, _ := strings.Cut(first, " - ")
	return strings.TrimSpace(route)
}

func (a *AddressData) Component(key string) string {
	if a == nil {
		return ""
	}
	return a.Components[key]
}

// HasNumber reports whether the address carries a house number.
func (a *AddressData) HasNumber() bool {
	if a == nil {
		return false
	}
	if strings.TrimSpace(a.Components[ComponentNumber]) != "" {
		return true
	}
	return textutil.HasDigit(a.Street())
}

// Conversation is the per-customer dialogue record. A terminal conversation
// is never reopened; the next inbound message starts a new one.
type Conversation struct {
	ID                string
	Identity          string
	State             State
	Messages          []Message
	AddressData       *AddressData
	PendingOrder      *StagedOrder
	CommittedOrderRef string
	ConfirmationText  string
	ConfirmationAsset string
	PaymentPrompted   bool
	StartedAt         time.Time
	UpdatedAt         time.Time
	DurationMinutes   int
	// Version is the optimistic-lock counter; zero means never persisted.
	Version int64
}

// NewConversation starts a dialogue at the flavor selection step.
func NewConversation(id, identity string, now time.Time) *Conversation {
	now = now.UTC()
	return &Conversation{
		ID:        id,
		Identity:  identity,
		State:     StateFlavor,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// IsTerminal reports whether the conversation already produced its order.
func (c *Conversation) IsTerminal() bool {
	return c.State == StateCommitted || c.CommittedOrderRef != ""
}

// IsStale reports whether the conversation started more than maxAge ago.
func (c *Conversation) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(c.StartedAt) > maxAge
}

func (c *Conversation) AppendMessage(role Role, content string, ts time.Time) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	c.Messages = append(c.Messages, Message{Role: role, Content: content, Timestamp: ts.UTC()})
}

// Touch stamps the update time and recomputes the duration.
func (c *Conversation) Touch(now time.Time) {
	c.UpdatedAt = now.UTC()
	c.DurationMinutes = int(c.UpdatedAt.Sub(c.StartedAt).Minutes())
}

// Advance moves the conversation to next unless that would move it backwards
// or out of the terminal state.
func (c *Conversation) Advance(next State) {
	if c.State == StateCommitted || next <= c.State || !next.Valid() {
		return
	}
	c.State = next
}

// UserMessages returns the customer's messages, oldest first.
func (c *Conversation) UserMessages() []Message {
	out := make([]Message, 0, len(c.Messages))
	for _, m := range c.Messages {
		if m.Role == RoleUser {
			out = append(out, m)
		}
	}
	return out
}
