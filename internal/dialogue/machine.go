// Package dialogue implements the order dialogue state machine: per-state
// detectors that decide whether a turn advances the conversation, and the
// intercepts that answer a turn without consulting the language model.
package dialogue

import (
	"log/slog"

	"github.com/zecanovaes/pizzaria-sapore-bot/internal/domain"
	"github.com/zecanovaes/pizzaria-sapore-bot/internal/protocol"
	"github.com/zecanovaes/pizzaria-sapore-bot/internal/textutil"
)

// Input is everything a detector may look at for one turn.
type Input struct {
	State        domain.State
	UserText     string
	ModelText    string
	Blocks       protocol.Blocks
	Conversation *domain.Conversation
	Menu         []domain.MenuItem
}

// Transition is a detector verdict.
type Transition struct {
	Advance bool
	To      domain.State
	Reason  string
}

type Detector interface {
	Detect(in Input) Transition
}

// DetectorFunc adapts a plain function to Detector.
type DetectorFunc func(in Input) Transition

func (f DetectorFunc) Detect(in Input) Transition { return f(in) }

func stay(in Input, reason string) Transition {
	return Transition{To: in.State, Reason: reason}
}

func advance(in Input, reason string) Transition {
	return Transition{Advance: true, To: in.State + 1, Reason: reason}
}

// DefaultDetectors returns the detector table for states 0..7.
func DefaultDetectors() map[domain.State]Detector {
	return map[domain.State]Detector{
		domain.StateFlavor: DetectorFunc(func(in Input) Transition {
			if MentionsFlavor(in.UserText, in.Menu) {
				return advance(in, "flavor_chosen")
			}
			return stay(in, "no_flavor")
		}),
		domain.StateWholeOrSplit: DetectorFunc(func(in Input) Transition {
			if textutil.ContainsAny(in.UserText, wholeOrSplitWords...) {
				return advance(in, "size_chosen")
			}
			return stay(in, "no_size")
		}),
		domain.StateMoreOrFinish: DetectorFunc(func(in Input) Transition {
			if textutil.ContainsAny(in.UserText, finishWords...) {
				return advance(in, "finish")
			}
			if textutil.ContainsAny(in.UserText, moreWords...) {
				return stay(in, "add_more")
			}
			return stay(in, "undecided")
		}),
		domain.StateBeverage: DetectorFunc(func(in Input) Transition {
			if textutil.ContainsAny(in.UserText, beverageWords...) {
				return advance(in, "beverage_answered")
			}
			return stay(in, "no_beverage_answer")
		}),
		domain.StateAddress: DetectorFunc(func(in Input) Transition {
			if HasPostalCode(in.UserText) || HasNumberToken(in.UserText) {
				return advance(in, "address_given")
			}
			return stay(in, "no_address")
		}),
		domain.StatePayment: DetectorFunc(func(in Input) Transition {
			if MentionsPayment(in.UserText) {
				return advance(in, "payment_chosen")
			}
			return stay(in, "no_payment")
		}),
		domain.StateConfirmation: DetectorFunc(func(in Input) Transition {
			if !IsAffirmative(in.UserText) {
				return stay(in, "not_affirmative")
			}
			if !in.Blocks.HasConfirmation {
				return stay(in, "no_confirmation_block")
			}
			if !StagedOrderComplete(in.Conversation) {
				return stay(in, "no_staged_order")
			}
			return advance(in, "confirmed")
		}),
		domain.StateCommitted: DetectorFunc(func(in Input) Transition {
			return stay(in, "terminal")
		}),
	}
}

// StagedOrderComplete reports whether the conversation carries a staged order
// with items, an address containing a digit and a payment method.
func StagedOrderComplete(c *domain.Conversation) bool {
	if c == nil || c.PendingOrder == nil {
		return false
	}
	p := c.PendingOrder
	return len(p.Items) > 0 && textutil.HasDigit(p.Address) && p.PaymentMethod != ""
}

// Machine evaluates the detector table. It never moves a conversation backwards.
type Machine struct {
	detectors map[domain.State]Detector
	logger    *slog.Logger
}

type Option func(*Machine)

// WithDetector overrides the detector of one state.
func WithDetector(s domain.State, d Detector) Option {
	return func(m *Machine) { m.detectors[s] = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

func NewMachine(opts ...Option) *Machine {
	m := &Machine{detectors: DefaultDetectors(), logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Next evaluates the detector of in.State.
func (m *Machine) Next(in Input) Transition {
	if in.State == domain.StateCommitted {
		if in.Conversation != nil && in.Conversation.CommittedOrderRef == "" {
			m.logger.Warn("dialogue: terminal conversation without committed order",
				"conversation_id", in.Conversation.ID, "identity", in.Conversation.Identity)
		}
		return stay(in, "terminal")
	}
	d, ok := m.detectors[in.State]
	if !ok {
		return stay(in, "no_detector")
	}
	t := d.Detect(in)
	if t.Advance && t.To != in.State+1 {
		t.To = in.State + 1
	}
	if !t.Advance {
		t.To = in.State
	}
	return t
}

// ShouldAdvance is the boolean form of Next for callers without parsed blocks.
func (m *Machine) ShouldAdvance(state domain.State, userText, modelText string, conv *domain.Conversation) bool {
	return m.Next(Input{
		State:        state,
		UserText:     userText,
		ModelText:    modelText,
		Blocks:       protocol.Parse(modelText),
		Conversation: conv,
	}).Advance
}
