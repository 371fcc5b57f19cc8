package order

import (
	"errors"
	"time"

	"github.com/zecanovaes/pizzaria-sapore-bot/internal/domain"
)

// StageResult reports what staging did to the conversation.
type StageResult struct {
	Staged bool
	// NeedsNumber is set when the address lacked a house number and the
	// conversation was sent back to the address step.
	NeedsNumber bool
	Order       *domain.StagedOrder
	Err         error
}

type Stager struct {
	area *StagingArea
	now  func() time.Time
}

func NewStager(area *StagingArea, now func() time.Time) *Stager {
	if now == nil {
		now = time.Now
	}
	return &Stager{area: area, now: now}
}

// Stage validates d and stages it on conv. A valid draft moves the
// conversation to at least the confirmation step; an address without a house
// number moves it back to the address step and stages nothing. A committed
// conversation is left untouched.
func (s *Stager) Stage(conv *domain.Conversation, d Draft) StageResult {
	if conv.IsTerminal() {
		return StageResult{Err: ErrTerminal}
	}
	if err := Validate(d); err != nil {
		if errors.Is(err, ErrAddressMissingNumber) {
			conv.State = domain.StateAddress
			return StageResult{NeedsNumber: true, Err: err}
		}
		return StageResult{Err: err}
	}

	items := make([]domain.OrderItem, len(d.Items))
	copy(items, d.Items)
	staged := &domain.StagedOrder{
		Items:         items,
		Address:       d.Address,
		PaymentMethod: d.PaymentMethod,
		TotalValue:    domain.ComputeTotal(items),
		StagedAt:      s.now().UTC(),
	}
	conv.PendingOrder = staged
	conv.Advance(domain.StateConfirmation)
	if s.area != nil {
		s.area.Put(conv.Identity, *staged)
	}
	return StageResult{Staged: true, Order: staged}
}
