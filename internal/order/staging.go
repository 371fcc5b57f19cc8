package order

import (
	"sync"
	"time"

	"github.com/zecanovaes/pizzaria-sapore-bot/internal/domain"
)

const DefaultStagingTTL = 2 * time.Hour

type stagingEntry struct {
	order    domain.StagedOrder
	storedAt time.Time
}

// StagingArea keeps the most recent staged order per identity for TTL.
// Expired entries are swept on every Put. Callers serialize writes per
// identity; the mutex only protects the map.
type StagingArea struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]stagingEntry
}

func NewStagingArea(ttl time.Duration, now func() time.Time) *StagingArea {
	if ttl <= 0 {
		ttl = DefaultStagingTTL
	}
	if now == nil {
		now = time.Now
	}
	return &StagingArea{ttl: ttl, now: now, entries: make(map[string]stagingEntry)}
}

func (a *StagingArea) Put(identity string, o domain.StagedOrder) {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	a.sweepLocked(now)
	a.entries[identity] = stagingEntry{order: o, storedAt: now}
}

func (a *StagingArea) Get(identity string) (domain.StagedOrder, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[identity]
	if !ok || a.now().Sub(e.storedAt) > a.ttl {
		return domain.StagedOrder{}, false
	}
	return e.order, true
}

func (a *StagingArea) Delete(identity string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.entries, identity)
}

// Sweep drops expired entries and returns how many were removed.
func (a *StagingArea) Sweep() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sweepLocked(a.now())
}

func (a *StagingArea) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

func (a *StagingArea) sweepLocked(now time.Time) int {
	n := 0
	for k, e := range a.entries {
		if now.Sub(e.storedAt) > a.ttl {
			delete(a.entries, k)
			n++
		}
	}
	return n
}
