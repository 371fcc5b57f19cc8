// Package prompt assembles the system prompt for a turn from a cached
// projection of the bot configuration, menu, payment methods and story text.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zecanovaes/pizzaria-sapore-bot/internal/domain"
)

const DefaultCacheTTL = 5 * time.Minute

// Snapshot is the cached context of every turn.
type Snapshot struct {
	Bot      domain.BotConfiguration
	Menu     []domain.MenuItem
	Payments []domain.PaymentMethod
	Story    string
	LoadedAt time.Time
}

type Loader interface {
	Load(ctx context.Context) (Snapshot, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) (Snapshot, error)

func (f LoaderFunc) Load(ctx context.Context) (Snapshot, error) { return f(ctx) }

// Cache serves a Snapshot and refreshes it when empty or older than the TTL.
// Concurrent refreshes may both run; the last one to finish wins. A failed
// refresh keeps serving the previous snapshot.
type Cache struct {
	loader Loader
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu   sync.RWMutex
	snap *Snapshot
}

type CacheOption func(*Cache)

func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

func WithCacheLogger(l *slog.Logger) CacheOption {
	return func(c *Cache) { c.logger = l }
}

func NewCache(loader Loader, opts ...CacheOption) (*Cache, error) {
	if loader == nil {
		return nil, errors.New("prompt: loader must not be nil")
	}
	c := &Cache{loader: loader, ttl: DefaultCacheTTL, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Cache) Get(ctx context.Context) (Snapshot, error) {
	c.mu.RLock()
	snap := c.snap
	c.mu.RUnlock()
	if snap != nil && c.now().Sub(snap.LoadedAt) <= c.ttl {
		return *snap, nil
	}

	fresh, err := c.loader.Load(ctx)
	if err != nil {
		if snap != nil {
			c.logger.Warn("prompt: context refresh failed, serving stale snapshot", "age", c.now().Sub(snap.LoadedAt), "err", err)
			return *snap, nil
		}
		return Snapshot{}, fmt.Errorf("prompt: load context: %w", err)
	}
	fresh.LoadedAt = c.now()

	c.mu.Lock()
	c.snap = &fresh
	c.mu.Unlock()
	return fresh, nil
}

// Invalidate drops the cached snapshot.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.snap = nil
	c.mu.Unlock()
}
