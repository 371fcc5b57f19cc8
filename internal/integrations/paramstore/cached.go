package paramstore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/zecanovaes/pizzaria-sapore-bot/internal/domain"
)

type cachedValue struct {
	value   string
	missing bool
	fetched time.Time
}

// Cached memoizes parameter values for a TTL. Runtime settings such as the
// model name are read every turn; SSM is only hit once per TTL per name.
// Parameters that do not exist are remembered as missing for the same TTL.
// Other read errors are not cached.
type Cached struct {
	getter Getter
	ttl    time.Duration
	now    func() time.Time

	mu     sync.Mutex
	values map[string]cachedValue
}

func NewCached(getter Getter, ttl time.Duration) (*Cached, error) {
	if getter == nil {
		return nil, errors.New("paramstore: getter must not be nil")
	}
	return &Cached{getter: getter, ttl: ttl, now: time.Now, values: map[string]cachedValue{}}, nil
}

func (c *Cached) GetParameter(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	c.mu.Lock()
	v, ok := c.values[name]
	c.mu.Unlock()
	if ok && c.now().Sub(v.fetched) < c.ttl {
		if v.missing {
			return "", domain.ErrNotFound
		}
		return v.value, nil
	}

	value, err := c.getter.GetParameter(ctx, name)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.store(name, cachedValue{missing: true, fetched: c.now()})
		return "", err
	case err != nil:
		return "", err
	}
	c.store(name, cachedValue{value: value, fetched: c.now()})
	return value, nil
}

func (c *Cached) store(name string, v cachedValue) {
	c.mu.Lock()
	c.values[name] = v
	c.mu.Unlock()
}

// GetOr returns the value of name, or fallback when it is missing, blank or
// unreadable.
func (c *Cached) GetOr(ctx context.Context, name, fallback string) string {
	v, err := c.GetParameter(ctx, name)
	if err != nil || strings.TrimSpace(v) == "" {
		return fallback
	}
	return strings.TrimSpace(v)
}
