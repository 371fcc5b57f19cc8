package usecase

import "sync"

// identityLocks serializes turns of one identity. Entries are dropped when no
// turn holds or waits for them.
type identityLocks struct {
	mu sync.Mutex
	m  map[string]*identityLock
}

type identityLock struct {
	mu   sync.Mutex
	refs int
}

func newIdentityLocks() *identityLocks {
	return &identityLocks{m: map[string]*identityLock{}}
}

func (l *identityLocks) lock(identity string) (unlock func()) {
	l.mu.Lock()
	entry, ok := l.m[identity]
	if !ok {
		entry = &identityLock{}
		l.m[identity] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.m, identity)
		}
		l.mu.Unlock()
	}
}

func (l *identityLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
