package usecase

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIdentityLocksSerializeSameIdentity(t *testing.T) {
	l := newIdentityLocks()
	unlock := l.lock("a")

	acquired := make(chan struct{})
	go func() {
		u := l.lock("a")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while the first was held")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	<-acquired
	require.Eventually(t, func() bool { return l.len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestIdentityLocksIndependentIdentities(t *testing.T) {
	l := newIdentityLocks()
	ua := l.lock("a")
	ub := l.lock("b")
	require.Equal(t, 2, l.len())
	ua()
	ub()
	require.Zero(t, l.len())
}

func TestIdentityLocksConcurrentCounter(t *testing.T) {
	l := newIdentityLocks()
	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.lock("same")
			defer unlock()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()
	require.Equal(t, 50, counter)
	require.Zero(t, l.len())
}
