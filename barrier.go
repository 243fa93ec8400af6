package openbilling

import (
	"sync"
	"time"
)

// countBarrier is a counting barrier with a bounded wait: it opens when
// countDown has been called once per registered party, or when the wait
// timeout expires, whichever comes first. Late countDown calls after the
// barrier opened are harmless.
type countBarrier struct {
	mu    sync.Mutex
	count int
	open  chan struct{}
}

func newCountBarrier(parties int) *countBarrier {
	b := &countBarrier{count: parties, open: make(chan struct{})}
	if parties <= 0 {
		close(b.open)
	}
	return b
}

func (b *countBarrier) countDown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 {
		return
	}
	b.count--
	if b.count == 0 {
		close(b.open)
	}
}

// wait blocks until the barrier opens or the timeout expires. It reports
// whether every party arrived in time.
func (b *countBarrier) wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-b.open:
		return true
	case <-timer.C:
		return false
	}
}

// remaining returns the number of parties still outstanding.
func (b *countBarrier) remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
