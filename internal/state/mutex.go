package state

import (
	"context"
	"sync"
)

// Mutex is a FIFO mutex. Waiters are granted the lock strictly in the order
// they called Lock; Unlock hands ownership directly to the head of the queue
// so a newcomer can never barge in ahead of it.
//
// The zero value is unlocked and ready to use.
type Mutex struct {
	mu      sync.Mutex
	locked  bool
	waiters []chan struct{}
}

// Lock blocks until the mutex is held or ctx is done. A waiter that gives up
// leaves the queue without disturbing the order of the others.
func (m *Mutex) Lock(ctx context.Context) error {
	m.mu.Lock()
	if !m.locked && len(m.waiters) == 0 {
		m.locked = true
		m.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	m.waiters = append(m.waiters, ready)
	m.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-ready:
		// Ownership arrived while we were giving up; pass it along.
		m.handOff()
	default:
		m.dequeue(ready)
	}
	return ctx.Err()
}

// Unlock releases the mutex, waking the longest waiter if there is one.
func (m *Mutex) Unlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.locked {
		panic("state: unlock of unlocked mutex")
	}
	m.handOff()
}

// RunExclusive runs fn while holding the mutex.
func (m *Mutex) RunExclusive(ctx context.Context, fn func() error) error {
	if err := m.Lock(ctx); err != nil {
		return err
	}
	defer m.Unlock()
	return fn()
}

// Waiting reports how many callers are queued behind the holder.
func (m *Mutex) Waiting() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiters)
}

// handOff must be called with m.mu held and the mutex locked.
func (m *Mutex) handOff() {
	if len(m.waiters) == 0 {
		m.locked = false
		return
	}
	next := m.waiters[0]
	m.waiters = m.waiters[1:]
	close(next)
}

func (m *Mutex) dequeue(ch chan struct{}) {
	for i, w := range m.waiters {
		if w == ch {
			m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
			return
		}
	}
}
