package narrate

import (
	"context"
	"sync"
)

// Mutex is the global narration lock: a FIFO mutual-exclusion primitive
// that serializes every narration session in the process. Operations
// submitted through With run in the order their callers arrived and
// never overlap; a failure in one operation never blocks the next.
//
// The zero value is ready to use.
type Mutex struct {
	mu      sync.Mutex
	locked  bool
	owner   uint64
	lastID  uint64
	waiters []*waiter
}

type waiter struct {
	ready    chan *Ticket
	canceled bool
}

// Ticket proves ownership of a Mutex. Releasing a ticket that is not
// the current owner is a no-op, so double release and release after
// preemption are both safe.
type Ticket struct {
	m  *Mutex
	id uint64
}

// Acquire blocks until the lock is free and this caller is at the head
// of the waiter queue, then returns an ownership ticket. Waiters are
// served strictly in arrival order. A cancelled context abandons the
// wait without disturbing the queue.
func (m *Mutex) Acquire(ctx context.Context) (*Ticket, error) {
	m.mu.Lock()
	if !m.locked && len(m.waiters) == 0 {
		m.lastID++
		t := &Ticket{m: m, id: m.lastID}
		m.locked = true
		m.owner = t.id
		m.mu.Unlock()
		return t, nil
	}
	w := &waiter{ready: make(chan *Ticket, 1)}
	m.waiters = append(m.waiters, w)
	m.mu.Unlock()

	select {
	case t := <-w.ready:
		return t, nil
	case <-ctx.Done():
		m.mu.Lock()
		// The handoff may have raced with the cancellation.
		select {
		case t := <-w.ready:
			m.mu.Unlock()
			t.Release()
			return nil, ctx.Err()
		default:
		}
		w.canceled = true
		m.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Release returns the lock, handing it directly to the next waiter in
// FIFO order. No-op unless t is the current owner.
func (t *Ticket) Release() {
	if t == nil {
		return
	}
	m := t.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.locked || m.owner != t.id {
		return
	}
	for len(m.waiters) > 0 {
		w := m.waiters[0]
		m.waiters = m.waiters[1:]
		if w.canceled {
			continue
		}
		m.lastID++
		next := &Ticket{m: m, id: m.lastID}
		m.owner = next.id
		w.ready <- next
		return
	}
	m.locked = false
	m.owner = 0
}

// With acquires the lock, runs fn, and releases. The relative order of
// With calls is the execution order of their functions.
func (m *Mutex) With(ctx context.Context, fn func() error) error {
	t, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	defer t.Release()
	return fn()
}

// Held reports whether the lock is currently owned. Intended for tests
// and diagnostics; the answer may be stale by the time it is observed.
func (m *Mutex) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}
