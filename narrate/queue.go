package narrate

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// QueueEntry is one buffered narration request. At most one live entry
// exists per caller key: a newer enqueue under the same key replaces
// the pending entry in place, and the superseded payload is discarded
// without its handler ever being invoked.
type QueueEntry struct {
	Key        string
	Request    SpeakRequest
	EnqueuedAt time.Time

	handler func(error)
}

// Queue buffers narration requests that arrive while a session is
// active, with debounce-with-coalescing semantics: each entry waits a
// quiet period before executing, re-enqueues within the window restart
// it, and only the most recent payload per key ever runs. A running
// execution is never interrupted; execution order across distinct keys
// follows the arrival order of their now-current entries.
type Queue struct {
	exec   func(context.Context, SpeakRequest) error
	delay  time.Duration
	logger *log.Logger

	mu      sync.Mutex
	pending map[string]*QueueEntry
	order   []string
	closed  bool

	wake chan struct{}
	done chan struct{}
}

// NewQueue creates a queue that executes requests through exec, one at
// a time, each after a quiet period of delay. A nil logger selects the
// default logger.
func NewQueue(exec func(context.Context, SpeakRequest) error, delay time.Duration, logger *log.Logger) *Queue {
	if logger == nil {
		logger = log.Default()
	}
	q := &Queue{
		exec:    exec,
		delay:   delay,
		logger:  logger,
		pending: make(map[string]*QueueEntry),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go q.dispatch()
	return q
}

// Enqueue schedules req under key. handler, if non-nil, receives the
// execution result, but only if this exact request runs: an entry
// superseded before starting is dropped silently. Returns ErrQueueClosed
// after Close.
func (q *Queue) Enqueue(key string, req SpeakRequest, handler func(error)) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	now := time.Now()
	if e, ok := q.pending[key]; ok {
		// Latest wins: replace in place and move to the back of the
		// arrival order.
		e.Request = req
		e.EnqueuedAt = now
		e.handler = handler
		for i, k := range q.order {
			if k == key {
				q.order = append(q.order[:i], q.order[i+1:]...)
				break
			}
		}
		q.order = append(q.order, key)
		q.logger.Debug("queue entry replaced", "key", key)
	} else {
		q.pending[key] = &QueueEntry{
			Key:        key,
			Request:    req,
			EnqueuedAt: now,
			handler:    handler,
		}
		q.order = append(q.order, key)
	}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Len returns the number of pending entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// Close stops the dispatcher and discards pending entries. Blocks until
// any in-flight execution finishes.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.pending = make(map[string]*QueueEntry)
	q.order = nil
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-q.done
}

// dispatch runs entries one at a time. Because execution happens on
// this single goroutine, an enqueue during execution can never
// interrupt the running request; it waits for completion and then
// becomes the next scheduled entry for its key.
func (q *Queue) dispatch() {
	defer close(q.done)
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return
		}
		var next *QueueEntry
		wait := time.Duration(-1)
		if len(q.order) > 0 {
			head := q.pending[q.order[0]]
			elapsed := time.Since(head.EnqueuedAt)
			if elapsed >= q.delay {
				next = head
				delete(q.pending, head.Key)
				q.order = q.order[1:]
			} else {
				wait = q.delay - elapsed
			}
		}
		q.mu.Unlock()

		if next != nil {
			err := q.exec(context.Background(), next.Request)
			if err != nil {
				q.logger.Error("queued narration failed",
					"key", next.Key, "error", err)
			}
			if next.handler != nil {
				next.handler(err)
			}
			continue
		}

		if wait < 0 {
			<-q.wake
			continue
		}
		timer.Reset(wait)
		select {
		case <-q.wake:
			if !timer.Stop() {
				<-timer.C
			}
		case <-timer.C:
		}
	}
}
