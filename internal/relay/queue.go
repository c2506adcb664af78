package relay

import (
	"context"
	"sync"

	"github.com/davidbz/hearth/internal/domain"
)

// eventQueue is the unbounded queue between pump and drain. The pump must
// never block on a slow or absent consumer, so the queue grows as needed.
// Only the pump closes it.
//
// The closed+empty check and the arming of the wait channel both happen under
// mu, so a close that lands between "queue is empty" and "wait for the next
// item" cannot be missed: the waiter holds the wake channel that Close (or
// Push) will close.
type eventQueue struct {
	mu     sync.Mutex
	items  []domain.Event
	closed bool
	wake   chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		wake: make(chan struct{}),
	}
}

// push appends an event and wakes any waiter. Pushes after close are dropped.
func (q *eventQueue) push(ev domain.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.items = append(q.items, ev)
	close(q.wake)
	q.wake = make(chan struct{})
}

// close marks the queue closed and wakes any waiter. Queued events remain
// drainable; next reports exhaustion only once closed and empty.
func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.wake)
	q.wake = make(chan struct{})
}

// next returns the next queued event. It returns ok=false once the queue is
// closed and drained, or when ctx is cancelled.
func (q *eventQueue) next(ctx context.Context) (domain.Event, bool) {
	for {
		q.mu.Lock()

		if len(q.items) > 0 {
			ev := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return ev, true
		}

		if q.closed {
			q.mu.Unlock()
			return domain.Event{}, false
		}

		wake := q.wake
		q.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return domain.Event{}, false
		}
	}
}
