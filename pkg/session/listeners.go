package session

import (
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/petermattis/goid"

	"github.com/gregLibert/smart-card-reader/internal/syncutil"
)

// Subscribe registers fn for every presence event. Listeners run one at a time on the
// session dispatcher goroutine, in subscription order.
//
// A listener may call Close. Close then returns without waiting for the remaining
// events, which are delivered once the listener returns.
func (s *Session) Subscribe(fn func(PresenceEvent)) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.listeners[s.nextID] = fn
	return Subscription{id: s.nextID}
}

// Unsubscribe removes a listener. Removing it twice is a no-op.
func (s *Session) Unsubscribe(sub Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.listeners, sub.id)
}

func (s *Session) deliver(evt PresenceEvent) {
	s.mu.RLock()
	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(PresenceEvent), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.listeners[id])
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		s.call(fn, evt)
	}
}

func (s *Session) call(fn func(PresenceEvent), evt PresenceEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("listener panicked", slog.Int("slot", evt.Slot), slog.Any("panic", r))
		}
	}()
	fn(evt)
}

// queue is an unbounded FIFO drained by a single goroutine.
type queue struct {
	deliver func(PresenceEvent)

	mu      syncutil.Mutex
	pending []PresenceEvent
	closed  bool
	wake    chan struct{}
	done    chan struct{}

	runner atomic.Int64 // goroutine id of run
}

func newQueue(deliver func(PresenceEvent)) *queue {
	return &queue{
		deliver: deliver,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (q *queue) push(evt PresenceEvent) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, evt)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *queue) run() {
	q.runner.Store(goid.Get())
	defer close(q.done)

	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			<-q.wake
			continue
		}
		evt := q.pending[0]
		q.pending[0] = PresenceEvent{}
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.deliver(evt)
	}
}

// close stops accepting events and waits until the pending ones are delivered.
// Called from a listener, it does not wait: run is blocked in that very listener.
func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	if goid.Get() == q.runner.Load() {
		return
	}
	<-q.done
}
