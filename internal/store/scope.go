package store

import (
	"sync"
	"sync/atomic"

	"github.com/narvanalabs/resque/internal/message"
)

// Scope tracks whether a unit of work is open and buffers the events recorded
// in it. Unit-of-work implementations embed a Scope and call Enter and Exit
// around each transaction.
type Scope struct {
	active atomic.Bool

	mu      sync.Mutex
	pending []message.Event
	ready   []message.Event
}

// Enter opens the scope. It fails with ErrUnitOfWorkActive if already open.
func (s *Scope) Enter() error {
	if !s.active.CompareAndSwap(false, true) {
		return ErrUnitOfWorkActive
	}
	return nil
}

// Exit closes the scope. Events recorded since Enter become drainable when
// committed is true and are discarded otherwise.
func (s *Scope) Exit(committed bool) {
	s.mu.Lock()
	if committed {
		s.ready = append(s.ready, s.pending...)
	}
	s.pending = nil
	s.mu.Unlock()
	s.active.Store(false)
}

// Record buffers events for the open scope.
func (s *Scope) Record(events ...message.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, events...)
}

// DrainEvents returns the committed events in order and clears them.
func (s *Scope) DrainEvents() []message.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.ready
	s.ready = nil
	return out
}

// Active reports whether the scope is open.
func (s *Scope) Active() bool {
	return s.active.Load()
}
