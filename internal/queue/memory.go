package queue

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/narvanalabs/resque/internal/message"
)

type memoryStatus int

const (
	memoryPending memoryStatus = iota
	memoryProcessing
	memoryDead
)

type memoryEntry struct {
	env      *message.Envelope
	status   memoryStatus
	attempts int
	reason   string
}

// Memory is an in-process Queue used when no database is configured.
type Memory struct {
	mu      sync.Mutex
	order   []uuid.UUID
	entries map[uuid.UUID]*memoryEntry
}

// NewMemory creates an empty in-process queue.
func NewMemory() *Memory {
	return &Memory{entries: make(map[uuid.UUID]*memoryEntry)}
}

var _ Queue = (*Memory)(nil)

func (q *Memory) Enqueue(_ context.Context, env *message.Envelope) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.entries[env.ID]; ok {
		return nil
	}
	q.entries[env.ID] = &memoryEntry{env: env}
	q.order = append(q.order, env.ID)
	return nil
}

func (q *Memory) Dequeue(ctx context.Context) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range q.order {
		e := q.entries[id]
		if e.status == memoryPending {
			e.status = memoryProcessing
			return &Entry{Envelope: e.env, Attempts: e.attempts}, nil
		}
	}
	return nil, ErrEmpty
}

func (q *Memory) Ack(_ context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok || e.status != memoryProcessing {
		return ErrEntryNotFound
	}
	delete(q.entries, id)
	for i, x := range q.order {
		if x == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return nil
}

func (q *Memory) Nack(_ context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok || e.status != memoryProcessing {
		return ErrEntryNotFound
	}
	e.status = memoryPending
	e.attempts++
	return nil
}

func (q *Memory) DeadLetter(_ context.Context, id uuid.UUID, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok || e.status != memoryProcessing {
		return ErrEntryNotFound
	}
	e.status = memoryDead
	e.reason = reason
	return nil
}

// Dead returns the envelopes parked by DeadLetter.
func (q *Memory) Dead() []*message.Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*message.Envelope
	for _, id := range q.order {
		if e := q.entries[id]; e.status == memoryDead {
			out = append(out, e.env)
		}
	}
	return out
}

// Len returns the number of pending and in-flight envelopes.
func (q *Memory) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, e := range q.entries {
		if e.status != memoryDead {
			n++
		}
	}
	return n
}
