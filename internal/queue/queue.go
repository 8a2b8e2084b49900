// Package queue provides the event outbox: envelopes waiting to be delivered
// to the external broker.
package queue

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/narvanalabs/resque/internal/message"
)

// Common errors returned by queue operations.
var (
	// ErrEmpty is returned when no envelopes are waiting.
	ErrEmpty = errors.New("no envelopes available")
	// ErrEntryNotFound is returned when an entry cannot be found in the processing state.
	ErrEntryNotFound = errors.New("outbox entry not found")
)

// Entry is a dequeued envelope together with its delivery attempts so far.
type Entry struct {
	Envelope *message.Envelope
	Attempts int
}

// Queue defines the outbox operations.
type Queue interface {
	// Enqueue stores an envelope for delivery.
	Enqueue(ctx context.Context, env *message.Envelope) error

	// Dequeue locks and returns the oldest pending envelope.
	// Returns ErrEmpty if nothing is pending.
	Dequeue(ctx context.Context) (*Entry, error)

	// Ack removes a delivered envelope.
	Ack(ctx context.Context, id uuid.UUID) error

	// Nack returns an envelope to the pending state and counts the attempt.
	Nack(ctx context.Context, id uuid.UUID) error

	// DeadLetter parks an envelope that will not be retried.
	DeadLetter(ctx context.Context, id uuid.UUID, reason string) error
}
