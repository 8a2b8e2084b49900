package message

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope kinds.
const (
	KindEvent = "event"
	KindError = "error"
)

// Envelope is the wire form of a message forwarded to external subscribers.
type Envelope struct {
	ID         uuid.UUID       `json:"id"`
	Kind       string          `json:"kind"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// NewEventEnvelope wraps an event for publication.
func NewEventEnvelope(evt Event) (*Envelope, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", evt.Type(), err)
	}
	meta := evt.Meta()
	return &Envelope{
		ID:         meta.MessageID,
		Kind:       KindEvent,
		Type:       evt.Type(),
		OccurredAt: meta.OccurredAt,
		Payload:    payload,
	}, nil
}

// NewErrorEnvelope reports that handling msg failed with cause.
// The envelope gets its own id so retries of the same message stay distinct.
func NewErrorEnvelope(msg Message, cause error) (*Envelope, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", msg.Type(), err)
	}
	return &Envelope{
		ID:         NewMetadata().MessageID,
		Kind:       KindError,
		Type:       msg.Type(),
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
		Error:      cause.Error(),
	}, nil
}

// Channel returns the routing key for the envelope under prefix, e.g.
// "resque.event.project.created".
func (e *Envelope) Channel(prefix string) string {
	if prefix == "" {
		return e.Kind + "." + e.Type
	}
	return prefix + "." + e.Kind + "." + e.Type
}
