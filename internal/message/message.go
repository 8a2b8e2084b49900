// Package message defines the commands and events exchanged through the bus.
package message

import (
	"time"

	"github.com/google/uuid"
)

// Metadata identifies a single message.
type Metadata struct {
	MessageID  uuid.UUID `json:"message_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewMetadata stamps a message with a time-ordered id and the current time.
func NewMetadata() Metadata {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return Metadata{MessageID: id, OccurredAt: time.Now().UTC()}
}

// Meta returns the metadata. Embedding types inherit it.
func (m Metadata) Meta() Metadata { return m }

// Message is anything that travels through the bus.
type Message interface {
	Meta() Metadata
	// Type is a stable dotted name such as "project.member_invited".
	Type() string
}

// Command asks for one state change and expects exactly one handler.
// Implementations embed CommandMeta.
type Command interface {
	Message
	command()
}

// Event records a state change that already happened. Implementations embed EventMeta.
type Event interface {
	Message
	event()
}

// CommandMeta marks a struct as a Command.
type CommandMeta struct {
	Metadata
}

func (CommandMeta) command() {}

// NewCommandMeta returns fresh command metadata.
func NewCommandMeta() CommandMeta { return CommandMeta{Metadata: NewMetadata()} }

// EventMeta marks a struct as an Event.
type EventMeta struct {
	Metadata
}

func (EventMeta) event() {}

// NewEventMeta returns fresh event metadata.
func NewEventMeta() EventMeta { return EventMeta{Metadata: NewMetadata()} }
