// Package bus routes commands and events to their handlers and drives the
// cascade of events those handlers record.
package bus

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/narvanalabs/resque/internal/message"
	"github.com/narvanalabs/resque/internal/store"
)

var (
	// ErrDuplicateHandler is returned when a command type already has a
	// handler, or an event already has a subscriber with the same name.
	ErrDuplicateHandler = errors.New("handler already registered")

	// ErrHandlerNotFound is returned when a command has no handler.
	ErrHandlerNotFound = errors.New("no handler registered")
)

// CommandHandler handles commands of type C and returns a result of type R.
type CommandHandler[C message.Command, R any] interface {
	Handle(ctx context.Context, tx store.Tx, cmd C) (R, error)
}

// CommandHandlerFunc adapts a function to CommandHandler.
type CommandHandlerFunc[C message.Command, R any] func(ctx context.Context, tx store.Tx, cmd C) (R, error)

// Handle calls f.
func (f CommandHandlerFunc[C, R]) Handle(ctx context.Context, tx store.Tx, cmd C) (R, error) {
	return f(ctx, tx, cmd)
}

// EventHandler reacts to events of type E.
type EventHandler[E message.Event] interface {
	Handle(ctx context.Context, tx store.Tx, evt E) error
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc[E message.Event] func(ctx context.Context, tx store.Tx, evt E) error

// Handle calls f.
func (f EventHandlerFunc[E]) Handle(ctx context.Context, tx store.Tx, evt E) error {
	return f(ctx, tx, evt)
}

type commandEntry struct {
	name   string
	handle func(ctx context.Context, tx store.Tx, cmd message.Command) (any, error)
}

type eventEntry struct {
	name   string
	handle func(ctx context.Context, tx store.Tx, evt message.Event) error
}

// Registry maps message types to handlers. It is filled during wiring and
// only read afterwards, so lookups take no lock.
type Registry struct {
	commands map[reflect.Type]commandEntry
	events   map[reflect.Type][]eventEntry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[reflect.Type]commandEntry),
		events:   make(map[reflect.Type][]eventEntry),
	}
}

// RegisterCommand installs the handler for command type C.
func RegisterCommand[C message.Command, R any](r *Registry, h CommandHandler[C, R]) error {
	t := reflect.TypeFor[C]()
	if _, ok := r.commands[t]; ok {
		return fmt.Errorf("%w: command %s", ErrDuplicateHandler, t)
	}
	r.commands[t] = commandEntry{
		name: t.String(),
		handle: func(ctx context.Context, tx store.Tx, cmd message.Command) (any, error) {
			return h.Handle(ctx, tx, cmd.(C))
		},
	}
	return nil
}

// SubscribeEvent appends a named handler for event type E. Handlers run in
// subscription order.
func SubscribeEvent[E message.Event](r *Registry, name string, h EventHandler[E]) error {
	t := reflect.TypeFor[E]()
	for _, e := range r.events[t] {
		if e.name == name {
			return fmt.Errorf("%w: %s on event %s", ErrDuplicateHandler, name, t)
		}
	}
	r.events[t] = append(r.events[t], eventEntry{
		name: name,
		handle: func(ctx context.Context, tx store.Tx, evt message.Event) error {
			return h.Handle(ctx, tx, evt.(E))
		},
	})
	return nil
}

// MustRegisterCommand is like RegisterCommand but panics on error.
func MustRegisterCommand[C message.Command, R any](r *Registry, h CommandHandler[C, R]) {
	if err := RegisterCommand(r, h); err != nil {
		panic(err)
	}
}

// MustSubscribeEvent is like SubscribeEvent but panics on error.
func MustSubscribeEvent[E message.Event](r *Registry, name string, h EventHandler[E]) {
	if err := SubscribeEvent(r, name, h); err != nil {
		panic(err)
	}
}

func (r *Registry) command(cmd message.Command) (commandEntry, error) {
	t := reflect.TypeOf(cmd)
	e, ok := r.commands[t]
	if !ok {
		return commandEntry{}, fmt.Errorf("%w: command %s", ErrHandlerNotFound, t)
	}
	return e, nil
}

// subscribers returns the handlers for evt. Unknown events have none.
func (r *Registry) subscribers(evt message.Event) []eventEntry {
	return r.events[reflect.TypeOf(evt)]
}
