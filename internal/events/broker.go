// Package events delivers committed events and handler failures to
// subscribers outside the bus: in-process streams, Redis and the outbox.
package events

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/narvanalabs/resque/internal/bus"
	"github.com/narvanalabs/resque/internal/message"
)

// subscriberBuffer is how far a subscriber may fall behind before envelopes
// are dropped for it.
const subscriberBuffer = 100

// Subscriber receives the envelopes matching its filter on Ch until it is
// unsubscribed or the broker closes.
type Subscriber struct {
	ID string
	// Kind is message.KindEvent, message.KindError or "" for both.
	Kind string
	// TypePrefix filters by message type, e.g. "requirement.".
	TypePrefix string
	Ch         chan *message.Envelope
}

func (s *Subscriber) wants(env *message.Envelope) bool {
	return (s.Kind == "" || s.Kind == env.Kind) && strings.HasPrefix(env.Type, s.TypePrefix)
}

// Broker fans envelopes out to in-process subscribers. It never blocks a
// publisher.
type Broker struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[string]*Subscriber
}

var _ bus.Sink = (*Broker)(nil)

func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{logger: logger, subs: make(map[string]*Subscriber)}
}

// Subscribe opens a stream of envelopes filtered by kind and type prefix.
func (b *Broker) Subscribe(kind, typePrefix string) *Subscriber {
	sub := &Subscriber{
		ID:         uuid.NewString(),
		Kind:       kind,
		TypePrefix: typePrefix,
		Ch:         make(chan *message.Envelope, subscriberBuffer),
	}
	b.mu.Lock()
	b.subs[sub.ID] = sub
	b.mu.Unlock()

	b.logger.Debug("subscribed", "subscriber_id", sub.ID, "kind", kind, "type_prefix", typePrefix)
	return sub
}

// Unsubscribe closes sub's channel. Repeated calls are no-ops.
func (b *Broker) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.ID]; !ok {
		return
	}
	delete(b.subs, sub.ID)
	close(sub.Ch)
	b.logger.Debug("unsubscribed", "subscriber_id", sub.ID)
}

// Publish offers env to every matching subscriber. A subscriber with a full
// buffer misses it.
func (b *Broker) Publish(env *message.Envelope) {
	if env == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !sub.wants(env) {
			continue
		}
		select {
		case sub.Ch <- env:
		default:
			b.logger.Warn("subscriber lagging, envelope dropped", "subscriber_id", sub.ID, "message_id", env.ID)
		}
	}
}

// PublishEvent implements bus.Sink.
func (b *Broker) PublishEvent(_ context.Context, evt message.Event) error {
	env, err := message.NewEventEnvelope(evt)
	if err != nil {
		return err
	}
	b.Publish(env)
	return nil
}

// PublishError implements bus.Sink.
func (b *Broker) PublishError(_ context.Context, msg message.Message, cause error) error {
	env, err := message.NewErrorEnvelope(msg, cause)
	if err != nil {
		return err
	}
	b.Publish(env)
	return nil
}

// Relay adapts a Broker to the relay publisher interface, for deployments
// that drain the outbox without Redis.
type Relay struct {
	Broker *Broker
}

// Publish hands env to local subscribers.
func (r Relay) Publish(_ context.Context, env *message.Envelope) error {
	r.Broker.Publish(env)
	return nil
}

// SubscriberCount reports the open subscriptions.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close ends every subscription.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.Ch)
	}
}
