package events

import (
	"context"
	"errors"

	"github.com/narvanalabs/resque/internal/bus"
	"github.com/narvanalabs/resque/internal/message"
	"github.com/narvanalabs/resque/internal/queue"
)

// OutboxSink enqueues envelopes for the relay instead of publishing them
// directly, so a broker outage does not lose messages.
type OutboxSink struct {
	q queue.Queue
}

// NewOutboxSink creates a sink writing to q.
func NewOutboxSink(q queue.Queue) *OutboxSink {
	return &OutboxSink{q: q}
}

var _ bus.Sink = (*OutboxSink)(nil)

// PublishEvent implements bus.Sink.
func (s *OutboxSink) PublishEvent(ctx context.Context, evt message.Event) error {
	env, err := message.NewEventEnvelope(evt)
	if err != nil {
		return err
	}
	return s.q.Enqueue(ctx, env)
}

// PublishError implements bus.Sink.
func (s *OutboxSink) PublishError(ctx context.Context, msg message.Message, cause error) error {
	env, err := message.NewErrorEnvelope(msg, cause)
	if err != nil {
		return err
	}
	return s.q.Enqueue(ctx, env)
}

// Fanout sends every message to each sink in order. A failing sink does not
// stop the others; their errors are joined.
type Fanout []bus.Sink

var _ bus.Sink = Fanout(nil)

// PublishEvent implements bus.Sink.
func (f Fanout) PublishEvent(ctx context.Context, evt message.Event) error {
	var errs []error
	for _, s := range f {
		errs = append(errs, s.PublishEvent(ctx, evt))
	}
	return errors.Join(errs...)
}

// PublishError implements bus.Sink.
func (f Fanout) PublishError(ctx context.Context, msg message.Message, cause error) error {
	var errs []error
	for _, s := range f {
		errs = append(errs, s.PublishError(ctx, msg, cause))
	}
	return errors.Join(errs...)
}

// ErrorsOnly passes handler failures to Sink and drops events. It pairs with
// a store that already writes committed events to the outbox itself.
type ErrorsOnly struct {
	Sink bus.Sink
}

var _ bus.Sink = ErrorsOnly{}

// PublishEvent implements bus.Sink.
func (ErrorsOnly) PublishEvent(context.Context, message.Event) error { return nil }

// PublishError implements bus.Sink.
func (e ErrorsOnly) PublishError(ctx context.Context, msg message.Message, cause error) error {
	return e.Sink.PublishError(ctx, msg, cause)
}
