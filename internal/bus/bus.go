package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/narvanalabs/resque/internal/message"
	"github.com/narvanalabs/resque/internal/store"
	"github.com/narvanalabs/resque/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/narvanalabs/resque/internal/bus"

var (
	// ErrHandlerPanic wraps a panic recovered from a handler.
	ErrHandlerPanic = errors.New("handler panicked")

	// ErrNoResult is returned by Dispatch when the command produced no result.
	ErrNoResult = errors.New("command produced no result")

	// ErrUnexpectedResult is returned by Dispatch when the result has another type.
	ErrUnexpectedResult = errors.New("unexpected command result type")
)

// Sink receives events and failures after their transaction has finished.
// Implementations forward them to subscribers in other processes.
type Sink interface {
	PublishEvent(ctx context.Context, evt message.Event) error
	PublishError(ctx context.Context, msg message.Message, err error) error
}

type nopSink struct{}

func (nopSink) PublishEvent(context.Context, message.Event) error          { return nil }
func (nopSink) PublishError(context.Context, message.Message, error) error { return nil }

// Bus processes a command and every event it causes.
type Bus struct {
	registry *Registry
	sink     Sink
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Option configures a Bus.
type Option func(*Bus)

// WithSink sets the external sink. The default discards everything.
func WithSink(s Sink) Option {
	return func(b *Bus) {
		if s != nil {
			b.sink = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithTracerProvider sets the tracer provider. The default is the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(b *Bus) {
		if tp != nil {
			b.tracer = tp.Tracer(tracerName)
		}
	}
}

// New creates a Bus over a populated registry.
func New(registry *Registry, opts ...Option) *Bus {
	b := &Bus{
		registry: registry,
		sink:     nopSink{},
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Handle runs cmd and then every event recorded along the way, breadth first.
// The command runs in one scope of uow and each event handler in its own.
// A command failure aborts processing and is returned. An event handler
// failure is reported to the sink and processing continues.
// The result holds the value returned by each command handled.
func (b *Bus) Handle(ctx context.Context, uow store.UnitOfWork, cmd message.Command) ([]any, error) {
	ctx, span := b.tracer.Start(ctx, "bus.handle",
		trace.WithAttributes(
			attribute.String("message.type", cmd.Type()),
			attribute.String("message.id", cmd.Meta().MessageID.String()),
		))
	defer span.End()

	queue := []message.Message{cmd}
	var results []any

	for len(queue) > 0 {
		msg := queue[0]
		queue = queue[1:]

		switch m := msg.(type) {
		case message.Command:
			result, err := b.handleCommand(ctx, uow, m)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, err
			}
			results = append(results, result)
		case message.Event:
			b.handleEvent(ctx, uow, m)
		}

		for _, evt := range uow.DrainEvents() {
			queue = append(queue, evt)
			b.publishEvent(ctx, evt)
		}
	}

	span.SetAttributes(attribute.Int("bus.results", len(results)))
	return results, nil
}

func (b *Bus) handleCommand(ctx context.Context, uow store.UnitOfWork, cmd message.Command) (any, error) {
	log := b.logger.With(
		slog.String("message_id", cmd.Meta().MessageID.String()),
		slog.String("message_type", cmd.Type()),
	)

	entry, err := b.registry.command(cmd)
	if err != nil {
		log.Error("no handler for command")
		b.publishError(ctx, cmd, err)
		return nil, err
	}

	ctx = logger.ContextWithMessageID(ctx, cmd.Meta().MessageID.String())
	ctx, span := b.tracer.Start(ctx, "command "+cmd.Type(),
		trace.WithAttributes(attribute.String("handler", entry.name)))
	defer span.End()

	var result any
	err = guard(func() error {
		return uow.Do(ctx, func(ctx context.Context, tx store.Tx) error {
			r, err := entry.handle(ctx, tx, cmd)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("command failed", slog.String("handler", entry.name), slog.String("error", err.Error()))
		b.publishError(ctx, cmd, err)
		return nil, err
	}

	log.Debug("command handled", slog.String("handler", entry.name))
	return result, nil
}

func (b *Bus) handleEvent(ctx context.Context, uow store.UnitOfWork, evt message.Event) {
	for _, entry := range b.registry.subscribers(evt) {
		log := b.logger.With(
			slog.String("message_id", evt.Meta().MessageID.String()),
			slog.String("message_type", evt.Type()),
			slog.String("handler", entry.name),
		)

		hctx := logger.ContextWithMessageID(ctx, evt.Meta().MessageID.String())
		hctx, span := b.tracer.Start(hctx, "event "+evt.Type(),
			trace.WithAttributes(attribute.String("handler", entry.name)))

		err := guard(func() error {
			return uow.Do(hctx, func(ctx context.Context, tx store.Tx) error {
				return entry.handle(ctx, tx, evt)
			})
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.Error("event handler failed", slog.String("error", err.Error()))
			b.publishError(hctx, evt, err)
		} else {
			log.Debug("event handled")
		}
		span.End()
	}
}

func (b *Bus) publishEvent(ctx context.Context, evt message.Event) {
	if err := b.sink.PublishEvent(ctx, evt); err != nil {
		b.logger.Warn("failed to publish event",
			slog.String("message_id", evt.Meta().MessageID.String()),
			slog.String("message_type", evt.Type()),
			slog.String("error", err.Error()),
		)
	}
}

func (b *Bus) publishError(ctx context.Context, msg message.Message, cause error) {
	if err := b.sink.PublishError(ctx, msg, cause); err != nil {
		b.logger.Warn("failed to publish error",
			slog.String("message_id", msg.Meta().MessageID.String()),
			slog.String("message_type", msg.Type()),
			slog.String("error", err.Error()),
		)
	}
}

// guard converts a panic in fn into an error. The unit of work has already
// rolled back by the time the panic reaches here.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return fn()
}

// Dispatch handles cmd and returns its result as R.
func Dispatch[R any](ctx context.Context, b *Bus, uow store.UnitOfWork, cmd message.Command) (R, error) {
	var zero R
	results, err := b.Handle(ctx, uow, cmd)
	if err != nil {
		return zero, err
	}
	if len(results) == 0 {
		return zero, ErrNoResult
	}
	if results[0] == nil {
		return zero, nil
	}
	r, ok := results[0].(R)
	if !ok {
		return zero, fmt.Errorf("%w: %T", ErrUnexpectedResult, results[0])
	}
	return r, nil
}
