package bus

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/narvanalabs/resque/internal/message"
	"github.com/narvanalabs/resque/internal/store"
	"github.com/narvanalabs/resque/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type placeOrder struct {
	message.CommandMeta
	Item string
}

func (placeOrder) Type() string { return "order.place" }

type cancelOrder struct {
	message.CommandMeta
}

func (cancelOrder) Type() string { return "order.cancel" }

type orderPlaced struct {
	message.EventMeta
	Item string
}

func (orderPlaced) Type() string { return "order.placed" }

type stockReserved struct {
	message.EventMeta
	Item string
}

func (stockReserved) Type() string { return "stock.reserved" }

type recordingSink struct {
	mu     sync.Mutex
	events []message.Event
	errors []error
	failed []message.Message
	err    error
}

func (s *recordingSink) PublishEvent(_ context.Context, evt message.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return s.err
}

func (s *recordingSink) PublishError(_ context.Context, msg message.Message, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, msg)
	s.errors = append(s.errors, err)
	return s.err
}

func placeOrderHandler(events ...message.Event) CommandHandlerFunc[placeOrder, string] {
	return func(ctx context.Context, tx store.Tx, cmd placeOrder) (string, error) {
		tx.Publish(events...)
		return "order:" + cmd.Item, nil
	}
}

func TestRegisterCommandTwiceFails(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, RegisterCommand(reg, placeOrderHandler()))

	err := RegisterCommand(reg, placeOrderHandler())
	assert.ErrorIs(t, err, ErrDuplicateHandler)
}

func TestSubscribeSameNameTwiceFails(t *testing.T) {
	reg := NewRegistry()
	noop := EventHandlerFunc[orderPlaced](func(context.Context, store.Tx, orderPlaced) error { return nil })

	require.NoError(t, SubscribeEvent(reg, "audit", noop))
	require.NoError(t, SubscribeEvent(reg, "mailer", noop))
	assert.ErrorIs(t, SubscribeEvent(reg, "audit", noop), ErrDuplicateHandler)
}

func TestHandleUnregisteredCommand(t *testing.T) {
	sink := &recordingSink{}
	b := New(NewRegistry(), WithSink(sink))

	_, err := b.Handle(context.Background(), memory.New().NewUnitOfWork(), cancelOrder{CommandMeta: message.NewCommandMeta()})
	assert.ErrorIs(t, err, ErrHandlerNotFound)
	require.Len(t, sink.errors, 1)
	assert.ErrorIs(t, sink.errors[0], ErrHandlerNotFound)
}

func TestHandleInvokesCommandHandlerOnce(t *testing.T) {
	reg := NewRegistry()
	calls := 0
	MustRegisterCommand(reg, CommandHandlerFunc[placeOrder, string](
		func(ctx context.Context, tx store.Tx, cmd placeOrder) (string, error) {
			calls++
			return "ok", nil
		}))
	b := New(reg)

	results, err := b.Handle(context.Background(), memory.New().NewUnitOfWork(), placeOrder{CommandMeta: message.NewCommandMeta()})
	require.NoError(t, err)
	assert.Equal(t, []any{"ok"}, results)
	assert.Equal(t, 1, calls)
}

func TestUnknownEventHasNoSubscribers(t *testing.T) {
	reg := NewRegistry()
	MustRegisterCommand(reg, placeOrderHandler(orderPlaced{EventMeta: message.NewEventMeta()}))
	sink := &recordingSink{}
	b := New(reg, WithSink(sink))

	_, err := b.Handle(context.Background(), memory.New().NewUnitOfWork(), placeOrder{CommandMeta: message.NewCommandMeta()})
	require.NoError(t, err)
	assert.Len(t, sink.events, 1)
	assert.Empty(t, sink.errors)
}

// The command emits two events. The handler of one of them fails. The command
// result is still returned, the other handler still runs, and the failure is
// reported to the sink.
func TestEventHandlerFailureIsIsolated(t *testing.T) {
	reg := NewRegistry()
	placed := orderPlaced{EventMeta: message.NewEventMeta(), Item: "lamp"}
	reserved := stockReserved{EventMeta: message.NewEventMeta(), Item: "lamp"}
	MustRegisterCommand(reg, placeOrderHandler(placed, reserved))

	boom := errors.New("mailer down")
	MustSubscribeEvent(reg, "mailer", EventHandlerFunc[orderPlaced](
		func(context.Context, store.Tx, orderPlaced) error { return boom }))

	var ran []string
	MustSubscribeEvent(reg, "ledger", EventHandlerFunc[orderPlaced](
		func(context.Context, store.Tx, orderPlaced) error {
			ran = append(ran, "ledger")
			return nil
		}))
	MustSubscribeEvent(reg, "warehouse", EventHandlerFunc[stockReserved](
		func(context.Context, store.Tx, stockReserved) error {
			ran = append(ran, "warehouse")
			return nil
		}))

	sink := &recordingSink{}
	b := New(reg, WithSink(sink))

	results, err := b.Handle(context.Background(), memory.New().NewUnitOfWork(), placeOrder{CommandMeta: message.NewCommandMeta(), Item: "lamp"})
	require.NoError(t, err)
	assert.Equal(t, []any{"order:lamp"}, results)
	assert.Equal(t, []string{"ledger", "warehouse"}, ran)

	require.Len(t, sink.errors, 1)
	assert.ErrorIs(t, sink.errors[0], boom)
	assert.Equal(t, placed.Meta().MessageID, sink.failed[0].Meta().MessageID)
	assert.Len(t, sink.events, 2)
}

func TestEventsCascadeAcrossHops(t *testing.T) {
	reg := NewRegistry()
	MustRegisterCommand(reg, placeOrderHandler(orderPlaced{EventMeta: message.NewEventMeta(), Item: "desk"}))
	MustSubscribeEvent(reg, "reserve", EventHandlerFunc[orderPlaced](
		func(ctx context.Context, tx store.Tx, evt orderPlaced) error {
			tx.Publish(stockReserved{EventMeta: message.NewEventMeta(), Item: evt.Item})
			return nil
		}))

	var reservedItem string
	MustSubscribeEvent(reg, "notify", EventHandlerFunc[stockReserved](
		func(ctx context.Context, tx store.Tx, evt stockReserved) error {
			reservedItem = evt.Item
			return nil
		}))

	sink := &recordingSink{}
	b := New(reg, WithSink(sink))

	_, err := b.Handle(context.Background(), memory.New().NewUnitOfWork(), placeOrder{CommandMeta: message.NewCommandMeta()})
	require.NoError(t, err)
	assert.Equal(t, "desk", reservedItem)

	require.Len(t, sink.events, 2)
	assert.Equal(t, "order.placed", sink.events[0].Type())
	assert.Equal(t, "stock.reserved", sink.events[1].Type())
}

func TestCommandFailureAbortsAndDiscardsEvents(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("out of stock")
	MustRegisterCommand(reg, CommandHandlerFunc[placeOrder, string](
		func(ctx context.Context, tx store.Tx, cmd placeOrder) (string, error) {
			tx.Publish(orderPlaced{EventMeta: message.NewEventMeta()})
			return "", boom
		}))
	called := false
	MustSubscribeEvent(reg, "ledger", EventHandlerFunc[orderPlaced](
		func(context.Context, store.Tx, orderPlaced) error {
			called = true
			return nil
		}))

	sink := &recordingSink{}
	b := New(reg, WithSink(sink))

	results, err := b.Handle(context.Background(), memory.New().NewUnitOfWork(), placeOrder{CommandMeta: message.NewCommandMeta()})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, results)
	assert.False(t, called)
	assert.Empty(t, sink.events)
	require.Len(t, sink.errors, 1)
}

func TestPanickingEventHandlerIsIsolated(t *testing.T) {
	reg := NewRegistry()
	MustRegisterCommand(reg, placeOrderHandler(orderPlaced{EventMeta: message.NewEventMeta()}))
	MustSubscribeEvent(reg, "explode", EventHandlerFunc[orderPlaced](
		func(context.Context, store.Tx, orderPlaced) error { panic("kaboom") }))

	sink := &recordingSink{}
	b := New(reg, WithSink(sink))
	uow := memory.New().NewUnitOfWork()

	_, err := b.Handle(context.Background(), uow, placeOrder{CommandMeta: message.NewCommandMeta()})
	require.NoError(t, err)
	require.Len(t, sink.errors, 1)
	assert.ErrorIs(t, sink.errors[0], ErrHandlerPanic)

	_, err = b.Handle(context.Background(), uow, placeOrder{CommandMeta: message.NewCommandMeta()})
	assert.NoError(t, err, "unit of work is released after a panic")
}

func TestSinkFailureDoesNotFailCommand(t *testing.T) {
	reg := NewRegistry()
	MustRegisterCommand(reg, placeOrderHandler(orderPlaced{EventMeta: message.NewEventMeta()}))
	b := New(reg, WithSink(&recordingSink{err: errors.New("broker offline")}))

	results, err := b.Handle(context.Background(), memory.New().NewUnitOfWork(), placeOrder{CommandMeta: message.NewCommandMeta(), Item: "pen"})
	require.NoError(t, err)
	assert.Equal(t, []any{"order:pen"}, results)
}

func TestDispatchReturnsTypedResult(t *testing.T) {
	reg := NewRegistry()
	MustRegisterCommand(reg, placeOrderHandler())
	b := New(reg)
	uow := memory.New().NewUnitOfWork()

	got, err := Dispatch[string](context.Background(), b, uow, placeOrder{CommandMeta: message.NewCommandMeta(), Item: "cup"})
	require.NoError(t, err)
	assert.Equal(t, "order:cup", got)

	_, err = Dispatch[int](context.Background(), b, uow, placeOrder{CommandMeta: message.NewCommandMeta()})
	assert.ErrorIs(t, err, ErrUnexpectedResult)
}

func TestHandleRecordsSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	reg := NewRegistry()
	MustRegisterCommand(reg, placeOrderHandler(orderPlaced{EventMeta: message.NewEventMeta()}))
	MustSubscribeEvent(reg, "ledger", EventHandlerFunc[orderPlaced](
		func(context.Context, store.Tx, orderPlaced) error { return nil }))
	b := New(reg, WithTracerProvider(tp))

	_, err := b.Handle(context.Background(), memory.New().NewUnitOfWork(), placeOrder{CommandMeta: message.NewCommandMeta()})
	require.NoError(t, err)

	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	assert.ElementsMatch(t, []string{"command order.place", "event order.placed", "bus.handle"}, names)
}
