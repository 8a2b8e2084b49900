package shutdown

import (
	"context"
	"io"
	"net/http"
)

// HTTPServerComponent stops an http.Server from accepting connections and
// waits for in-flight requests.
type HTTPServerComponent struct {
	name   string
	server *http.Server
}

// NewHTTPServerComponent creates a new HTTP server shutdown component.
func NewHTTPServerComponent(name string, server *http.Server) *HTTPServerComponent {
	return &HTTPServerComponent{name: name, server: server}
}

func (c *HTTPServerComponent) Name() string { return c.name }

func (c *HTTPServerComponent) Shutdown(ctx context.Context) error {
	return c.server.Shutdown(ctx)
}

// CloserComponent wraps an io.Closer such as the store or the Redis client.
type CloserComponent struct {
	name   string
	closer io.Closer
}

// NewCloserComponent creates a new closer shutdown component.
func NewCloserComponent(name string, closer io.Closer) *CloserComponent {
	return &CloserComponent{name: name, closer: closer}
}

func (c *CloserComponent) Name() string { return c.name }

func (c *CloserComponent) Shutdown(context.Context) error {
	return c.closer.Close()
}

// FuncComponent wraps a shutdown function, e.g. a tracer provider flush.
type FuncComponent struct {
	name string
	fn   func(ctx context.Context) error
}

// NewFuncComponent creates a new function-based shutdown component.
func NewFuncComponent(name string, fn func(ctx context.Context) error) *FuncComponent {
	return &FuncComponent{name: name, fn: fn}
}

func (c *FuncComponent) Name() string { return c.name }

func (c *FuncComponent) Shutdown(ctx context.Context) error {
	return c.fn(ctx)
}

// Stopper is implemented by background workers such as the outbox relay.
type Stopper interface {
	Stop()
}

// WorkerComponent stops a worker and waits for its in-flight deliveries.
type WorkerComponent struct {
	name   string
	worker Stopper
}

// NewWorkerComponent creates a new worker shutdown component.
func NewWorkerComponent(name string, worker Stopper) *WorkerComponent {
	return &WorkerComponent{name: name, worker: worker}
}

func (c *WorkerComponent) Name() string { return c.name }

// Shutdown returns ctx.Err if the worker does not stop in time.
func (c *WorkerComponent) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.worker.Stop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
