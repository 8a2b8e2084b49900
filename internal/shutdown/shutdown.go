// Package shutdown stops the resque processes cleanly. A Coordinator runs the
// long-lived tasks of a process, waits for SIGINT/SIGTERM or the first task
// failure, then stops registered components last-registered first.
package shutdown

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds the whole shutdown sequence.
const DefaultTimeout = 30 * time.Second

// Component is something that must be stopped before the process exits.
type Component interface {
	Name() string
	// Shutdown stops the component within ctx's deadline.
	Shutdown(ctx context.Context) error
}

// Task is a long-lived process task such as an HTTP server's serve loop. It
// returns when its work is stopped or ctx is done.
type Task func(ctx context.Context) error

// Coordinator owns the shutdown sequence of one process.
type Coordinator struct {
	timeout time.Duration
	logger  *slog.Logger
	signals chan os.Signal

	mu         sync.Mutex
	components []Component

	once     sync.Once
	done     chan struct{}
	exitCode int
	err      error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout bounds the shutdown sequence.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSignalChannel replaces OS signal delivery, for tests.
func WithSignalChannel(ch chan os.Signal) Option {
	return func(c *Coordinator) { c.signals = ch }
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a component. Register dependencies first: the last
// registered component is stopped first.
func (c *Coordinator) Register(comp Component) {
	c.mu.Lock()
	c.components = append(c.components, comp)
	c.mu.Unlock()
	c.logger.Debug("registered shutdown component", "name", comp.Name())
}

// Run starts tasks and blocks until a signal arrives, ctx is done or a task
// fails, then shuts down. It returns the first task error.
func (c *Coordinator) Run(ctx context.Context, tasks ...Task) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		g.Go(func() error { return task(gctx) })
	}
	g.Go(func() error {
		c.WaitForSignal(gctx)
		return nil
	})

	err := g.Wait()
	c.Shutdown()
	return err
}

// WaitForSignal blocks until SIGINT/SIGTERM or ctx is done, then shuts down.
func (c *Coordinator) WaitForSignal(ctx context.Context) {
	sigs := c.signals
	if sigs == nil {
		sigs = make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigs)
	}

	select {
	case sig := <-sigs:
		c.logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		c.logger.Info("context done, shutting down", "cause", context.Cause(ctx))
	}
	c.Shutdown()
}

// Shutdown stops every component once, in reverse registration order. After
// the deadline the remaining components are skipped and the exit code is 1.
func (c *Coordinator) Shutdown() {
	c.once.Do(func() {
		defer close(c.done)
		c.logger.Info("initiating graceful shutdown", "timeout", c.timeout)

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		c.mu.Lock()
		comps := append([]Component(nil), c.components...)
		c.mu.Unlock()

		var errs []error
		for i := len(comps) - 1; i >= 0; i-- {
			comp := comps[i]
			if ctx.Err() != nil {
				c.logger.Warn("shutdown deadline passed, skipping component", "name", comp.Name())
				c.exitCode = 1
				continue
			}
			if err := comp.Shutdown(ctx); err != nil {
				c.logger.Error("component shutdown failed", "name", comp.Name(), "error", err)
				errs = append(errs, err)
				if errors.Is(err, context.DeadlineExceeded) {
					c.exitCode = 1
				}
				continue
			}
			c.logger.Info("component stopped", "name", comp.Name())
		}
		c.err = errors.Join(errs...)
	})
}

// Wait blocks until shutdown has finished.
func (c *Coordinator) Wait() { <-c.done }

// Err returns the joined component errors once shutdown has finished.
func (c *Coordinator) Err() error {
	c.Wait()
	return c.err
}

// ExitCode is 0 after a clean shutdown and 1 when the deadline forced it.
func (c *Coordinator) ExitCode() int {
	c.Wait()
	return c.exitCode
}
