package shutdown

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orderLog struct {
	mu    sync.Mutex
	names []string
}

func (l *orderLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names = append(l.names, name)
}

func recorder(log *orderLog, name string, err error) Component {
	return NewFuncComponent(name, func(context.Context) error {
		log.add(name)
		return err
	})
}

// **Feature: resque-shutdown, Property 1: Reverse registration order**
// *For any* number of registered components, shutdown visits each exactly
// once, last registered first.
func TestPropertyShutdownReverseOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("components stop in LIFO order", prop.ForAll(
		func(n int) bool {
			log := &orderLog{}
			c := NewCoordinator(WithTimeout(time.Second))
			var want []string
			for i := range n {
				name := string(rune('a' + i))
				c.Register(recorder(log, name, nil))
				want = append([]string{name}, want...)
			}
			c.Shutdown()
			c.Shutdown()
			if c.ExitCode() != 0 || c.Err() != nil || len(log.names) != n {
				return false
			}
			for i := range want {
				if log.names[i] != want[i] {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 8),
	))

	properties.TestingRun(t)
}

func TestShutdownCollectsErrorsAndContinues(t *testing.T) {
	log := &orderLog{}
	boom := errors.New("close failed")
	c := NewCoordinator()
	c.Register(recorder(log, "store", nil))
	c.Register(recorder(log, "redis", boom))
	c.Register(recorder(log, "http", nil))

	c.Shutdown()
	assert.Equal(t, []string{"http", "redis", "store"}, log.names)
	assert.ErrorIs(t, c.Err(), boom)
	assert.Equal(t, 0, c.ExitCode())
}

func TestShutdownTimeoutSkipsRemainingComponents(t *testing.T) {
	log := &orderLog{}
	c := NewCoordinator(WithTimeout(20 * time.Millisecond))
	c.Register(recorder(log, "store", nil))
	c.Register(NewFuncComponent("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	c.Shutdown()
	assert.Equal(t, 1, c.ExitCode())
	assert.Empty(t, log.names, "components after the deadline are skipped")
}

func TestWaitForSignal(t *testing.T) {
	sigCh := make(chan os.Signal, 1)
	log := &orderLog{}
	c := NewCoordinator(WithSignalChannel(sigCh))
	c.Register(recorder(log, "relay", nil))

	go c.WaitForSignal(context.Background())
	sigCh <- os.Interrupt
	c.Wait()
	assert.Equal(t, []string{"relay"}, log.names)
}

func TestWaitForSignalStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := NewCoordinator(WithSignalChannel(make(chan os.Signal)))
	go c.WaitForSignal(ctx)
	cancel()
	c.Wait()
	assert.Equal(t, 0, c.ExitCode())
}

type blockingWorker struct{ release chan struct{} }

func (w blockingWorker) Stop() { <-w.release }

func TestWorkerComponentRespectsDeadline(t *testing.T) {
	w := blockingWorker{release: make(chan struct{})}
	defer close(w.release)
	comp := NewWorkerComponent("relay", w)
	assert.Equal(t, "relay", comp.Name())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, comp.Shutdown(ctx), context.DeadlineExceeded)
}

func TestHTTPServerComponentWaitsForInFlightRequest(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusNoContent)
	}))
	srv.Start()

	result := make(chan int, 1)
	go func() {
		resp, err := http.Get(srv.URL)
		if err != nil {
			result <- 0
			return
		}
		resp.Body.Close()
		result <- resp.StatusCode
	}()
	<-started

	comp := NewHTTPServerComponent("http", srv.Config)
	require.NoError(t, comp.Shutdown(context.Background()))
	assert.Equal(t, http.StatusNoContent, <-result)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestCloserComponent(t *testing.T) {
	closed := false
	comp := NewCloserComponent("store", closerFunc(func() error { closed = true; return nil }))
	require.NoError(t, comp.Shutdown(context.Background()))
	assert.True(t, closed)
}

func TestRunStopsComponentsOnSignal(t *testing.T) {
	sigs := make(chan os.Signal, 1)
	log := &orderLog{}
	c := NewCoordinator(WithSignalChannel(sigs))

	stop := make(chan struct{})
	c.Register(NewFuncComponent("server", func(context.Context) error {
		log.add("server")
		close(stop)
		return nil
	}))

	sigs <- os.Interrupt
	err := c.Run(context.Background(), func(ctx context.Context) error {
		<-stop
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"server"}, log.names)
	assert.Equal(t, 0, c.ExitCode())
}

func TestRunReturnsFirstTaskError(t *testing.T) {
	boom := errors.New("listen failed")
	log := &orderLog{}
	c := NewCoordinator(WithSignalChannel(make(chan os.Signal)))
	c.Register(recorder(log, "store", nil))

	err := c.Run(context.Background(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"store"}, log.names)
}
