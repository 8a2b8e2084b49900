package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/narvanalabs/resque/internal/message"
	"github.com/narvanalabs/resque/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyPublisher struct {
	mu        sync.Mutex
	failures  int
	delivered []uuid.UUID
}

func (p *flakyPublisher) Publish(_ context.Context, env *message.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unavailable")
	}
	p.delivered = append(p.delivered, env.ID)
	return nil
}

func (p *flakyPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.delivered)
}

func envelope() *message.Envelope {
	return &message.Envelope{ID: uuid.New(), Kind: message.KindEvent, Type: "requirement.created"}
}

func newWorker(t *testing.T, q queue.Queue, p Publisher, maxAttempts int) *Worker {
	t.Helper()
	w, err := NewWorker(&WorkerConfig{
		Concurrency:  1,
		MaxAttempts:  maxAttempts,
		PollInterval: 10 * time.Millisecond,
		ErrorBackoff: 10 * time.Millisecond,
	}, q, p, nil)
	require.NoError(t, err)
	return w
}

func TestNewWorkerValidatesConfig(t *testing.T) {
	_, err := NewWorker(nil, nil, &flakyPublisher{}, nil)
	assert.Error(t, err)
	_, err = NewWorker(&WorkerConfig{Concurrency: 0, MaxAttempts: 1}, queue.NewMemory(), &flakyPublisher{}, nil)
	assert.Error(t, err)
	w, err := NewWorker(nil, queue.NewMemory(), &flakyPublisher{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultWorkerConfig().MaxAttempts, w.cfg.MaxAttempts)
}

func TestProcessOneRetriesThenDelivers(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory()
	env := envelope()
	require.NoError(t, q.Enqueue(ctx, env))
	p := &flakyPublisher{failures: 2}
	w := newWorker(t, q, p, 5)

	for range 2 {
		ok, err := w.ProcessOne(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	ok, err := w.ProcessOne(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []uuid.UUID{env.ID}, p.delivered)

	_, err = w.ProcessOne(ctx)
	assert.ErrorIs(t, err, queue.ErrEmpty)
}

func TestProcessOneDeadLettersAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory()
	env := envelope()
	require.NoError(t, q.Enqueue(ctx, env))
	w := newWorker(t, q, &flakyPublisher{failures: 10}, 3)

	for range 3 {
		_, err := w.ProcessOne(ctx)
		require.NoError(t, err)
	}
	require.Len(t, q.Dead(), 1)
	assert.Equal(t, env.ID, q.Dead()[0].ID)
	assert.Zero(t, q.Len())
}

func TestWorkerDrainsQueueUntilStopped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := queue.NewMemory()
	for range 5 {
		require.NoError(t, q.Enqueue(ctx, envelope()))
	}
	p := &flakyPublisher{failures: 1}
	w := newWorker(t, q, p, 3)

	require.NoError(t, w.Start(ctx))
	assert.Eventually(t, func() bool { return p.count() == 5 }, 2*time.Second, 10*time.Millisecond)
	w.Stop()
	w.Stop()
	assert.Zero(t, q.Len())
}
