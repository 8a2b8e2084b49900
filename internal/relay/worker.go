// Package relay moves envelopes from the outbox to the external broker.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/narvanalabs/resque/internal/message"
	"github.com/narvanalabs/resque/internal/queue"
)

// Publisher delivers one envelope to the broker.
type Publisher interface {
	Publish(ctx context.Context, env *message.Envelope) error
}

// WorkerConfig holds configuration for the relay worker.
type WorkerConfig struct {
	Concurrency int
	// MaxAttempts is the number of failed deliveries after which an envelope
	// is dead-lettered.
	MaxAttempts  int
	PollInterval time.Duration
	ErrorBackoff time.Duration
}

// DefaultWorkerConfig returns a WorkerConfig with sensible defaults.
func DefaultWorkerConfig() *WorkerConfig {
	return &WorkerConfig{
		Concurrency:  2,
		MaxAttempts:  5,
		PollInterval: time.Second,
		ErrorBackoff: 5 * time.Second,
	}
}

// Worker drains the outbox.
type Worker struct {
	queue     queue.Queue
	publisher Publisher
	cfg       WorkerConfig
	logger    *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWorker creates a relay worker. A nil cfg uses DefaultWorkerConfig.
func NewWorker(cfg *WorkerConfig, q queue.Queue, p Publisher, logger *slog.Logger) (*Worker, error) {
	if q == nil || p == nil {
		return nil, errors.New("relay requires a queue and a publisher")
	}
	if cfg == nil {
		cfg = DefaultWorkerConfig()
	}
	if cfg.Concurrency < 1 || cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("invalid relay config: concurrency %d, max attempts %d", cfg.Concurrency, cfg.MaxAttempts)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		queue:     q,
		publisher: p,
		cfg:       *cfg,
		logger:    logger.With("component", "relay"),
		stopCh:    make(chan struct{}),
	}, nil
}

// Start spawns the worker goroutines.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("starting relay worker", "concurrency", w.cfg.Concurrency)

	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.loop(ctx, i)
	}
	return nil
}

// Stop signals the goroutines and waits for in-flight deliveries.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("stopping relay worker")
		close(w.stopCh)
	})
	w.wg.Wait()
}

func (w *Worker) loop(ctx context.Context, workerID int) {
	defer w.wg.Done()

	logger := w.logger.With("worker_id", workerID)
	logger.Debug("worker started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
		}

		_, err := w.ProcessOne(ctx)
		switch {
		case err == nil:
		case errors.Is(err, queue.ErrEmpty):
			w.pause(ctx, w.cfg.PollInterval)
		case ctx.Err() != nil:
			return
		default:
			logger.Error("relay iteration failed", "error", err)
			w.pause(ctx, w.cfg.ErrorBackoff)
		}
	}
}

func (w *Worker) pause(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-w.stopCh:
	case <-t.C:
	}
}

// ProcessOne delivers the oldest pending envelope. It reports whether the
// envelope reached the broker. A delivery failure is not an error: the
// envelope is returned to the outbox, or dead-lettered after MaxAttempts.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	entry, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	env := entry.Envelope

	pubErr := w.publisher.Publish(ctx, env)
	if pubErr == nil {
		if err := w.queue.Ack(ctx, env.ID); err != nil {
			return true, fmt.Errorf("ack %s: %w", env.ID, err)
		}
		w.logger.Debug("relayed envelope", "message_id", env.ID, "type", env.Type)
		return true, nil
	}

	attempts := entry.Attempts + 1
	if attempts >= w.cfg.MaxAttempts {
		if err := w.queue.DeadLetter(ctx, env.ID, pubErr.Error()); err != nil {
			return false, fmt.Errorf("dead-letter %s: %w", env.ID, err)
		}
		return false, nil
	}

	w.logger.Warn("relay delivery failed",
		"message_id", env.ID,
		"attempts", attempts,
		"error", pubErr,
	)
	if err := w.queue.Nack(ctx, env.ID); err != nil {
		return false, fmt.Errorf("nack %s: %w", env.ID, err)
	}
	return false, nil
}
