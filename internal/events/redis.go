package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/narvanalabs/resque/internal/bus"
	"github.com/narvanalabs/resque/internal/message"
)

// DefaultChannelPrefix prefixes every Redis channel the publisher writes to.
const DefaultChannelPrefix = "resque"

// RedisPublisher publishes envelopes to Redis pub/sub channels named
// "<prefix>.<kind>.<type>".
type RedisPublisher struct {
	rdb    *goredis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisPublisher connects to addr and verifies the connection.
func NewRedisPublisher(ctx context.Context, addr, prefix string, logger *slog.Logger) (*RedisPublisher, error) {
	if addr == "" {
		return nil, errors.New("redis address required")
	}
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisPublisher{
		rdb:    rdb,
		prefix: prefix,
		logger: logger.With("component", "redis_publisher"),
	}, nil
}

var _ bus.Sink = (*RedisPublisher)(nil)

// Publish writes env to its channel.
func (p *RedisPublisher) Publish(ctx context.Context, env *message.Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}
	if err := p.rdb.Publish(ctx, env.Channel(p.prefix), raw).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", env.Type, err)
	}
	return nil
}

// PublishEvent implements bus.Sink.
func (p *RedisPublisher) PublishEvent(ctx context.Context, evt message.Event) error {
	env, err := message.NewEventEnvelope(evt)
	if err != nil {
		return err
	}
	return p.Publish(ctx, env)
}

// PublishError implements bus.Sink.
func (p *RedisPublisher) PublishError(ctx context.Context, msg message.Message, cause error) error {
	env, err := message.NewErrorEnvelope(msg, cause)
	if err != nil {
		return err
	}
	return p.Publish(ctx, env)
}

// Forward subscribes to every channel under the prefix and calls onMsg for
// each envelope until ctx is cancelled. It returns once the subscription is
// confirmed.
func (p *RedisPublisher) Forward(ctx context.Context, onMsg func(*message.Envelope)) error {
	if onMsg == nil {
		return errors.New("onMsg callback required")
	}

	sub := p.rdb.PSubscribe(ctx, p.prefix+".*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var env message.Envelope
				if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
					p.logger.Warn("bad redis envelope payload", "channel", m.Channel, "error", err)
					continue
				}
				onMsg(&env)
			}
		}
	}()

	return nil
}

// Ping checks the connection.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (p *RedisPublisher) Close() error {
	if p == nil || p.rdb == nil {
		return nil
	}
	return p.rdb.Close()
}
