package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/researchflow/internal/metrics"
)

// RedisBus is a Bus implementation backed by Redis pub/sub, for deployments
// where the workflow engine and the subscriber-facing frontend run in
// separate processes. Replay history is kept in a bounded, expiring list per
// session.
type RedisBus struct {
	client    *redis.Client
	config    Config
	prefix    string
	collector *metrics.Collector
	logger    *zap.Logger
	mu        sync.Mutex
	closed    bool
}

// NewRedisBus creates a Redis-backed event bus. It verifies connectivity
// before returning.
func NewRedisBus(client *redis.Client, config Config, logger *zap.Logger) (*RedisBus, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisBus{
		client: client,
		config: config,
		prefix: "researchflow:events:",
		logger: logger.With(zap.String("component", "redis_event_bus")),
	}, nil
}

// WithCollector attaches a metrics collector recording publishes and drops.
func (b *RedisBus) WithCollector(c *metrics.Collector) *RedisBus {
	b.collector = c
	return b
}

func (b *RedisBus) channelKey(sessionID string) string {
	return b.prefix + "ch:" + sessionID
}

func (b *RedisBus) replayKey(sessionID string) string {
	return b.prefix + "replay:" + sessionID
}

// Publish implements Bus.Publish. The event goes to the pub/sub channel and,
// when replay is enabled, to the session's history list in one pipeline.
func (b *RedisBus) Publish(ctx context.Context, sessionID string, topic Topic, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	event := Event{
		Topic:     topic,
		Timestamp: time.Now().UTC(),
		Payload:   data,
	}

	wire, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pipe := b.client.Pipeline()
	pipe.Publish(ctx, b.channelKey(sessionID), wire)
	if b.config.ReplayBuffer > 0 {
		replayKey := b.replayKey(sessionID)
		pipe.RPush(ctx, replayKey, wire)
		pipe.LTrim(ctx, replayKey, int64(-b.config.ReplayBuffer), -1)
		if b.config.Retention > 0 {
			pipe.Expire(ctx, replayKey, b.config.Retention)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	if b.collector != nil {
		b.collector.RecordEventPublished(string(topic))
	}
	return nil
}

// Subscribe implements Bus.Subscribe. Replayed history is delivered first;
// any events that raced in via pub/sub while replaying may duplicate
// (at-least-once contract; subscribers must tolerate duplicates).
func (b *RedisBus) Subscribe(ctx context.Context, sessionID string) (<-chan Event, func(), error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, nil, fmt.Errorf("bus closed")
	}
	b.mu.Unlock()

	sub := b.client.Subscribe(ctx, b.channelKey(sessionID))
	// Force the subscription to be established before we read replay,
	// otherwise events between LRange and subscribe would be lost.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, nil, fmt.Errorf("subscribe: %w", err)
	}

	buffer := b.config.SubscriberBuffer
	if buffer <= 0 {
		buffer = 256
	}

	var history []Event
	if b.config.ReplayBuffer > 0 {
		raw, err := b.client.LRange(ctx, b.replayKey(sessionID), 0, -1).Result()
		if err != nil && err != redis.Nil {
			b.logger.Warn("failed to load replay history",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		}
		for _, item := range raw {
			var e Event
			if err := json.Unmarshal([]byte(item), &e); err != nil {
				continue
			}
			history = append(history, e)
		}
	}

	out := make(chan Event, buffer+len(history))
	for _, e := range history {
		out <- e
	}

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			sub.Close()
		})
	}

	go func() {
		defer close(out)
		msgCh := sub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					b.logger.Warn("malformed event on channel",
						zap.String("session_id", sessionID),
						zap.Error(err),
					)
					continue
				}
				select {
				case out <- e:
				default:
					if b.collector != nil {
						b.collector.RecordEventDropped(string(e.Topic))
					}
					b.logger.Warn("dropping event for slow subscriber",
						zap.String("session_id", sessionID),
						zap.String("topic", string(e.Topic)),
					)
				}
			}
		}
	}()

	return out, cancel, nil
}

// Close implements Bus.Close. The Redis client itself is owned by the
// caller and is not closed here.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
