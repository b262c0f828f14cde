package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/researchflow/internal/metrics"
)

// MemoryBus is an in-process Bus implementation. Each session owns a replay
// ring and a set of subscriber channels; publishing is non-blocking and
// drops events for subscribers that cannot keep up.
type MemoryBus struct {
	config    Config
	collector *metrics.Collector
	logger    *zap.Logger
	mu        sync.RWMutex
	sessions  map[string]*memorySession
	closed    bool
}

type memorySession struct {
	mu       sync.Mutex
	replay   []Event
	subs     map[int]chan Event
	nextSub  int
	lastUsed time.Time
}

// NewMemoryBus creates an in-memory event bus.
func NewMemoryBus(config Config, logger *zap.Logger) *MemoryBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &MemoryBus{
		config:   config,
		logger:   logger.With(zap.String("component", "event_bus")),
		sessions: make(map[string]*memorySession),
	}
	if config.Retention > 0 {
		go b.reapLoop()
	}
	return b
}

// WithCollector attaches a metrics collector recording publishes and drops.
func (b *MemoryBus) WithCollector(c *metrics.Collector) *MemoryBus {
	b.collector = c
	return b
}

// Publish implements Bus.Publish.
func (b *MemoryBus) Publish(ctx context.Context, sessionID string, topic Topic, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	event := Event{
		Topic:     topic,
		Timestamp: time.Now().UTC(),
		Payload:   data,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("bus closed")
	}
	sess := b.session(sessionID)
	b.mu.Unlock()

	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.lastUsed = time.Now()

	if b.config.ReplayBuffer > 0 {
		sess.replay = append(sess.replay, event)
		if len(sess.replay) > b.config.ReplayBuffer {
			sess.replay = sess.replay[len(sess.replay)-b.config.ReplayBuffer:]
		}
	}

	for id, ch := range sess.subs {
		select {
		case ch <- event:
		default:
			// Slow subscriber; dropping is preferable to blocking the run.
			if b.collector != nil {
				b.collector.RecordEventDropped(string(topic))
			}
			b.logger.Warn("dropping event for slow subscriber",
				zap.String("session_id", sessionID),
				zap.String("topic", string(topic)),
				zap.Int("subscriber", id),
			)
		}
	}

	if b.collector != nil {
		b.collector.RecordEventPublished(string(topic))
	}
	return nil
}

// Subscribe implements Bus.Subscribe. The replay buffer (when configured) is
// delivered into the subscriber channel before any new events.
func (b *MemoryBus) Subscribe(ctx context.Context, sessionID string) (<-chan Event, func(), error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, nil, fmt.Errorf("bus closed")
	}
	sess := b.session(sessionID)
	b.mu.Unlock()

	buffer := b.config.SubscriberBuffer
	if buffer <= 0 {
		buffer = 256
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	// Size for replay so history never drops on attach.
	ch := make(chan Event, buffer+len(sess.replay))
	for _, e := range sess.replay {
		ch <- e
	}

	id := sess.nextSub
	sess.nextSub++
	sess.subs[id] = ch
	sess.lastUsed = time.Now()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			sess.mu.Lock()
			delete(sess.subs, id)
			sess.mu.Unlock()
			close(ch)
		})
	}

	return ch, cancel, nil
}

// Close implements Bus.Close.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, sess := range b.sessions {
		sess.mu.Lock()
		for id, ch := range sess.subs {
			delete(sess.subs, id)
			close(ch)
		}
		sess.mu.Unlock()
	}
	b.sessions = make(map[string]*memorySession)

	return nil
}

// session returns the channel state for sessionID, creating it if absent.
// Caller must hold b.mu.
func (b *MemoryBus) session(sessionID string) *memorySession {
	sess, ok := b.sessions[sessionID]
	if !ok {
		sess = &memorySession{
			subs:     make(map[int]chan Event),
			lastUsed: time.Now(),
		}
		b.sessions[sessionID] = sess
	}
	return sess
}

// reapLoop reclaims idle sessions past the retention window.
func (b *MemoryBus) reapLoop() {
	interval := b.config.Retention / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return
		}
		cutoff := time.Now().Add(-b.config.Retention)
		for id, sess := range b.sessions {
			sess.mu.Lock()
			idle := len(sess.subs) == 0 && sess.lastUsed.Before(cutoff)
			sess.mu.Unlock()
			if idle {
				delete(b.sessions, id)
			}
		}
		b.mu.Unlock()
	}
}
