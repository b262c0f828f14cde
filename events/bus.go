package events

import (
	"context"
	"time"
)

// Bus is a session-scoped, topic-typed publish mechanism. Delivery is
// at-least-once and ordered per publisher per session; there is no ordering
// guarantee across sessions. A subscriber that attaches late receives the
// bounded replay buffer (when configured) plus everything published after
// attachment.
type Bus interface {
	// Publish marshals payload and delivers it to every subscriber of the
	// session. Publish must not block on slow subscribers.
	Publish(ctx context.Context, sessionID string, topic Topic, payload any) error

	// Subscribe attaches to a session channel. The returned cancel function
	// detaches the subscriber and closes the channel.
	Subscribe(ctx context.Context, sessionID string) (<-chan Event, func(), error)

	// Close shuts down the bus and closes all subscriber channels.
	Close() error
}

// Config configures bus buffering and replay behavior.
type Config struct {
	// SubscriberBuffer is the per-subscriber channel capacity. Events to a
	// subscriber whose buffer is full are dropped (at-least-once overall,
	// never backpressure into the workflow).
	SubscriberBuffer int `yaml:"subscriber_buffer" json:"subscriber_buffer"`

	// ReplayBuffer is how many recent events per session are retained for
	// late subscribers. Zero disables replay.
	ReplayBuffer int `yaml:"replay_buffer" json:"replay_buffer"`

	// Retention bounds how long an idle session channel (and its replay
	// buffer) is kept before being reclaimed.
	Retention time.Duration `yaml:"retention" json:"retention"`
}

// DefaultConfig returns bus defaults sized for browser dashboards.
func DefaultConfig() Config {
	return Config{
		SubscriberBuffer: 256,
		ReplayBuffer:     512,
		Retention:        10 * time.Minute,
	}
}
