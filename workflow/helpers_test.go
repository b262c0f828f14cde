package workflow

import (
	"context"
	"errors"
	"sync"

	"github.com/BaSui01/researchflow/events"
)

// recordingBus captures published events for assertions.
type recordingBus struct {
	mu       sync.Mutex
	records  []busRecord
	failWith error
}

type busRecord struct {
	sessionID string
	topic     events.Topic
	payload   any
}

func (b *recordingBus) Publish(_ context.Context, sessionID string, topic events.Topic, payload any) error {
	if b.failWith != nil {
		return b.failWith
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, busRecord{sessionID: sessionID, topic: topic, payload: payload})
	return nil
}

func (b *recordingBus) Subscribe(context.Context, string) (<-chan events.Event, func(), error) {
	return nil, nil, errors.New("recordingBus does not support subscribe")
}

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) byTopic(topic events.Topic) []busRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []busRecord
	for _, r := range b.records {
		if r.topic == topic {
			out = append(out, r)
		}
	}
	return out
}

func (b *recordingBus) topics() []events.Topic {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]events.Topic, 0, len(b.records))
	for _, r := range b.records {
		out = append(out, r.topic)
	}
	return out
}
