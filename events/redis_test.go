package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/researchflow/internal/metrics"
)

func newTestRedisBus(t *testing.T) *RedisBus {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	bus, err := NewRedisBus(client, DefaultConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { bus.Close() })

	return bus
}

func TestRedisBus_PublishSubscribe(t *testing.T) {
	bus := newTestRedisBus(t)

	ch, cancel, err := bus.Subscribe(context.Background(), "s1")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, bus.Publish(context.Background(), "s1", TopicAgentUpdate, AgentUpdate{
		Agent:  "analyst",
		Status: AgentStarting,
	}))

	events := collectEvents(t, ch, 1)
	assert.Equal(t, TopicAgentUpdate, events[0].Topic)

	var u AgentUpdate
	require.NoError(t, json.Unmarshal(events[0].Payload, &u))
	assert.Equal(t, "analyst", u.Agent)
	assert.Equal(t, AgentStarting, u.Status)
}

func TestRedisBus_LateSubscriberReplay(t *testing.T) {
	bus := newTestRedisBus(t)

	require.NoError(t, bus.Publish(context.Background(), "s1", TopicProgress, ProgressUpdate{Step: "one"}))
	require.NoError(t, bus.Publish(context.Background(), "s1", TopicProgress, ProgressUpdate{Step: "two"}))

	ch, cancel, err := bus.Subscribe(context.Background(), "s1")
	require.NoError(t, err)
	defer cancel()

	events := collectEvents(t, ch, 2)
	var first, second ProgressUpdate
	require.NoError(t, json.Unmarshal(events[0].Payload, &first))
	require.NoError(t, json.Unmarshal(events[1].Payload, &second))
	assert.Equal(t, "one", first.Step)
	assert.Equal(t, "two", second.Step)
}

func TestRedisBus_SessionIsolation(t *testing.T) {
	bus := newTestRedisBus(t)

	ch2, cancel, err := bus.Subscribe(context.Background(), "s2")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, bus.Publish(context.Background(), "s1", TopicProgress, ProgressUpdate{Step: "a"}))

	select {
	case e := <-ch2:
		t.Fatalf("session s2 received event for s1: %v", e.Topic)
	default:
	}
}

func TestRedisBus_ClosedRejectsSubscribe(t *testing.T) {
	bus := newTestRedisBus(t)
	require.NoError(t, bus.Close())

	_, _, err := bus.Subscribe(context.Background(), "s1")
	assert.Error(t, err)
}

func TestRedisBus_RecordsPublishMetric(t *testing.T) {
	bus := newTestRedisBus(t)

	reg := prometheus.NewRegistry()
	bus.WithCollector(metrics.NewCollector("test", reg))

	require.NoError(t, bus.Publish(context.Background(), "s1", TopicProgress, ProgressUpdate{Step: "a"}))

	count, err := testutil.GatherAndCount(reg, "test_events_published_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
