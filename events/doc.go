// Package events implements the session-scoped, topic-typed event bus that
// exposes workflow progress to external observers.
//
// Delivery is at-least-once and ordered per publisher within a session.
// Publishing never blocks on slow subscribers: events are dropped for a
// subscriber whose buffer is full. Late subscribers receive a bounded
// replay of recent events when the bus is configured with a replay buffer.
//
// Two implementations are provided: MemoryBus for single-process
// deployments and tests, and RedisBus (pub/sub plus an expiring history
// list) for multi-process deployments.
package events
