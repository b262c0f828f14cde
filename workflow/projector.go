package workflow

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/researchflow/events"
	"github.com/BaSui01/researchflow/types"
)

// Projector maps internal lifecycle transitions onto the event bus's typed
// topics, scoped by session. Every transition has exactly one event shape,
// so dashboards can reconstruct run history purely from the stream.
//
// Projector methods never fail: losing an observability event must not
// abort the workflow, so publish errors are logged and swallowed.
type Projector struct {
	bus    events.Bus
	logger *zap.Logger
}

// NewProjector creates a projector over bus.
func NewProjector(bus events.Bus, logger *zap.Logger) *Projector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{
		bus:    bus,
		logger: logger.With(zap.String("component", "progress_projector")),
	}
}

func (p *Projector) publish(ctx context.Context, sessionID string, topic events.Topic, payload any) {
	if err := p.bus.Publish(ctx, sessionID, topic, payload); err != nil {
		p.logger.Warn("failed to publish event",
			zap.String("session_id", sessionID),
			zap.String("topic", string(topic)),
			zap.Error(err),
		)
	}
}

// Progress projects a step status transition.
func (p *Projector) Progress(ctx context.Context, sessionID, step string, status events.StepStatus, message string, attempt int, metadata map[string]any) {
	p.publish(ctx, sessionID, events.TopicProgress, events.ProgressUpdate{
		Step:      step,
		Status:    status,
		Message:   message,
		Attempt:   attempt,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	})
}

// SourceResult projects one source's fetch outcome.
func (p *Projector) SourceResult(ctx context.Context, sessionID, source string, count int, fetchErr error) {
	payload := events.SourceResult{
		Source:    source,
		Success:   fetchErr == nil,
		Count:     count,
		Timestamp: time.Now().UTC(),
	}
	if fetchErr != nil {
		payload.Error = fetchErr.Error()
	}
	p.publish(ctx, sessionID, events.TopicSourceResult, payload)
}

// Contexts projects the ranked context set.
func (p *Projector) Contexts(ctx context.Context, sessionID string, totalFound int, top []types.ContextItem) {
	p.publish(ctx, sessionID, events.TopicContexts, events.ContextsUpdate{
		TotalFound:  totalFound,
		TopContexts: top,
		Timestamp:   time.Now().UTC(),
	})
}

// Chunk projects one streamed synthesis fragment. Fire-and-forget.
func (p *Projector) Chunk(ctx context.Context, sessionID, chunk string) {
	p.publish(ctx, sessionID, events.TopicAIChunk, events.AIChunk{
		Chunk:     chunk,
		Timestamp: time.Now().UTC(),
	})
}

// StreamComplete projects the synthesis end-of-stream marker.
func (p *Projector) StreamComplete(ctx context.Context, sessionID string) {
	p.publish(ctx, sessionID, events.TopicAIChunk, events.AIChunk{
		IsComplete: true,
		Timestamp:  time.Now().UTC(),
	})
}

// AgentUpdate projects one agent task status transition.
func (p *Projector) AgentUpdate(ctx context.Context, sessionID, agent string, status events.AgentStatus, message string, duration time.Duration, retryCount int) {
	p.publish(ctx, sessionID, events.TopicAgentUpdate, events.AgentUpdate{
		Agent:      agent,
		Status:     status,
		Message:    message,
		Timestamp:  time.Now().UTC(),
		DurationMs: duration.Milliseconds(),
		RetryCount: retryCount,
	})
}

// AgentChunk projects one streamed agent fragment. Fire-and-forget.
func (p *Projector) AgentChunk(ctx context.Context, sessionID, agent, chunk string, isComplete bool) {
	p.publish(ctx, sessionID, events.TopicAgentChunk, events.AgentChunk{
		Agent:      agent,
		Chunk:      chunk,
		IsComplete: isComplete,
		Timestamp:  time.Now().UTC(),
	})
}

// AgentResult projects one agent's consolidated response.
func (p *Projector) AgentResult(ctx context.Context, sessionID, agent, response, model string, duration time.Duration) {
	p.publish(ctx, sessionID, events.TopicAgentResult, events.AgentResult{
		Agent:      agent,
		Response:   response,
		Model:      model,
		Timestamp:  time.Now().UTC(),
		DurationMs: duration.Milliseconds(),
	})
}

// Result projects the single final result of a successful or degraded run.
func (p *Projector) Result(ctx context.Context, sessionID string, result events.FinalResult) {
	result.Timestamp = time.Now().UTC()
	p.publish(ctx, sessionID, events.TopicResult, result)
}

// Error projects an error notification. Recoverable errors announce an
// automatic retry; unrecoverable ones are the run's terminal event.
func (p *Projector) Error(ctx context.Context, sessionID, step, message string, recoverable bool) {
	p.publish(ctx, sessionID, events.TopicError, events.ErrorNotice{
		Step:        step,
		Error:       message,
		Recoverable: recoverable,
		Timestamp:   time.Now().UTC(),
	})
}

// Metadata projects execution metadata (throttling, concurrency).
func (p *Projector) Metadata(ctx context.Context, sessionID, kind, message string, details map[string]any) {
	p.publish(ctx, sessionID, events.TopicMetadata, events.MetadataUpdate{
		Type:      kind,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
	})
}
