package events

import (
	"encoding/json"
	"time"

	"github.com/BaSui01/researchflow/types"
)

// Topic identifies one typed event stream within a session channel.
type Topic string

const (
	// TopicProgress carries step-by-step progress updates.
	TopicProgress Topic = "progress"
	// TopicSourceResult carries per-source fetch outcomes as they come in.
	TopicSourceResult Topic = "source-result"
	// TopicContexts carries the ranked context items found for the query.
	TopicContexts Topic = "contexts"
	// TopicAIChunk carries streaming synthesis response chunks.
	TopicAIChunk Topic = "ai-chunk"
	// TopicResult carries the single final result of a run.
	TopicResult Topic = "result"
	// TopicMetadata carries execution metadata (throttling, concurrency).
	TopicMetadata Topic = "metadata"
	// TopicError carries error notifications.
	TopicError Topic = "error"
	// TopicAgentUpdate carries per-agent status transitions.
	TopicAgentUpdate Topic = "agent-update"
	// TopicAgentChunk carries streaming chunks from individual agents.
	TopicAgentChunk Topic = "agent-chunk"
	// TopicAgentResult carries per-agent consolidated responses.
	TopicAgentResult Topic = "agent-result"
)

// AllTopics lists every topic a session subscriber receives.
func AllTopics() []Topic {
	return []Topic{
		TopicProgress, TopicSourceResult, TopicContexts, TopicAIChunk,
		TopicResult, TopicMetadata, TopicError,
		TopicAgentUpdate, TopicAgentChunk, TopicAgentResult,
	}
}

// Event is one published item on a session channel. Events are append-only
// and ordered by publish time within a session; they have no identity beyond
// their position in the stream.
type Event struct {
	Topic     Topic           `json:"topic"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// StepStatus enumerates progress states for a workflow step.
type StepStatus string

const (
	StepStarting   StepStatus = "starting"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
)

// ProgressUpdate is the payload for TopicProgress.
type ProgressUpdate struct {
	Step      string         `json:"step"`
	Status    StepStatus     `json:"status"`
	Message   string         `json:"message"`
	Attempt   int            `json:"attempt"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SourceResult is the payload for TopicSourceResult.
type SourceResult struct {
	Source    string    `json:"source"`
	Success   bool      `json:"success"`
	Count     int       `json:"count,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ContextsUpdate is the payload for TopicContexts.
type ContextsUpdate struct {
	TotalFound  int                 `json:"totalFound"`
	TopContexts []types.ContextItem `json:"topContexts"`
	Timestamp   time.Time           `json:"timestamp"`
}

// AIChunk is the payload for TopicAIChunk. The final chunk of a stream has
// IsComplete set and an empty Chunk (end-of-stream marker).
type AIChunk struct {
	Chunk      string    `json:"chunk"`
	IsComplete bool      `json:"isComplete"`
	Timestamp  time.Time `json:"timestamp"`
}

// AgentStatus enumerates lifecycle states for an agent task.
type AgentStatus string

const (
	AgentStarting  AgentStatus = "starting"
	AgentRunning   AgentStatus = "running"
	AgentCompleted AgentStatus = "completed"
	AgentFailed    AgentStatus = "failed"
	AgentRetrying  AgentStatus = "retrying"
)

// AgentUpdate is the payload for TopicAgentUpdate.
type AgentUpdate struct {
	Agent      string      `json:"agent"`
	Status     AgentStatus `json:"status"`
	Message    string      `json:"message"`
	Timestamp  time.Time   `json:"timestamp"`
	DurationMs int64       `json:"duration,omitempty"`
	RetryCount int         `json:"retryCount,omitempty"`
}

// AgentChunk is the payload for TopicAgentChunk.
type AgentChunk struct {
	Agent      string    `json:"agent"`
	Chunk      string    `json:"chunk"`
	IsComplete bool      `json:"isComplete"`
	Timestamp  time.Time `json:"timestamp"`
}

// AgentResult is the payload for TopicAgentResult.
type AgentResult struct {
	Agent      string    `json:"agent"`
	Response   string    `json:"response"`
	Model      string    `json:"model"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration,omitempty"`
}

// FinalResult is the payload for TopicResult.
type FinalResult struct {
	Answer       string        `json:"answer"`
	Model        string        `json:"model"`
	TokensUsed   int           `json:"tokensUsed,omitempty"`
	ContextsUsed int           `json:"contextsUsed"`
	Attempts     int           `json:"attempts"`
	Quality      types.Quality `json:"quality"`
	Timestamp    time.Time     `json:"timestamp"`
}

// ErrorNotice is the payload for TopicError.
type ErrorNotice struct {
	Step        string    `json:"step"`
	Error       string    `json:"error"`
	Recoverable bool      `json:"recoverable"`
	Timestamp   time.Time `json:"timestamp"`
}

// MetadataUpdate is the payload for TopicMetadata.
type MetadataUpdate struct {
	Type      string         `json:"type"` // rate_limit, concurrency, throttle, retry, info
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
