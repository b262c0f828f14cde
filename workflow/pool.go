package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/researchflow/events"
	"github.com/BaSui01/researchflow/internal/metrics"
	"github.com/BaSui01/researchflow/retry"
)

// AgentSpec describes one specialist task to run inside the pool.
type AgentSpec struct {
	// Agent is the task's name, used in every projected event.
	Agent string

	// Model is reported in the agent-result event.
	Model string

	// Retry is the task's independent retry policy. Nil uses retry defaults.
	Retry *retry.Policy

	// Throttle, when set, gates the task before it starts. A throttle error
	// fails the task without invoking Run; siblings are unaffected.
	Throttle func(ctx context.Context) error

	// Run performs the work. emit streams an incremental output chunk as it
	// is produced; chunks are delivered in production order per agent.
	Run func(ctx context.Context, emit func(chunk string)) (string, error)
}

// AgentOutcome is the terminal state of one pooled agent task.
type AgentOutcome struct {
	Agent      string
	Model      string
	Status     events.AgentStatus // AgentCompleted or AgentFailed
	Response   string
	Err        error
	RetryCount int
	Duration   time.Duration
}

// Pool runs independent named agent tasks concurrently, each with its own
// retry policy and progress stream, and blocks until every task reaches a
// terminal state. One agent's failure never cancels its siblings: the
// outcome slice always has one entry per spec, failed entries included, so
// synthesis can proceed with partial results.
type Pool struct {
	projector *Projector
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewPool creates an agent pool projecting through projector.
func NewPool(projector *Projector, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		projector: projector,
		logger:    logger.With(zap.String("component", "agent_pool")),
	}
}

// WithCollector attaches a metrics collector recording agent retries.
func (p *Pool) WithCollector(c *metrics.Collector) *Pool {
	p.collector = c
	return p
}

// RunAll executes every spec concurrently and joins on all of them. Each
// agent owns its outcome slot exclusively; the WaitGroup join is the sole
// synchronization point before results are handed to the caller.
func (p *Pool) RunAll(ctx context.Context, sessionID string, specs []AgentSpec) []AgentOutcome {
	outcomes := make([]AgentOutcome, len(specs))

	var wg sync.WaitGroup
	for i, spec := range specs {
		wg.Add(1)
		go func(i int, spec AgentSpec) {
			defer wg.Done()
			outcomes[i] = p.runOne(ctx, sessionID, spec)
		}(i, spec)
	}
	wg.Wait()

	return outcomes
}

func (p *Pool) runOne(ctx context.Context, sessionID string, spec AgentSpec) AgentOutcome {
	start := time.Now()
	outcome := AgentOutcome{Agent: spec.Agent, Model: spec.Model}

	p.projector.AgentUpdate(ctx, sessionID, spec.Agent, events.AgentStarting,
		fmt.Sprintf("%s: starting", spec.Agent), 0, 0)

	if spec.Throttle != nil {
		if err := spec.Throttle(ctx); err != nil {
			outcome.Status = events.AgentFailed
			outcome.Err = err
			outcome.Duration = time.Since(start)
			p.logger.Warn("agent task throttled",
				zap.String("agent", spec.Agent),
				zap.Error(err),
			)
			p.projector.AgentUpdate(ctx, sessionID, spec.Agent, events.AgentFailed,
				fmt.Sprintf("%s: throttled: %v", spec.Agent, err), outcome.Duration, 0)
			return outcome
		}
	}

	// Copy the policy before installing the hook; specs may share one.
	policy := retry.DefaultPolicy()
	if spec.Retry != nil {
		copied := *spec.Retry
		policy = &copied
	}
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		outcome.RetryCount = attempt
		if p.collector != nil {
			p.collector.RecordAgentRetry(spec.Agent)
		}
		p.projector.AgentUpdate(ctx, sessionID, spec.Agent, events.AgentRetrying,
			fmt.Sprintf("%s: retrying after failure: %v", spec.Agent, err), 0, attempt)
	}

	retryer := retry.NewBackoffRetryer(policy, p.logger.With(zap.String("agent", spec.Agent)))

	response, err := retryer.DoWithResult(ctx, func() (any, error) {
		p.projector.AgentUpdate(ctx, sessionID, spec.Agent, events.AgentRunning,
			fmt.Sprintf("%s: running", spec.Agent), 0, outcome.RetryCount)

		return spec.Run(ctx, func(chunk string) {
			p.projector.AgentChunk(ctx, sessionID, spec.Agent, chunk, false)
		})
	})

	outcome.Duration = time.Since(start)

	if err != nil {
		outcome.Status = events.AgentFailed
		outcome.Err = err
		p.logger.Warn("agent task failed",
			zap.String("agent", spec.Agent),
			zap.Int("retries", outcome.RetryCount),
			zap.Error(err),
		)
		p.projector.AgentUpdate(ctx, sessionID, spec.Agent, events.AgentFailed,
			fmt.Sprintf("%s: failed: %v", spec.Agent, err), outcome.Duration, outcome.RetryCount)
		return outcome
	}

	outcome.Status = events.AgentCompleted
	outcome.Response, _ = response.(string)

	p.projector.AgentChunk(ctx, sessionID, spec.Agent, "", true)
	p.projector.AgentUpdate(ctx, sessionID, spec.Agent, events.AgentCompleted,
		fmt.Sprintf("%s: complete", spec.Agent), outcome.Duration, outcome.RetryCount)
	p.projector.AgentResult(ctx, sessionID, spec.Agent, outcome.Response, spec.Model, outcome.Duration)

	return outcome
}
