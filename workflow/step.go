package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/researchflow/internal/metrics"
)

// StepFunc is one named unit of work within a run.
type StepFunc func(ctx context.Context) (any, error)

type stepKey struct {
	runID   string
	attempt int
	name    string
}

type stepRecord struct {
	result      any
	completedAt time.Time
}

// Executor runs named steps and memoizes their results for the lifetime of
// one attempt. Calling Run again with the same (run, attempt, name) returns
// the cached result without re-invoking fn, so a restarted step sequence
// never duplicates the side effects of work that already completed. Side
// effects performed around a step (event publishing in particular) are not
// memoized and re-execute on every attempt.
type Executor struct {
	mu        sync.Mutex
	results   map[stepKey]stepRecord
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewExecutor creates a step executor.
func NewExecutor(logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		results: make(map[stepKey]stepRecord),
		logger:  logger.With(zap.String("component", "step_executor")),
	}
}

// WithCollector attaches a metrics collector recording step executions.
// Memoized hits are not recorded; only real executions count.
func (e *Executor) WithCollector(c *metrics.Collector) *Executor {
	e.collector = c
	return e
}

// Run executes fn once per scope and memoizes a successful result. Failed
// executions are not cached; a caller that retries the step within the same
// attempt re-invokes fn.
func (e *Executor) Run(ctx context.Context, scope Scope, name string, fn StepFunc) (any, error) {
	key := stepKey{runID: scope.RunID, attempt: scope.Attempt, name: name}

	e.mu.Lock()
	if rec, ok := e.results[key]; ok {
		e.mu.Unlock()
		e.logger.Debug("step memoized, skipping",
			zap.String("run_id", scope.RunID),
			zap.Int("attempt", scope.Attempt),
			zap.String("step", name),
		)
		return rec.result, nil
	}
	e.mu.Unlock()

	start := time.Now()
	result, err := fn(ctx)
	if err != nil {
		if e.collector != nil {
			e.collector.RecordStep(name, "failed", time.Since(start))
		}
		return nil, fmt.Errorf("step %q: %w", name, err)
	}
	if e.collector != nil {
		e.collector.RecordStep(name, "completed", time.Since(start))
	}

	e.mu.Lock()
	e.results[key] = stepRecord{result: result, completedAt: time.Now()}
	e.mu.Unlock()

	e.logger.Debug("step completed",
		zap.String("run_id", scope.RunID),
		zap.Int("attempt", scope.Attempt),
		zap.String("step", name),
		zap.Duration("duration", time.Since(start)),
	)

	return result, nil
}

// RunTyped is a type-safe wrapper around Executor.Run.
func RunTyped[T any](e *Executor, ctx context.Context, scope Scope, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	result, err := e.Run(ctx, scope, name, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("step %q: cached result has type %T", name, result)
	}
	return typed, nil
}

// Forget releases all memoized results for a run. Called once the run
// settles; step durability is scoped to one run's lifetime.
func (e *Executor) Forget(runID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key := range e.results {
		if key.runID == runID {
			delete(e.results, key)
		}
	}
}

// CompletedAt reports when a step finished, if it has.
func (e *Executor) CompletedAt(scope Scope, name string) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.results[stepKey{runID: scope.RunID, attempt: scope.Attempt, name: name}]
	return rec.completedAt, ok
}
