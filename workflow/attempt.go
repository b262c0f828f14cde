package workflow

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/researchflow/types"
)

// AttemptFunc executes one full pass through a run's step sequence.
// It returns nil on success, a retryable *types.Error to request a full-run
// restart, or a terminal error to abort immediately.
type AttemptFunc func(ctx context.Context, attempt int) error

// Controller is the per-run attempt state machine. It bounds full restarts
// of the step sequence at MaxAttempts, spaces them with linearly growing
// backoff, and settles the run as succeeded or failed.
//
// Bounding attempts at a small constant prevents infinite retry loops when
// a source is structurally incapable of returning enough data, while still
// giving transient failures a chance to self-correct.
type Controller struct {
	// MaxAttempts is the highest attempt number; a run makes at most
	// MaxAttempts+1 passes through its step sequence.
	MaxAttempts int

	// Backoff is the base delay between attempts; attempt n waits n*Backoff
	// (linear spacing, avoids tight retry storms).
	Backoff time.Duration

	logger *zap.Logger
}

// NewController creates an attempt controller.
func NewController(maxAttempts int, backoff time.Duration, logger *zap.Logger) *Controller {
	if maxAttempts < 0 {
		maxAttempts = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		MaxAttempts: maxAttempts,
		Backoff:     backoff,
		logger:      logger.With(zap.String("component", "attempt_controller")),
	}
}

// Execute drives run through fn until it settles. The run's Attempt counter
// strictly increases across restarts and its Status ends at StatusSucceeded
// or StatusFailed.
func (c *Controller) Execute(ctx context.Context, run *Run, fn AttemptFunc) error {
	for attempt := 0; attempt <= c.MaxAttempts; attempt++ {
		run.Attempt = attempt
		run.Status = StatusRunning

		if attempt > 0 && c.Backoff > 0 {
			delay := time.Duration(attempt) * c.Backoff
			c.logger.Info("restarting step sequence",
				zap.String("run_id", run.ID),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
			)
			select {
			case <-ctx.Done():
				run.Status = StatusFailed
				return types.Terminal(types.ErrRunAborted, "run cancelled").WithCause(ctx.Err())
			case <-time.After(delay):
			}
		}

		err := fn(ctx, attempt)
		if err == nil {
			run.Status = StatusSucceeded
			return nil
		}

		if types.IsTerminal(err) {
			c.logger.Warn("terminal failure, aborting run",
				zap.String("run_id", run.ID),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			run.Status = StatusFailed
			return err
		}

		if attempt >= c.MaxAttempts {
			c.logger.Warn("attempts exhausted",
				zap.String("run_id", run.ID),
				zap.Int("attempts", attempt+1),
				zap.Error(err),
			)
			run.Status = StatusFailed
			return types.Terminal(types.ErrAttemptsExhausted, "still failing after max attempts").WithCause(err)
		}

		c.logger.Info("attempt failed, will restart",
			zap.String("run_id", run.ID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	// Unreachable: the loop always settles via one of the returns above.
	run.Status = StatusFailed
	return types.Terminal(types.ErrInternalError, "attempt loop exited without settling")
}
