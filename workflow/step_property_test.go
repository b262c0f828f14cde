package workflow

import (
	"context"
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/BaSui01/researchflow/types"
)

// Each (run, attempt, step) triple executes exactly once no matter how the
// calls interleave, and repeated calls always observe the first result.
func TestStepMemoizationProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		e := NewExecutor(nil)

		invocations := make(map[string]int)
		observed := make(map[string]any)

		steps := rapid.SliceOfN(rapid.Custom(func(t *rapid.T) [2]int {
			return [2]int{
				rapid.IntRange(0, 3).Draw(t, "attempt"),
				rapid.IntRange(0, 4).Draw(t, "step"),
			}
		}), 1, 40).Draw(t, "calls")

		for _, call := range steps {
			scope := Scope{RunID: "run", Attempt: call[0]}
			name := fmt.Sprintf("step-%d", call[1])
			key := fmt.Sprintf("%d/%d", call[0], call[1])

			result, err := e.Run(context.Background(), scope, name, func(ctx context.Context) (any, error) {
				invocations[key]++
				return fmt.Sprintf("%s#%d", key, invocations[key]), nil
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if prev, ok := observed[key]; ok {
				if prev != result {
					t.Fatalf("scope %s changed result: %v -> %v", key, prev, result)
				}
			} else {
				observed[key] = result
			}
		}

		for key, count := range invocations {
			if count != 1 {
				t.Fatalf("scope %s executed %d times", key, count)
			}
		}
	})
}

// A run makes at most MaxAttempts+1 passes and always settles with a
// terminal status, whatever mix of failures the attempts produce.
func TestAttemptBoundsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxAttempts := rapid.IntRange(0, 4).Draw(t, "maxAttempts")
		// 0: success, 1: retryable failure, 2: terminal failure.
		script := rapid.SliceOfN(rapid.IntRange(0, 2), maxAttempts+1, maxAttempts+1).Draw(t, "script")

		c := NewController(maxAttempts, 0, nil)
		run := NewRun("sess", "user", "query")

		calls := 0
		err := c.Execute(context.Background(), run, func(ctx context.Context, attempt int) error {
			calls++
			switch script[attempt] {
			case 1:
				return types.Retryable(types.ErrInsufficientContext, "retry")
			case 2:
				return types.Terminal(types.ErrUnauthorized, "abort")
			default:
				return nil
			}
		})

		if calls > maxAttempts+1 {
			t.Fatalf("made %d passes with maxAttempts=%d", calls, maxAttempts)
		}
		if run.Status != StatusSucceeded && run.Status != StatusFailed {
			t.Fatalf("run did not settle: %s", run.Status)
		}
		if err == nil && run.Status != StatusSucceeded {
			t.Fatalf("nil error with status %s", run.Status)
		}
		if err != nil && !types.IsTerminal(err) {
			t.Fatalf("settled error must be terminal: %v", err)
		}
	})
}
