package workflow

import "fmt"

// Assessment is the judgment produced by evaluating a step's output
// against a threshold. It is computed right after a gated step completes,
// consumed once by the attempt controller, then discarded.
type Assessment struct {
	Passed    bool
	Observed  int
	Threshold int
}

// Reason returns the human-readable failure reason, used for both logs and
// the progress/error event payloads.
func (a Assessment) Reason() string {
	if a.Passed {
		return fmt.Sprintf("found %d context items (threshold %d)", a.Observed, a.Threshold)
	}
	return fmt.Sprintf("insufficient research context: found %d items, need at least %d", a.Observed, a.Threshold)
}

// Gate decides whether a gather step's output is good enough to proceed.
// Evaluate is pure: no side effects, no I/O.
type Gate struct {
	Threshold int
}

// Evaluate checks the observed item count against the gate threshold.
func (g Gate) Evaluate(observed int) Assessment {
	return Assessment{
		Passed:    observed >= g.Threshold,
		Observed:  observed,
		Threshold: g.Threshold,
	}
}
