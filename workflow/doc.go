// Package workflow implements the durable research pipeline: memoized step
// execution, the bounded attempt controller with its quality gate, the
// parallel specialist agent pool, and the projector that maps every
// lifecycle transition onto the session event stream. The Engine ties these
// together into one end-to-end query execution.
package workflow
