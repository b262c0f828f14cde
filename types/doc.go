// Package types defines shared data structures and the structured error
// taxonomy used across the engine: retrieved context items, quality markers,
// and the retryable/terminal error type the workflow controller pattern
// matches on.
package types
