// Package llm provides the chat completion abstraction used by the research
// engine: a provider interface with blocking and streaming completions, an
// OpenAI-compatible HTTP client, per-agent model bindings, and token
// counting for usage reporting.
package llm
