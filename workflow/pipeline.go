package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/researchflow/events"
	"github.com/BaSui01/researchflow/internal/metrics"
	"github.com/BaSui01/researchflow/internal/throttle"
	"github.com/BaSui01/researchflow/llm"
	"github.com/BaSui01/researchflow/sources"
	"github.com/BaSui01/researchflow/types"
)

// Step names, stable across attempts so dashboards can correlate progress
// events with step lifecycles.
const (
	StepSearchSources = "search-sources"
	StepRankContexts  = "rank-contexts"
	StepRunAgents     = "run-agents"
	StepSynthesize    = "synthesize"
)

// EngineConfig holds the pipeline's tunable parameters.
type EngineConfig struct {
	// MaxAttempts bounds full restarts of the step sequence.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// AttemptBackoff is the base delay between attempts.
	AttemptBackoff time.Duration `json:"attempt_backoff" yaml:"attempt_backoff"`

	// MinContexts is the quality gate threshold.
	MinContexts int `json:"min_contexts" yaml:"min_contexts"`

	// TopContexts caps how many ranked items feed generation.
	TopContexts int `json:"top_contexts" yaml:"top_contexts"`

	// EnableAgents turns on the specialist agent pool between ranking and
	// synthesis. Disabled, the synthesizer works from raw contexts alone.
	EnableAgents bool `json:"enable_agents" yaml:"enable_agents"`
}

// DefaultEngineConfig returns the engine defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxAttempts:    2,
		AttemptBackoff: time.Second,
		MinContexts:    3,
		TopContexts:    10,
		EnableAgents:   true,
	}
}

func (c *EngineConfig) normalize() {
	if c.MaxAttempts < 0 {
		c.MaxAttempts = 0
	}
	if c.MinContexts <= 0 {
		c.MinContexts = 3
	}
	if c.TopContexts <= 0 {
		c.TopContexts = 10
	}
}

// Query is one research request submitted to the engine.
type Query struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`

	// RunID, when set, names the run instead of a generated ID, so the ID a
	// caller hands out (in a 202 response) matches engine logs and events.
	RunID string `json:"runId,omitempty"`
}

// Engine drives a research query end to end: gather context from all
// sources, gate on quality with bounded full-run retries, rank, fan out to
// specialist agents, and synthesize a final answer. Every transition is
// projected onto the session's event stream, and each run settles with
// exactly one final result or one unrecoverable error event.
type Engine struct {
	cfg       EngineConfig
	executor  *Executor
	projector *Projector
	pool      *Pool
	sources   []sources.Source
	provider  llm.Provider
	limiter   throttle.Limiter
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewEngine assembles the pipeline. provider is required; limiter and
// collector are optional.
func NewEngine(
	cfg EngineConfig,
	bus events.Bus,
	srcs []sources.Source,
	provider llm.Provider,
	limiter throttle.Limiter,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Engine {
	cfg.normalize()
	if logger == nil {
		logger = zap.NewNop()
	}
	projector := NewProjector(bus, logger)
	return &Engine{
		cfg:       cfg,
		executor:  NewExecutor(logger).WithCollector(collector),
		projector: projector,
		pool:      NewPool(projector, logger).WithCollector(collector),
		sources:   srcs,
		provider:  provider,
		limiter:   limiter,
		collector: collector,
		logger:    logger.With(zap.String("component", "engine")),
	}
}

// Execute runs one research query to completion. The returned result is
// also published as the session's final result event; on unrecoverable
// failure the error is published as the terminal error event instead.
func (e *Engine) Execute(ctx context.Context, q Query) (*events.FinalResult, error) {
	if q.Query == "" {
		return nil, types.Terminal(types.ErrInvalidRequest, "query must not be empty").WithHTTPStatus(400)
	}
	if q.SessionID == "" {
		return nil, types.Terminal(types.ErrInvalidRequest, "sessionId must not be empty").WithHTTPStatus(400)
	}

	if e.limiter != nil {
		if err := e.limiter.Allow(ctx, q.UserID); err != nil {
			return nil, err
		}
	}

	run := NewRun(q.SessionID, q.UserID, q.Query)
	if q.RunID != "" {
		run.ID = q.RunID
	}
	defer e.executor.Forget(run.ID)

	e.logger.Info("starting research run",
		zap.String("run_id", run.ID),
		zap.String("session_id", run.SessionID),
		zap.String("query", run.Query),
	)

	e.projector.Progress(ctx, run.SessionID, "initialization", events.StepCompleted,
		fmt.Sprintf("Starting research query: %q", run.Query), 0,
		map[string]any{"userId": run.UserID})
	e.projector.Metadata(ctx, run.SessionID, "concurrency",
		"Research run accepted for execution",
		map[string]any{"runId": run.ID, "maxAttempts": e.cfg.MaxAttempts + 1})

	controller := NewController(e.cfg.MaxAttempts, e.cfg.AttemptBackoff, e.logger)

	var result *events.FinalResult
	err := controller.Execute(ctx, run, func(ctx context.Context, attempt int) error {
		r, attemptErr := e.runAttempt(ctx, run, attempt)
		if attemptErr != nil {
			return attemptErr
		}
		result = r
		return nil
	})

	if err != nil {
		e.settleFailure(ctx, run, err)
		return nil, err
	}

	result.Attempts = run.Attempt + 1
	e.projector.Result(ctx, run.SessionID, *result)
	if e.collector != nil {
		e.collector.RecordRun(string(run.Status), string(result.Quality), result.Attempts, time.Since(run.StartedAt))
		if result.Quality == types.QualityLow {
			e.collector.RecordDegradedRun()
		}
	}

	e.logger.Info("research run completed",
		zap.String("run_id", run.ID),
		zap.Int("attempts", result.Attempts),
		zap.String("quality", string(result.Quality)),
		zap.Int("contexts_used", result.ContextsUsed),
	)
	return result, nil
}

func (e *Engine) settleFailure(ctx context.Context, run *Run, err error) {
	step := StepSearchSources
	var terr *types.Error
	if errors.As(err, &terr) && terr.Step != "" {
		step = terr.Step
	}
	e.projector.Error(ctx, run.SessionID, step, err.Error(), false)
	if e.collector != nil {
		e.collector.RecordRun(string(run.Status), "", run.Attempt+1, time.Since(run.StartedAt))
	}
	e.logger.Warn("research run failed",
		zap.String("run_id", run.ID),
		zap.Int("attempts", run.Attempt+1),
		zap.Error(err),
	)
}

// runAttempt is one full pass through the step sequence.
func (e *Engine) runAttempt(ctx context.Context, run *Run, attempt int) (*events.FinalResult, error) {
	scope := run.Scope()

	// Gather.
	e.projector.Progress(ctx, run.SessionID, StepSearchSources, events.StepInProgress,
		fmt.Sprintf("Searching research sources... (attempt %d/%d)", attempt+1, e.cfg.MaxAttempts+1),
		attempt, nil)

	items, err := e.gather(ctx, run, scope)
	if err != nil {
		return nil, err
	}

	// Gate.
	gate := Gate{Threshold: e.cfg.MinContexts}
	assessment := gate.Evaluate(len(items))
	quality := types.QualityHigh
	if !assessment.Passed {
		if e.collector != nil {
			e.collector.RecordGateFailure()
		}
		if attempt < e.cfg.MaxAttempts {
			e.projector.Error(ctx, run.SessionID, StepSearchSources, assessment.Reason(), true)
			return nil, types.Retryable(types.ErrInsufficientContext, assessment.Reason()).
				WithStep(StepSearchSources)
		}
		// Out of retries: proceed with what we have at reduced quality.
		quality = types.QualityLow
		e.logger.Warn("proceeding with degraded context set",
			zap.String("run_id", run.ID),
			zap.Int("found", assessment.Observed),
			zap.Int("threshold", assessment.Threshold),
		)
	}

	e.projector.Progress(ctx, run.SessionID, StepSearchSources, events.StepCompleted,
		assessment.Reason(), attempt,
		map[string]any{"totalContexts": len(items), "threshold": e.cfg.MinContexts})

	// Rank.
	e.projector.Progress(ctx, run.SessionID, StepRankContexts, events.StepInProgress,
		"Ranking contexts by relevance to your query", attempt, nil)

	top, err := RunTyped(e.executor, ctx, scope, StepRankContexts, func(ctx context.Context) ([]types.ContextItem, error) {
		return rankContexts(items, e.cfg.TopContexts), nil
	})
	if err != nil {
		return nil, err
	}

	e.projector.Contexts(ctx, run.SessionID, len(items), top)
	e.projector.Progress(ctx, run.SessionID, StepRankContexts, events.StepCompleted,
		fmt.Sprintf("Ranked %d contexts. Using top %d for response generation.", len(items), len(top)),
		attempt,
		map[string]any{"totalRanked": len(items), "topUsed": len(top)})

	// Specialist agents.
	var outcomes []AgentOutcome
	if e.cfg.EnableAgents {
		outcomes, err = RunTyped(e.executor, ctx, scope, StepRunAgents, func(ctx context.Context) ([]AgentOutcome, error) {
			e.projector.Progress(ctx, run.SessionID, StepRunAgents, events.StepInProgress,
				"Running specialist agents in parallel", attempt, nil)
			return e.pool.RunAll(ctx, run.SessionID, e.agentSpecs(run, top)), nil
		})
		if err != nil {
			return nil, err
		}

		completed := 0
		for _, o := range outcomes {
			if o.Status == events.AgentCompleted {
				completed++
			}
			if e.collector != nil {
				e.collector.RecordAgentExecution(o.Agent, string(o.Status), o.Duration)
			}
		}
		e.projector.Progress(ctx, run.SessionID, StepRunAgents, events.StepCompleted,
			fmt.Sprintf("Specialist agents finished: %d/%d succeeded", completed, len(outcomes)),
			attempt,
			map[string]any{"succeeded": completed, "total": len(outcomes)})
	}

	// Synthesis.
	e.projector.Progress(ctx, run.SessionID, StepSynthesize, events.StepInProgress,
		"Generating final response...", attempt, nil)

	result, err := RunTyped(e.executor, ctx, scope, StepSynthesize, func(ctx context.Context) (*events.FinalResult, error) {
		return e.synthesize(ctx, run, top, outcomes)
	})
	if err != nil {
		return nil, err
	}

	e.projector.Progress(ctx, run.SessionID, StepSynthesize, events.StepCompleted,
		fmt.Sprintf("Generated response (%d tokens)", result.TokensUsed), attempt, nil)

	result.ContextsUsed = len(items)
	result.Quality = quality
	return result, nil
}

// gather fans out to every source concurrently and merges what succeeded.
// Individual source failures are projected and tolerated; the gather step
// itself only fails if no source could be reached at all.
func (e *Engine) gather(ctx context.Context, run *Run, scope Scope) ([]types.ContextItem, error) {
	type sourceOutcome struct {
		name  string
		items []types.ContextItem
		err   error
	}

	outcomes, err := RunTyped(e.executor, ctx, scope, StepSearchSources, func(ctx context.Context) ([]sourceOutcome, error) {
		results := make([]sourceOutcome, len(e.sources))
		g, gctx := errgroup.WithContext(ctx)
		for i, src := range e.sources {
			g.Go(func() error {
				items, fetchErr := src.Fetch(gctx, run.Query)
				results[i] = sourceOutcome{name: src.Name(), items: items, err: fetchErr}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return results, nil
	})
	if err != nil {
		return nil, err
	}

	var items []types.ContextItem
	failures := 0
	for _, o := range outcomes {
		e.projector.SourceResult(ctx, run.SessionID, o.name, len(o.items), o.err)
		if o.err != nil {
			failures++
			e.logger.Warn("source fetch failed",
				zap.String("run_id", run.ID),
				zap.String("source", o.name),
				zap.Error(o.err),
			)
			continue
		}
		items = append(items, o.items...)
	}

	if len(outcomes) > 0 && failures == len(outcomes) {
		return nil, types.Retryable(types.ErrSourceUnavailable, "all research sources failed").
			WithStep(StepSearchSources)
	}
	return items, nil
}

// rankContexts assigns positional relevance and keeps the top n. Items
// arrive in per-source quality order, so position is the ranking signal.
func rankContexts(items []types.ContextItem, n int) []types.ContextItem {
	ranked := make([]types.ContextItem, len(items))
	copy(ranked, items)
	for i := range ranked {
		relevance := 1 - float64(i)*0.1
		if relevance < 0 {
			relevance = 0
		}
		ranked[i].Relevance = relevance
	}
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// agentSpecs builds the pooled specialist tasks for one attempt. When the
// engine carries a limiter, each task is gated against the run's user before
// it starts.
func (e *Engine) agentSpecs(run *Run, contexts []types.ContextItem) []AgentSpec {
	var gate func(ctx context.Context) error
	if e.limiter != nil {
		gate = func(ctx context.Context) error {
			return e.limiter.Allow(ctx, run.UserID)
		}
	}

	kinds := []llm.AgentKind{llm.AgentAnalyst, llm.AgentSummarizer, llm.AgentClassifier}
	specs := make([]AgentSpec, 0, len(kinds))
	for _, kind := range kinds {
		binding := llm.BindingFor(kind)
		prompt := agentPrompt(kind, run.Query, contexts)
		specs = append(specs, AgentSpec{
			Agent:    string(kind),
			Model:    binding.Model,
			Throttle: gate,
			Run: func(ctx context.Context, emit func(chunk string)) (string, error) {
				return e.streamCompletion(ctx, binding.Model, prompt, emit)
			},
		})
	}
	return specs
}

// streamCompletion runs one streaming model call, forwarding deltas to emit
// and returning the accumulated text.
func (e *Engine) streamCompletion(ctx context.Context, model, prompt string, emit func(chunk string)) (string, error) {
	stream, err := e.provider.Stream(ctx, &llm.ChatRequest{
		Model:    model,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for chunk := range stream {
		if chunk.Err != nil {
			return "", chunk.Err
		}
		if chunk.Delta != "" {
			sb.WriteString(chunk.Delta)
			if emit != nil {
				emit(chunk.Delta)
			}
		}
	}
	return sb.String(), nil
}

// synthesize produces the final answer, streaming fragments to the session
// as they arrive and closing the stream with a completion marker.
func (e *Engine) synthesize(ctx context.Context, run *Run, contexts []types.ContextItem, outcomes []AgentOutcome) (*events.FinalResult, error) {
	binding := llm.BindingFor(llm.AgentSynthesizer)
	prompt := synthesisPrompt(run.Query, contexts, outcomes)

	answer, err := e.streamCompletion(ctx, binding.Model, prompt, func(chunk string) {
		e.projector.Chunk(ctx, run.SessionID, chunk)
	})
	if err != nil {
		var terr *types.Error
		if errors.As(err, &terr) {
			return nil, terr.WithStep(StepSynthesize)
		}
		return nil, types.Retryable(types.ErrProviderUnavailable, err.Error()).WithStep(StepSynthesize)
	}
	e.projector.StreamComplete(ctx, run.SessionID)

	tokenizer := llm.TokenizerFor(binding.Model)
	tokensUsed, countErr := tokenizer.CountTokens(prompt + answer)
	if countErr != nil {
		tokensUsed = 0
	}
	if e.collector != nil {
		e.collector.RecordLLMRequest(e.provider.Name(), binding.Model, "ok", 0, tokensUsed)
	}

	return &events.FinalResult{
		Answer:     answer,
		Model:      binding.Model,
		TokensUsed: tokensUsed,
	}, nil
}

func contextBlock(contexts []types.ContextItem) string {
	var sb strings.Builder
	for i, c := range contexts {
		fmt.Fprintf(&sb, "[%d] %s: %s\n%s\n\n", i+1, c.Source, c.Title, c.Text)
	}
	return sb.String()
}

func agentPrompt(kind llm.AgentKind, query string, contexts []types.ContextItem) string {
	var role string
	switch kind {
	case llm.AgentAnalyst:
		role = "You are a deep analysis specialist. Provide a comprehensive, detailed analysis of the following query based on the provided context. Be thorough and insightful."
	case llm.AgentSummarizer:
		role = "You are a summarization specialist. Distill the provided context into concise key points that answer the query."
	case llm.AgentClassifier:
		role = "You are a classification specialist. Categorize the query and the provided context into relevant research topics."
	default:
		role = "You are a research assistant. Answer the query using the provided context."
	}
	return fmt.Sprintf("%s\n\nQuery: %s\n\nContext:\n%s", role, query, contextBlock(contexts))
}

func synthesisPrompt(query string, contexts []types.ContextItem, outcomes []AgentOutcome) string {
	var sb strings.Builder
	sb.WriteString("You are a research assistant. Answer this question using the provided research context. Cite sources using [1], [2], etc.\n\n")
	fmt.Fprintf(&sb, "Question: %s\n\n", query)
	fmt.Fprintf(&sb, "Research Context:\n%s", contextBlock(contexts))

	for _, o := range outcomes {
		if o.Status != events.AgentCompleted || o.Response == "" {
			continue
		}
		fmt.Fprintf(&sb, "\n%s findings:\n%s\n", o.Agent, o.Response)
	}
	return sb.String()
}
