package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deskmind/core/pkg/chat"
	"github.com/deskmind/core/pkg/model/provider"
	"github.com/deskmind/core/pkg/tracing"
)

// ErrNoAgents is returned by Run when no Executor is registered at all.
var ErrNoAgents = errors.New("orchestrator: no agents registered")

// Config controls Orchestrator behavior, sourced from the orchestrator.*
// configuration keys.
type Config struct {
	DefaultStrategy      Strategy      // orchestrator.strategy
	MaxParallel          int           // M in, default 5
	AgentTimeout         time.Duration // T in, default 30s
	ConditionalThreshold float64       // confidence threshold for CONDITIONAL, default 0.6
}

func (c Config) withDefaults() Config {
	if c.DefaultStrategy == "" {
		c.DefaultStrategy = StrategyHybrid
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = 5
	}
	if c.AgentTimeout <= 0 {
		c.AgentTimeout = 30 * time.Second
	}
	if c.ConditionalThreshold <= 0 {
		c.ConditionalThreshold = 0.6
	}
	return c
}

// Orchestrator is the Orchestrator: selects, runs, and
// merges agents for a single user turn. Grounded on the prior art's
// pkg/rag/manager.go Initialize fan-out/fan-in idiom for parallel
// execution and pkg/rag/embed/embed.go's errgroup.SetLimit idiom for the
// bounded worker pool.
type Orchestrator struct {
	agents   map[AgentKind]Executor
	analyzer *Analyzer
	llm      provider.Provider // used for result merging; nil disables LLM merge
	cfg      Config
}

// New constructs an Orchestrator over executors, keyed by their own
// Kind(). analyzer and llm may be nil: with a nil analyzer the candidates
// are PriorityOrder (restricted to registered agents) with fixed, strictly
// descending confidences, and a nil llm disables merge-by-LLM, falling back
// straight to the longest non-error output.
func New(executors []Executor, analyzer *Analyzer, llm provider.Provider, cfg Config) *Orchestrator {
	agents := make(map[AgentKind]Executor, len(executors))
	for _, e := range executors {
		agents[e.Kind()] = e
	}
	return &Orchestrator{agents: agents, analyzer: analyzer, llm: llm, cfg: cfg.withDefaults()}
}

// Run selects, runs, and merges agents for query, returning the final
// answer text. An empty query.Strategy uses cfg.DefaultStrategy.
func (o *Orchestrator) Run(ctx context.Context, query Query, agentCtx Context) (text string, err error) {
	strategy := query.Strategy
	if strategy == "" {
		strategy = o.cfg.DefaultStrategy
	}

	ctx, span := tracing.Start(ctx, "orchestrator.Run", tracing.Attrs{
		"strategy":    string(strategy),
		"agent_count": len(o.agents),
	})
	defer func() { tracing.End(span, err) }()

	if len(o.agents) == 0 {
		return "", ErrNoAgents
	}

	switch strategy {
	case StrategySequential:
		return o.runSequential(ctx, query, agentCtx, o.orderedCandidates(ctx, query))
	case StrategyParallel:
		return o.runParallel(ctx, query, agentCtx, o.orderedCandidates(ctx, query))
	case StrategyConditional:
		return o.runConditional(ctx, query, agentCtx)
	case StrategyHybrid:
		return o.runHybrid(ctx, query, agentCtx)
	default:
		return o.runHybrid(ctx, query, agentCtx)
	}
}

// orderedCandidates asks the analyzer to rank agents, falling back to the
// static PriorityOrder when no analyzer is configured, and drops any
// candidate kind with no registered Executor.
func (o *Orchestrator) orderedCandidates(ctx context.Context, query Query) []Candidate {
	var candidates []Candidate
	if o.analyzer != nil {
		candidates = o.analyzer.Analyze(ctx, query)
	} else {
		n := len(PriorityOrder)
		for i, kind := range PriorityOrder {
			candidates = append(candidates, Candidate{Kind: kind, Confidence: float64(n-i) / float64(n)})
		}
	}

	out := candidates[:0]
	for _, c := range candidates {
		if _, ok := o.agents[c.Kind]; ok {
			out = append(out, c)
		}
	}
	return out
}

// runSequential runs the top candidate; on error, tries the next; stops
// at the first success.
func (o *Orchestrator) runSequential(ctx context.Context, query Query, agentCtx Context, candidates []Candidate) (string, error) {
	var lastErr error
	for _, c := range candidates {
		agent := o.agents[c.Kind]
		result := o.execute(ctx, agent, query, agentCtx)
		if result.ErrorKind == ErrorKindNone {
			return result.Text, nil
		}
		lastErr = result.Err
		slog.Warn("[Orchestrator] sequential candidate failed, trying next", "agent", agent.Name(), "error", result.Err)
	}
	if lastErr == nil {
		lastErr = ErrNoAgents
	}
	return "", fmt.Errorf("sequential: all candidates failed: %w", lastErr)
}

// runParallel runs up to cfg.MaxParallel candidates concurrently, each
// bounded by cfg.AgentTimeout, collects all non-error results, and merges
// them.
func (o *Orchestrator) runParallel(ctx context.Context, query Query, agentCtx Context, candidates []Candidate) (string, error) {
	results := o.executeParallel(ctx, query, agentCtx, candidates)

	var nonError []AgentResult
	for _, r := range results {
		if r.ErrorKind == ErrorKindNone {
			nonError = append(nonError, r)
		} else {
			slog.Warn("[Orchestrator] parallel agent failed", "agent", r.AgentName, "kind", r.ErrorKind, "error", r.Err)
		}
	}

	if len(nonError) == 0 {
		return "", fmt.Errorf("parallel: all %d candidates failed", len(results))
	}

	return o.merge(ctx, query, nonError)
}

// executeParallel is the bounded worker pool itself: golang.org/x/sync/
// errgroup with SetLimit(M), grounded on pkg/rag/embed/embed.go's
// embedBatchOptimized concurrency idiom. Each task carries its own
// deadline (cfg.AgentTimeout); a deadline expiry is recorded as a timeout
// AgentResult rather than propagated, so one slow or cancelled agent never
// fails the whole run.
func (o *Orchestrator) executeParallel(ctx context.Context, query Query, agentCtx Context, candidates []Candidate) []AgentResult {
	results := make([]AgentResult, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.MaxParallel)

	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			agent := o.agents[c.Kind]
			taskCtx, cancel := context.WithTimeout(gctx, o.cfg.AgentTimeout)
			defer cancel()
			results[i] = o.execute(taskCtx, agent, query, agentCtx)
			return nil
		})
	}
	_ = g.Wait() // task goroutines never return an error; failures live in AgentResult

	return results
}

// runConditional consults the analyzer; if its top confidence clears
// cfg.ConditionalThreshold, runs SEQUENTIAL with that single agent;
// otherwise escalates to PARALLEL.
func (o *Orchestrator) runConditional(ctx context.Context, query Query, agentCtx Context) (string, error) {
	candidates := o.orderedCandidates(ctx, query)
	if len(candidates) == 0 {
		return "", ErrNoAgents
	}

	if candidates[0].Confidence > o.cfg.ConditionalThreshold {
		return o.runSequential(ctx, query, agentCtx, candidates[:1])
	}
	return o.runParallel(ctx, query, agentCtx, candidates)
}

// runHybrid is CONDITIONAL with automatic fallback to SEQUENTIAL (over the
// full candidate list) if the merge step fails.
func (o *Orchestrator) runHybrid(ctx context.Context, query Query, agentCtx Context) (string, error) {
	candidates := o.orderedCandidates(ctx, query)
	if len(candidates) == 0 {
		return "", ErrNoAgents
	}

	if candidates[0].Confidence > o.cfg.ConditionalThreshold {
		return o.runSequential(ctx, query, agentCtx, candidates[:1])
	}

	text, err := o.runParallel(ctx, query, agentCtx, candidates)
	if err == nil {
		return text, nil
	}

	slog.Warn("[Orchestrator] hybrid parallel path failed, falling back to sequential", "error", err)
	return o.runSequential(ctx, query, agentCtx, candidates)
}

// execute runs one agent, recovering from a panic into an AgentResult so a
// misbehaving Executor can never crash the orchestrator or a sibling
// PARALLEL task.
func (o *Orchestrator) execute(ctx context.Context, agent Executor, query Query, agentCtx Context) (result AgentResult) {
	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
		if rec := recover(); rec != nil {
			result = AgentResult{
				AgentName: agent.Name(),
				Kind:      agent.Kind(),
				ErrorKind: ErrorKindTool,
				Err:       fmt.Errorf("agent panic: %v", rec),
				Duration:  time.Since(start),
			}
		}
	}()

	result = agent.Execute(ctx, query, agentCtx)
	if result.ErrorKind == ErrorKindNone && ctx.Err() != nil {
		result.ErrorKind = ErrorKindTimeout
		result.Err = ctx.Err()
	}
	return result
}

// mergePromptTemplate is the fixed merge-prompt template
// requires: the user query, each agent's output labelled by agent name,
// and instructions to produce a unified answer.
const mergeSystemPrompt = `You are combining the outputs of several specialized agents that each
independently answered the same user question. Produce one unified,
coherent answer that draws on all of their outputs without repeating
agent names or mentioning that multiple agents were involved.`

// merge implements "Result merging": if exactly one non-error
// result, return its text; else invoke the LLM with a fixed merge-prompt
// template; if merging itself fails, return the longest non-error agent
// output verbatim.
func (o *Orchestrator) merge(ctx context.Context, query Query, results []AgentResult) (string, error) {
	if len(results) == 1 {
		return results[0].Text, nil
	}

	if o.llm == nil {
		return longestOutput(results), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "User question: %s\n\n", query.Text)
	for _, r := range results {
		fmt.Fprintf(&sb, "Agent %q output:\n%s\n\n", r.AgentName, r.Text)
	}

	messages := []chat.Message{
		{Role: chat.MessageRoleSystem, Content: mergeSystemPrompt},
		{Role: chat.MessageRoleUser, Content: sb.String()},
	}

	text, _, err := provider.Complete(ctx, o.llm, messages, nil)
	if err != nil || strings.TrimSpace(text) == "" {
		slog.Warn("[Orchestrator] merge failed, returning longest agent output verbatim", "error", err)
		return longestOutput(results), nil
	}
	return text, nil
}

func longestOutput(results []AgentResult) string {
	sorted := append([]AgentResult(nil), results...)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i].Text) > len(sorted[j].Text) })
	if len(sorted) == 0 {
		return ""
	}
	return sorted[0].Text
}
