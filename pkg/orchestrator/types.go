// Package orchestrator implements the Orchestrator and
// the types every concrete agent is built against: Query,
// AgentResult, and the Executor interface. These live here rather than in
// pkg/agent to avoid an import cycle: the orchestrator owns agent lifecycle
// and selection, and the agent subpackages (pkg/agent/ragagent,
// pkg/agent/mcpagent, ...) each import this package to implement Executor,
// rather than the orchestrator importing every agent kind.
package orchestrator

import (
	"context"
	"time"

	"github.com/deskmind/core/pkg/tokens"
)

// Strategy selects how the Orchestrator runs candidate agents for one turn
//.
type Strategy string

const (
	// StrategySequential runs the top candidate; on error, tries the next;
	// stops at the first success.
	StrategySequential Strategy = "sequential"
	// StrategyParallel runs up to M candidates concurrently and merges
	// their non-error results.
	StrategyParallel Strategy = "parallel"
	// StrategyConditional consults the analyzer and runs SEQUENTIAL with a
	// single agent when its top confidence clears a threshold, otherwise
	// escalates to PARALLEL.
	StrategyConditional Strategy = "conditional"
	// StrategyHybrid is CONDITIONAL with automatic fallback to SEQUENTIAL
	// if merging the parallel results fails. It is the default strategy.
	StrategyHybrid Strategy = "hybrid"
)

// AgentKind tags the closed set of agent implementation names, and the
// order below fixes their tie-break priority.
type AgentKind string

const (
	AgentKindRAG    AgentKind = "rag"
	AgentKindMCP    AgentKind = "mcp"
	AgentKindPandas AgentKind = "pandas"
	AgentKindSQL    AgentKind = "sql"
	AgentKindPython AgentKind = "python"
	AgentKindFile   AgentKind = "file"
)

// PriorityOrder is the fixed tie-break order requires when the
// Hybrid Analyzer returns equal confidence scores.
var PriorityOrder = []AgentKind{
	AgentKindRAG,
	AgentKindMCP,
	AgentKindPandas,
	AgentKindSQL,
	AgentKindPython,
	AgentKindFile,
}

// Query is the immutable input to one orchestrated turn.
type Query struct {
	Text           string
	HistoryRef     string
	TopicFilter    string
	MetadataFilter map[string]string
	Strategy       Strategy // hint; empty means the Orchestrator's Config.DefaultStrategy
}

// Context carries the per-turn dependencies every Executor needs: chat
// history, topic filter, token tracker handle, cancellation token. The
// cancellation token is context.Context itself, per the
// cooperative-cancellation idiom used throughout this module.
type Context struct {
	History     []ChatTurn
	TopicFilter string
	TokenHandle tokens.Handle
}

// ChatTurn is one prior message in the conversation history an Executor may
// condition on.
type ChatTurn struct {
	Role    string
	Content string
}

// ErrorKind classifies why an Executor's AgentResult carries an error,
// mirroring the AgentError taxonomy of
type ErrorKind string

const (
	ErrorKindNone      ErrorKind = ""
	ErrorKindTimeout   ErrorKind = "timeout"
	ErrorKindTool      ErrorKind = "tool_failure"
	ErrorKindProvider  ErrorKind = "provider_failure"
	ErrorKindCancelled ErrorKind = "cancelled"
)

// AgentResult is what every Executor returns from Execute:
// output text, used-tools list, token usage, optional error kind, duration.
// Execute must never panic or return a Go error for an agent-level failure;
// errors are reported in ErrorKind/Err so the Orchestrator can record a
// per-agent failure without losing the rest of a PARALLEL run.
type AgentResult struct {
	AgentName string
	Kind      AgentKind
	Text      string
	UsedTools []string
	Usage     Usage
	ErrorKind ErrorKind
	Err       error
	Duration  time.Duration
}

// Usage is the per-call token accounting an Executor reports, handed to
// the Token Tracker by the Orchestrator after every Execute call.
type Usage struct {
	Model        string
	InputTokens  int
	OutputTokens int
}

// Executor is the base agent contract: execute a query against a context
// and return an AgentResult. Implementations live in pkg/agent/<kind>.
type Executor interface {
	// Name identifies this agent instance for result labelling and
	// used_tools reporting.
	Name() string
	// Kind reports the closed AgentKind this Executor implements, used for
	// the Hybrid Analyzer's candidate list and the tie-break priority
	// order.
	Kind() AgentKind
	// Execute runs query to completion or until ctx is done. It must not
	// panic; every failure mode is reported via AgentResult.ErrorKind.
	Execute(ctx context.Context, query Query, agentCtx Context) AgentResult
}
