package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExecutor is a scripted Executor for orchestrator tests: it returns a
// fixed result after an optional delay, or blocks until ctx is done.
type fakeExecutor struct {
	name  string
	kind  AgentKind
	delay time.Duration
	text  string
	err   error
	block bool
}

func (f *fakeExecutor) Name() string    { return f.name }
func (f *fakeExecutor) Kind() AgentKind { return f.kind }

func (f *fakeExecutor) Execute(ctx context.Context, _ Query, _ Context) AgentResult {
	if f.block {
		<-ctx.Done()
		return AgentResult{AgentName: f.name, Kind: f.kind, ErrorKind: ErrorKindTimeout, Err: ctx.Err()}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return AgentResult{AgentName: f.name, Kind: f.kind, ErrorKind: ErrorKindTimeout, Err: ctx.Err()}
		}
	}
	if f.err != nil {
		return AgentResult{AgentName: f.name, Kind: f.kind, ErrorKind: ErrorKindTool, Err: f.err}
	}
	return AgentResult{AgentName: f.name, Kind: f.kind, Text: f.text}
}

func TestRunNoAgentsReturnsStructuredError(t *testing.T) {
	t.Parallel()
	o := New(nil, nil, nil, Config{})
	_, err := o.Run(t.Context(), Query{Text: "hi"}, Context{})
	require.ErrorIs(t, err, ErrNoAgents)
}

func TestRunSequentialSkipsFailingCandidate(t *testing.T) {
	t.Parallel()
	agents := []Executor{
		&fakeExecutor{name: "rag", kind: AgentKindRAG, err: errors.New("boom")},
		&fakeExecutor{name: "mcp", kind: AgentKindMCP, text: "answer from mcp"},
	}
	o := New(agents, nil, nil, Config{})

	text, err := o.Run(t.Context(), Query{Text: "q", Strategy: StrategySequential}, Context{})
	require.NoError(t, err)
	assert.Equal(t, "answer from mcp", text)
}

func TestRunParallelMergesWithoutLLM(t *testing.T) {
	t.Parallel()
	agents := []Executor{
		&fakeExecutor{name: "a", kind: AgentKindRAG, text: "short"},
		&fakeExecutor{name: "b", kind: AgentKindMCP, text: "a much longer answer from b"},
	}
	o := New(agents, nil, nil, Config{})

	text, err := o.Run(t.Context(), Query{Text: "q", Strategy: StrategyParallel}, Context{})
	require.NoError(t, err)
	assert.Equal(t, "a much longer answer from b", text)
}

func TestRunParallelOneSlowOneFastDeadlineEnforced(t *testing.T) {
	t.Parallel()
	agents := []Executor{
		&fakeExecutor{name: "fast", kind: AgentKindRAG, delay: 50 * time.Millisecond, text: "fast answer"},
		&fakeExecutor{name: "slow", kind: AgentKindMCP, block: true},
	}
	o := New(agents, nil, nil, Config{AgentTimeout: 200 * time.Millisecond})

	start := time.Now()
	text, err := o.Run(t.Context(), Query{Text: "q", Strategy: StrategyParallel}, Context{})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "fast answer", text)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestRunParallelAllFailReturnsError(t *testing.T) {
	t.Parallel()
	agents := []Executor{
		&fakeExecutor{name: "a", kind: AgentKindRAG, err: errors.New("fail a")},
		&fakeExecutor{name: "b", kind: AgentKindMCP, err: errors.New("fail b")},
	}
	o := New(agents, nil, nil, Config{})

	_, err := o.Run(t.Context(), Query{Text: "q", Strategy: StrategyParallel}, Context{})
	require.Error(t, err)
}

func TestRunSequentialPanicRecoveredAsAgentError(t *testing.T) {
	t.Parallel()
	agents := []Executor{
		&panicExecutor{name: "boom", kind: AgentKindRAG},
		&fakeExecutor{name: "ok", kind: AgentKindMCP, text: "recovered fine"},
	}
	o := New(agents, nil, nil, Config{})

	text, err := o.Run(t.Context(), Query{Text: "q", Strategy: StrategySequential}, Context{})
	require.NoError(t, err)
	assert.Equal(t, "recovered fine", text)
}

type panicExecutor struct {
	name string
	kind AgentKind
}

func (p *panicExecutor) Name() string    { return p.name }
func (p *panicExecutor) Kind() AgentKind { return p.kind }
func (p *panicExecutor) Execute(context.Context, Query, Context) AgentResult {
	panic("agent exploded")
}

func TestAnalyzerStaticFallbackOrdersByPriority(t *testing.T) {
	t.Parallel()
	a := NewAnalyzer(nil, []AvailableAgent{
		{Kind: AgentKindFile, Name: "file"},
		{Kind: AgentKindRAG, Name: "rag"},
		{Kind: AgentKindSQL, Name: "sql"},
	})

	candidates := a.Analyze(t.Context(), Query{Text: "anything"})
	require.NotEmpty(t, candidates)
	assert.Equal(t, AgentKindRAG, candidates[0].Kind)
}
