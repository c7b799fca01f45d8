package chatmode

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskmind/core/pkg/chat"
	"github.com/deskmind/core/pkg/orchestrator"
	"github.com/deskmind/core/pkg/tokens"
	"github.com/deskmind/core/pkg/tools"
)

type scriptedLLM struct {
	calls     int
	toolCalls [][]tools.ToolCall
	texts     []string
}

func (s *scriptedLLM) ID() string { return "scripted" }

func (s *scriptedLLM) CreateChatCompletionStream(context.Context, []chat.Message, []tools.Tool) (chat.MessageStream, error) {
	i := s.calls
	s.calls++
	var toolCalls []tools.ToolCall
	if i < len(s.toolCalls) {
		toolCalls = s.toolCalls[i]
	}
	return &scriptedStream{text: s.texts[i], toolCalls: toolCalls}, nil
}

type scriptedStream struct {
	text      string
	toolCalls []tools.ToolCall
	sent      bool
}

func (s *scriptedStream) Recv() (chat.StreamChunk, bool) {
	if s.sent {
		return chat.StreamChunk{}, false
	}
	s.sent = true
	return chat.StreamChunk{ContentDelta: s.text, ToolCalls: s.toolCalls, Usage: &chat.Usage{InputTokens: 10, OutputTokens: 5}}, true
}

func (s *scriptedStream) Close() error { return nil }

func TestProcessSimpleRecordsTokens(t *testing.T) {
	t.Parallel()
	llm := &scriptedLLM{texts: []string{"hello there"}}
	tracker := tokens.New(nil, nil)
	router := New(llm, nil, nil, tracker, 4)

	result, err := router.Process(t.Context(), ModeSimple, Input{SessionID: "s1", MessageID: "m1", Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello there", result.Answer)
	assert.Equal(t, 15, result.Usage.InputTokens+result.Usage.OutputTokens)
}

func TestProcessRAGRequiresOrchestrator(t *testing.T) {
	t.Parallel()
	llm := &scriptedLLM{texts: []string{"unused"}}
	tracker := tokens.New(nil, nil)
	router := New(llm, nil, nil, tracker, 4)

	_, err := router.Process(t.Context(), ModeRAG, Input{SessionID: "s1", Text: "anything"})
	assert.Error(t, err)
}

func TestProcessUnknownModeErrors(t *testing.T) {
	t.Parallel()
	tracker := tokens.New(nil, nil)
	router := New(&scriptedLLM{}, nil, nil, tracker, 4)

	_, err := router.Process(t.Context(), Mode("bogus"), Input{})
	assert.Error(t, err)
}

var _ orchestrator.Executor = (*fakeExecutor)(nil)

type fakeExecutor struct{}

func (fakeExecutor) Name() string                 { return "fake" }
func (fakeExecutor) Kind() orchestrator.AgentKind { return orchestrator.AgentKindRAG }
func (fakeExecutor) Execute(context.Context, orchestrator.Query, orchestrator.Context) orchestrator.AgentResult {
	return orchestrator.AgentResult{AgentName: "fake", Kind: orchestrator.AgentKindRAG, Text: "ok"}
}

func TestProcessRAGDelegatesToOrchestrator(t *testing.T) {
	t.Parallel()
	tracker := tokens.New(nil, nil)
	orch := orchestrator.New([]orchestrator.Executor{fakeExecutor{}}, nil, nil, orchestrator.Config{})
	router := New(&scriptedLLM{}, nil, orch, tracker, 4)

	result, err := router.Process(t.Context(), ModeRAG, Input{SessionID: "s1", Text: "question", Strategy: orchestrator.StrategySequential})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Answer)
}
