package scriptagent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskmind/core/pkg/chat"
	"github.com/deskmind/core/pkg/orchestrator"
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
	return &scriptedStream{text: s.texts[i], toolCalls: s.toolCalls[i]}, nil
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
	return chat.StreamChunk{ContentDelta: s.text, ToolCalls: s.toolCalls, Usage: &chat.Usage{InputTokens: 1, OutputTokens: 1}}, true
}

func (s *scriptedStream) Close() error { return nil }

func TestRunScriptEvaluatesExpression(t *testing.T) {
	t.Parallel()
	res, err := runScript(t.Context(), tools.ToolCall{Function: tools.FunctionCall{Arguments: `{"script":"2 + 2"}`}})
	require.NoError(t, err)
	assert.Equal(t, "4", res.Output)
}

func TestExecuteDrivesScriptThenAnswers(t *testing.T) {
	t.Parallel()

	argsJSON, err := json.Marshal(runScriptArgs{Script: "21 * 2"})
	require.NoError(t, err)

	llm := &scriptedLLM{
		texts: []string{"", "The answer is 42."},
		toolCalls: [][]tools.ToolCall{
			{{ID: "1", Function: tools.FunctionCall{Name: "run_script", Arguments: string(argsJSON)}}},
			nil,
		},
	}

	a := New("script-agent", llm, 4)
	result := a.Execute(t.Context(), orchestrator.Query{Text: "what is 21 times 2?"}, orchestrator.Context{})

	require.Equal(t, orchestrator.ErrorKindNone, result.ErrorKind)
	assert.Contains(t, result.Text, "42")
	assert.Contains(t, result.UsedTools, "run_script")
}
