package pandasagent

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
	return chat.StreamChunk{ContentDelta: s.text, ToolCalls: s.toolCalls, Usage: &chat.Usage{InputTokens: 2, OutputTokens: 2}}, true
}

func (s *scriptedStream) Close() error { return nil }

func testTable() Table {
	return Table{
		Columns: []string{"name", "age"},
		Rows: [][]string{
			{"ada", "36"},
			{"grace", "85"},
			{"alan", "41"},
		},
	}
}

func TestLoadCSV(t *testing.T) {
	t.Parallel()
	tbl, err := LoadCSV([]byte("name,age\nada,36\ngrace,85\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "age"}, tbl.Columns)
	assert.Len(t, tbl.Rows, 2)
}

func TestExecuteAggregatesColumn(t *testing.T) {
	t.Parallel()

	argsJSON, err := json.Marshal(aggregateArgs{Column: "age", Func: "avg"})
	require.NoError(t, err)

	llm := &scriptedLLM{
		texts: []string{"", "The average age is 54."},
		toolCalls: [][]tools.ToolCall{
			{{ID: "1", Function: tools.FunctionCall{Name: "aggregate", Arguments: string(argsJSON)}}},
			nil,
		},
	}

	a := New("pandas-agent", llm, testTable(), 4)
	result := a.Execute(t.Context(), orchestrator.Query{Text: "what is the average age?"}, orchestrator.Context{})

	require.Equal(t, orchestrator.ErrorKindNone, result.ErrorKind)
	assert.Contains(t, result.UsedTools, "aggregate")
}

func TestFilterRowsNumericComparison(t *testing.T) {
	t.Parallel()
	a := New("pandas-agent", nil, testTable(), 4)

	argsJSON, err := json.Marshal(filterArgs{Column: "age", Op: "gt", Value: "40"})
	require.NoError(t, err)

	res, err := a.filterRows(t.Context(), tools.ToolCall{Function: tools.FunctionCall{Arguments: string(argsJSON)}})
	require.NoError(t, err)
	assert.Contains(t, res.Output, "2 matching rows")
}
