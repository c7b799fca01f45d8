package sqlagent

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskmind/core/pkg/chat"
	"github.com/deskmind/core/pkg/orchestrator"
	"github.com/deskmind/core/pkg/sqliteutil"
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
	return chat.StreamChunk{ContentDelta: s.text, ToolCalls: s.toolCalls, Usage: &chat.Usage{InputTokens: 4, OutputTokens: 4}}, true
}

func (s *scriptedStream) Close() error { return nil }

func TestExecuteRunsReadOnlyQuery(t *testing.T) {
	t.Parallel()
	db, err := sqliteutil.OpenDB(filepath.Join(t.TempDir(), "data.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE users (id INTEGER, name TEXT); INSERT INTO users VALUES (1, 'ada')`)
	require.NoError(t, err)

	argsJSON, err := json.Marshal(runQueryArgs{Query: "SELECT name FROM users"})
	require.NoError(t, err)

	llm := &scriptedLLM{
		texts: []string{"", "The only user is ada."},
		toolCalls: [][]tools.ToolCall{
			{{ID: "1", Function: tools.FunctionCall{Name: "run_query", Arguments: string(argsJSON)}}},
			nil,
		},
	}

	a := New("sql-agent", llm, db, 4)
	result := a.Execute(t.Context(), orchestrator.Query{Text: "who is in the users table?"}, orchestrator.Context{})

	require.Equal(t, orchestrator.ErrorKindNone, result.ErrorKind)
	assert.Contains(t, result.Text, "ada")
	assert.Contains(t, result.UsedTools, "run_query")
}

func TestRunQueryRejectsWrites(t *testing.T) {
	t.Parallel()
	db, err := sqliteutil.OpenDB(filepath.Join(t.TempDir(), "data.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	a := New("sql-agent", nil, db, 4)
	_, err = a.runQuery(t.Context(), tools.ToolCall{Function: tools.FunctionCall{Arguments: `{"query":"DROP TABLE users"}`}})
	assert.Error(t, err)
}
