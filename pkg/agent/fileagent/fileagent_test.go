package fileagent

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
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
	return chat.StreamChunk{ContentDelta: s.text, ToolCalls: s.toolCalls, Usage: &chat.Usage{InputTokens: 3, OutputTokens: 3}}, true
}

func (s *scriptedStream) Close() error { return nil }

func TestExecuteReadsFileWithinRoot(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hello from notes"), 0o600))

	argsJSON, err := json.Marshal(readFileArgs{Path: "notes.txt"})
	require.NoError(t, err)

	llm := &scriptedLLM{
		texts: []string{"", "The file says hello from notes."},
		toolCalls: [][]tools.ToolCall{
			{{ID: "1", Function: tools.FunctionCall{Name: "read_file", Arguments: string(argsJSON)}}},
			nil,
		},
	}

	a := New("file-agent", llm, root, 4)
	result := a.Execute(t.Context(), orchestrator.Query{Text: "what does notes.txt say?"}, orchestrator.Context{})

	require.Equal(t, orchestrator.ErrorKindNone, result.ErrorKind)
	assert.Contains(t, result.Text, "hello from notes")
	assert.Contains(t, result.UsedTools, "read_file")
}

func TestReadFileRejectsEscapeFromRoot(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	a := New("file-agent", nil, root, 4)

	_, err := a.readFile(t.Context(), tools.ToolCall{Function: tools.FunctionCall{Arguments: `{"path":"../../etc/passwd"}`}})
	assert.Error(t, err)
}
