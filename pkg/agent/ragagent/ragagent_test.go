package ragagent

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskmind/core/pkg/chat"
	"github.com/deskmind/core/pkg/orchestrator"
	"github.com/deskmind/core/pkg/rag/crypto"
	"github.com/deskmind/core/pkg/rag/embed"
	"github.com/deskmind/core/pkg/rag/retriever"
	"github.com/deskmind/core/pkg/rag/vectorstore"
	"github.com/deskmind/core/pkg/tools"
)

// scriptedLLM replays a fixed sequence of responses: first a tool call,
// then a final answer, mimicking a one-round ReAct exchange.
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
	return chat.StreamChunk{ContentDelta: s.text, ToolCalls: s.toolCalls, Usage: &chat.Usage{InputTokens: 5, OutputTokens: 5}}, true
}

func (s *scriptedStream) Close() error { return nil }

type fakeEmbedProvider struct{}

func (fakeEmbedProvider) ID() string { return "fake-embed" }
func (fakeEmbedProvider) CreateChatCompletionStream(context.Context, []chat.Message, []tools.Tool) (chat.MessageStream, error) {
	return nil, nil
}
func (fakeEmbedProvider) CreateEmbedding(context.Context, string) ([]float64, error) {
	return []float64{1, 0}, nil
}

type fakeKeyManager struct{}

func (fakeKeyManager) GetSecret(context.Context, string) ([]byte, error) {
	return []byte("test-key-material"), nil
}

func newTestRetriever(t *testing.T) *retriever.Retriever {
	t.Helper()
	ctx := t.Context()

	store, err := vectorstore.Open(filepath.Join(t.TempDir(), "vectors.db"), "fake-embed")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	enc := crypto.New(fakeKeyManager{}, "test-key")
	salt, err := store.EnsureSalt(ctx, crypto.NewSalt)
	require.NoError(t, err)

	cipher, nonce, err := enc.Encrypt(ctx, salt, []byte("Paris is the capital of France."))
	require.NoError(t, err)
	_, err = store.Add(ctx, vectorstore.Chunk{
		TopicID: "t1", SourcePath: "france.txt", Ciphertext: cipher, Nonce: nonce,
		Embedding: []float64{1, 0}, Metadata: map[string]string{"format": "txt"},
	})
	require.NoError(t, err)

	return retriever.New(embed.New(fakeEmbedProvider{}), store, enc, salt, nil, nil, nil, retriever.Config{K: 2})
}

func TestExecuteCallsToolThenAnswers(t *testing.T) {
	t.Parallel()
	ret := newTestRetriever(t)

	argsJSON, err := json.Marshal(searchDocumentsArgs{Query: "capital of France"})
	require.NoError(t, err)

	llm := &scriptedLLM{
		texts: []string{"", "The capital of France is Paris."},
		toolCalls: [][]tools.ToolCall{
			{{ID: "1", Function: tools.FunctionCall{Name: "search_documents", Arguments: string(argsJSON)}}},
			nil,
		},
	}

	a := New("rag-agent", llm, ret, 4)
	result := a.Execute(t.Context(), orchestrator.Query{Text: "What is the capital of France?"}, orchestrator.Context{})

	require.Equal(t, orchestrator.ErrorKindNone, result.ErrorKind)
	assert.Contains(t, result.Text, "Paris")
	assert.Contains(t, result.UsedTools, "search_documents")
}

func TestExecuteNeverPanicsOnProviderFailure(t *testing.T) {
	t.Parallel()
	ret := newTestRetriever(t)
	a := New("rag-agent", &erroringLLM{}, ret, 4)

	result := a.Execute(t.Context(), orchestrator.Query{Text: "anything"}, orchestrator.Context{})
	assert.Equal(t, orchestrator.ErrorKindProvider, result.ErrorKind)
	assert.Error(t, result.Err)
}

type erroringLLM struct{}

func (erroringLLM) ID() string { return "erroring" }
func (erroringLLM) CreateChatCompletionStream(context.Context, []chat.Message, []tools.Tool) (chat.MessageStream, error) {
	return nil, assertErr{}
}

type assertErr struct{}

func (assertErr) Error() string { return "provider unavailable" }
