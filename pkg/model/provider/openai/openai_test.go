package openai

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskmind/core/pkg/chat"
	"github.com/deskmind/core/pkg/model/provider/base"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New("test-key", base.Config{Model: "gpt-4o-mini"}, option.WithBaseURL(baseURL))
	require.NoError(t, err)
	return c
}

func TestIDIncludesProviderAndModel(t *testing.T) {
	t.Parallel()
	c, err := New("test-key", base.Config{Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o-mini", c.ID())
}

func TestNewRejectsMissingAPIKey(t *testing.T) {
	t.Parallel()
	_, err := New("", base.Config{Model: "gpt-4o-mini"})
	assert.Error(t, err)
}

func TestCreateEmbeddingParsesResponse(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"object": "list",
			"data": [{"object": "embedding", "index": 0, "embedding": [0.1, 0.2, 0.3]}],
			"model": "gpt-4o-mini",
			"usage": {"prompt_tokens": 3, "total_tokens": 3}
		}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	vec, err := c.CreateEmbedding(t.Context(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, vec)
}

func TestCreateEmbeddingsOrdersByIndex(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"object": "list",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [0.2]},
				{"object": "embedding", "index": 0, "embedding": [0.1]}
			],
			"model": "gpt-4o-mini",
			"usage": {"prompt_tokens": 2, "total_tokens": 2}
		}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	vecs, err := c.CreateEmbeddings(t.Context(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float64{0.1}, vecs[0])
	assert.Equal(t, []float64{0.2}, vecs[1])
}

func TestCreateChatCompletionStreamAccumulatesContent(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"id":"1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"role":"assistant","content":"Hello"},"finish_reason":null}]}`,
			`{"id":"1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":" there"},"finish_reason":null}]}`,
			`{"id":"1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`,
		}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	stream, err := c.CreateChatCompletionStream(t.Context(), []chat.Message{
		{Role: chat.MessageRoleUser, Content: "hi"},
	}, nil)
	require.NoError(t, err)
	defer stream.Close()

	var text string
	var usage *chat.Usage
	for {
		chunk, ok := stream.Recv()
		if !ok {
			break
		}
		require.NoError(t, chunk.Err)
		text += chunk.ContentDelta
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
	}

	assert.Equal(t, "Hello there", text)
	require.NotNil(t, usage)
	assert.Equal(t, 5, usage.InputTokens)
	assert.Equal(t, 2, usage.OutputTokens)
}
