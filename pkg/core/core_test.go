package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskmind/core/pkg/chat"
	"github.com/deskmind/core/pkg/chatmode"
	"github.com/deskmind/core/pkg/config"
	"github.com/deskmind/core/pkg/orchestrator"
	"github.com/deskmind/core/pkg/rag/crypto"
	"github.com/deskmind/core/pkg/rag/embed"
	"github.com/deskmind/core/pkg/rag/ingest"
	"github.com/deskmind/core/pkg/rag/retriever"
	"github.com/deskmind/core/pkg/rag/vectorstore"
	"github.com/deskmind/core/pkg/sqliteutil"
	"github.com/deskmind/core/pkg/tokens"
	"github.com/deskmind/core/pkg/tools"
)

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

type scriptedLLM struct {
	calls int
	texts []string
}

func (s *scriptedLLM) ID() string { return "scripted" }

func (s *scriptedLLM) CreateChatCompletionStream(context.Context, []chat.Message, []tools.Tool) (chat.MessageStream, error) {
	i := s.calls
	s.calls++
	return &scriptedStream{text: s.texts[i]}, nil
}

type scriptedStream struct {
	text string
	sent bool
}

func (s *scriptedStream) Recv() (chat.StreamChunk, bool) {
	if s.sent {
		return chat.StreamChunk{}, false
	}
	s.sent = true
	return chat.StreamChunk{ContentDelta: s.text, Usage: &chat.Usage{InputTokens: 3, OutputTokens: 3}}, true
}

func (s *scriptedStream) Close() error { return nil }

func newTestCore(t *testing.T) (*Core, string) {
	t.Helper()
	ctx := t.Context()
	dbPath := filepath.Join(t.TempDir(), "deskmind.db")

	db, err := sqliteutil.OpenDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := vectorstore.OpenWithDB(db, "fake-embed")
	require.NoError(t, err)

	catalog, err := vectorstore.OpenCatalog(ctx, db)
	require.NoError(t, err)

	enc := crypto.New(fakeKeyManager{}, "test-key")
	salt, err := store.EnsureSalt(ctx, crypto.NewSalt)
	require.NoError(t, err)

	embedder := embed.New(fakeEmbedProvider{})
	pipeline := ingest.New(embedder, store, catalog, enc, salt, nil, ingest.Config{WindowSize: 500, OverlapRatio: 0.1})
	ret := retriever.New(embedder, store, enc, salt, nil, nil, nil, retriever.Config{K: 4})
	tracker := tokens.New(nil, nil)
	router := chatmode.New(&scriptedLLM{texts: []string{"hi there"}}, nil, nil, tracker, 4)

	c, err := New(Deps{
		Config:    config.Default(),
		Store:     store,
		Catalog:   catalog,
		Ingest:    pipeline,
		Retriever: ret,
		Tracker:   tracker,
		ChatMode:  router,
	})
	require.NoError(t, err)
	return c, dbPath
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngestThenSearch(t *testing.T) {
	t.Parallel()
	c, _ := newTestCore(t)
	ctx := t.Context()

	topic, err := c.CreateTopic(ctx, "notes")
	require.NoError(t, err)

	file := writeTempFile(t, "Paris is the capital of France.")

	result, err := c.Ingest(ctx, []string{file}, topic.ID, nil)
	require.NoError(t, err)
	assert.Len(t, result.Completed, 1)
	assert.Empty(t, result.Failed)

	passages, err := c.Search(ctx, "capital of France", 2, vectorstore.Filter{TopicID: topic.ID})
	require.NoError(t, err)
	require.NotEmpty(t, passages)
	assert.Contains(t, passages[0].Text, "Paris")
}

func TestCreateListDeleteTopic(t *testing.T) {
	t.Parallel()
	c, _ := newTestCore(t)
	ctx := t.Context()

	topic, err := c.CreateTopic(ctx, "scratch")
	require.NoError(t, err)

	topics, err := c.ListTopics(ctx)
	require.NoError(t, err)
	assert.Len(t, topics, 1)

	file := writeTempFile(t, "some scratch content here.")
	_, err = c.Ingest(ctx, []string{file}, topic.ID, nil)
	require.NoError(t, err)

	require.NoError(t, c.DeleteTopic(ctx, topic.ID))

	topics, err = c.ListTopics(ctx)
	require.NoError(t, err)
	assert.Empty(t, topics)
}

func TestDeleteDocumentRemovesChunks(t *testing.T) {
	t.Parallel()
	c, _ := newTestCore(t)
	ctx := t.Context()

	topic, err := c.CreateTopic(ctx, "docs")
	require.NoError(t, err)

	file := writeTempFile(t, "deletable document content.")
	_, err = c.Ingest(ctx, []string{file}, topic.ID, nil)
	require.NoError(t, err)

	docs, err := c.ListDocuments(ctx, topic.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	require.NoError(t, c.DeleteDocument(ctx, docs[0].ID))

	passages, err := c.Search(ctx, "deletable", 4, vectorstore.Filter{TopicID: topic.ID})
	require.NoError(t, err)
	assert.Empty(t, passages)
}

func TestProcessTurnRecordsTokenStats(t *testing.T) {
	t.Parallel()
	c, _ := newTestCore(t)
	ctx := t.Context()

	result, err := c.ProcessTurn(ctx, "session-1", "msg-1", "hello", chatmode.ModeSimple, nil, "", orchestrator.Strategy(""))
	require.NoError(t, err)
	assert.Equal(t, "hi there", result.Answer)

	stats := c.TokenStats(TokenStatsRange{SessionID: "session-1"})
	assert.Equal(t, 6, stats.InputTokens+stats.OutputTokens)
}

func TestProcessTurnWithoutRouterErrors(t *testing.T) {
	t.Parallel()
	c, _ := newTestCore(t)
	c.chatMode = nil

	_, err := c.ProcessTurn(t.Context(), "s", "m", "hi", chatmode.ModeSimple, nil, "", "")
	assert.Error(t, err)
}
