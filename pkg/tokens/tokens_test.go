package tokens

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAccumulatesConversationTotals(t *testing.T) {
	t.Parallel()
	tr := New(nil, DefaultPriceTable())

	h := tr.StartConversation("sess-1", "msg-1")
	tr.Record(t.Context(), h, "gpt-4o-mini", "rag-agent", "rag", 100, 50, 10*time.Millisecond, []string{"search_documents"})
	tr.Record(t.Context(), h, "gpt-4o-mini", "rag-agent", "rag", 40, 20, 5*time.Millisecond, nil)

	totals := tr.EndConversation(h)
	assert.Equal(t, 140, totals.InputTokens)
	assert.Equal(t, 70, totals.OutputTokens)
	assert.Equal(t, 2, totals.RecordCount)
	assert.Greater(t, totals.Cost, 0.0)
}

func TestRecordUnknownModelIsZeroCost(t *testing.T) {
	t.Parallel()
	tr := New(nil, DefaultPriceTable())

	h := tr.StartConversation("sess-2", "msg-1")
	tr.Record(t.Context(), h, "some-unpriced-model", "", "simple", 100, 100, 0, nil)

	totals := tr.EndConversation(h)
	assert.Equal(t, 0.0, totals.Cost)
}

func TestEndConversationOnUnknownHandleReturnsZero(t *testing.T) {
	t.Parallel()
	tr := New(nil, DefaultPriceTable())
	totals := tr.EndConversation(Handle{SessionID: "never-started"})
	assert.Zero(t, totals)
}

func TestTotalsBySessionAggregatesAcrossConversations(t *testing.T) {
	t.Parallel()
	tr := New(nil, DefaultPriceTable())

	h1 := tr.StartConversation("sess-3", "msg-1")
	tr.Record(t.Context(), h1, "gpt-4o", "", "simple", 10, 10, 0, nil)
	h2 := tr.StartConversation("sess-3", "msg-2")
	tr.Record(t.Context(), h2, "gpt-4o", "", "simple", 5, 5, 0, nil)

	totals := tr.TotalsBySession("sess-3")
	assert.Equal(t, 15, totals.InputTokens)
	assert.Equal(t, 15, totals.OutputTokens)
	assert.Equal(t, 2, totals.RecordCount)
}

func TestStorePersistsAcrossOpens(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "tokens.db")

	store, err := OpenStore(path)
	require.NoError(t, err)

	rec := Record{
		Handle:       Handle{SessionID: "sess-persist", MessageID: "msg-1"},
		Model:        "gpt-4o-mini",
		Mode:         "simple",
		InputTokens:  10,
		OutputTokens: 5,
		Cost:         0.001,
		RecordedAt:   time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.InsertRecord(t.Context(), rec))
	require.NoError(t, store.UpsertSessionSummary(t.Context(), "sess-persist", rec))
	require.NoError(t, store.UpsertGlobalStats(t.Context(), rec))
	require.NoError(t, store.Close())

	reopened, err := OpenStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	totals, err := reopened.SessionTotals(t.Context(), "sess-persist")
	require.NoError(t, err)
	assert.Equal(t, 10, totals.InputTokens)
	assert.Equal(t, 5, totals.OutputTokens)

	dateTotals, err := reopened.DateTotals(t.Context(), "2026-01-02")
	require.NoError(t, err)
	assert.Equal(t, 10, dateTotals.InputTokens)
}
