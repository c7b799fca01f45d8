// Package tokens implements the Token Tracker:
// four-dimensional accounting (session x mode x model x agent), a static
// price table, and best-effort asynchronous persistence across three
// relations, grounded on pkg/telemetry/client.go's in-memory SessionState
// aggregate and pkg/telemetry/types.go's event payload shapes, persisted
// via pkg/sqliteutil in the single-writer style.
package tokens

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deskmind/core/pkg/concurrent"
)

// Handle identifies one open conversation's token accounting, returned by
// StartConversation and passed to every Record/EndConversation call.
type Handle struct {
	SessionID string
	MessageID string
	id        string
}

// Record is one record() call's worth of usage, the detail
// row persisted to the token_usage relation.
type Record struct {
	Handle       Handle
	Model        string
	Agent        string // empty when the call is not agent-attributed
	Mode         string // "simple", "tool", "rag"
	InputTokens  int
	OutputTokens int
	Duration     time.Duration
	Tools        []string
	Cost         float64
	RecordedAt   time.Time
}

// Totals is the aggregate returns from end_conversation and
// from any totals-by-subset query: (session, mode, model, agent, date).
type Totals struct {
	InputTokens  int
	OutputTokens int
	Cost         float64
	RecordCount  int
}

// conversationState is the in-memory aggregate for one open Handle,
// authoritative during the conversation.
type conversationState struct {
	mu      sync.Mutex
	totals  Totals
	records []Record
}

// Tracker is the Token Tracker. Zero value is not usable; construct
// with New.
type Tracker struct {
	prices PriceTable
	store  *Store // nil disables persistence entirely (still tracks in-memory)

	conversations *concurrent.Map[string, *conversationState]

	mu          sync.Mutex
	bySession   map[string]*Totals
	byMode      map[string]*Totals
	byModel     map[string]*Totals
	byAgent     map[string]*Totals
	byDate      map[string]*Totals
	allRecords  []Record
}

// New constructs a Tracker. store may be nil, in which case Record/
// EndConversation only update in-memory aggregates (used in tests and by
// callers that don't need cross-session history).
func New(store *Store, prices PriceTable) *Tracker {
	if prices == nil {
		prices = DefaultPriceTable()
	}
	return &Tracker{
		prices:        prices,
		store:         store,
		conversations: concurrent.NewMap[string, *conversationState](),
		bySession:     make(map[string]*Totals),
		byMode:        make(map[string]*Totals),
		byModel:       make(map[string]*Totals),
		byAgent:       make(map[string]*Totals),
		byDate:        make(map[string]*Totals),
	}
}

// StartConversation opens a Handle for sessionID/messageID.
func (t *Tracker) StartConversation(sessionID, messageID string) Handle {
	h := Handle{SessionID: sessionID, MessageID: messageID, id: uuid.NewString()}
	t.conversations.Store(h.id, &conversationState{})
	return h
}

// Record accounts one model call against handle. Cost is
// computed here, from the static price table, and never recalculated
// retroactively. Persistence is asynchronous and best-effort: a DB write
// failure is logged, never returned, so it can never fail the user-facing
// turn.
func (t *Tracker) Record(ctx context.Context, handle Handle, model, agent, mode string, inputTokens, outputTokens int, duration time.Duration, usedTools []string) {
	cost, known := t.prices.Cost(model, inputTokens, outputTokens)
	if !known {
		slog.Warn("[Tokens] unknown model in price table, recording zero cost", "model", model)
	}

	rec := Record{
		Handle:       handle,
		Model:        model,
		Agent:        agent,
		Mode:         mode,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Duration:     duration,
		Tools:        usedTools,
		Cost:         cost,
		RecordedAt:   time.Now(),
	}

	if cs, ok := t.conversations.Load(handle.id); ok {
		cs.mu.Lock()
		cs.totals.InputTokens += inputTokens
		cs.totals.OutputTokens += outputTokens
		cs.totals.Cost += cost
		cs.totals.RecordCount++
		cs.records = append(cs.records, rec)
		cs.mu.Unlock()
	}

	t.mu.Lock()
	addTotals(t.bySession, handle.SessionID, rec)
	addTotals(t.byMode, mode, rec)
	addTotals(t.byModel, model, rec)
	if agent != "" {
		addTotals(t.byAgent, agent, rec)
	}
	addTotals(t.byDate, rec.RecordedAt.Format("2006-01-02"), rec)
	t.allRecords = append(t.allRecords, rec)
	t.mu.Unlock()

	if t.store != nil {
		go func() {
			if err := t.store.InsertRecord(context.WithoutCancel(ctx), rec); err != nil {
				slog.Error("[Tokens] failed to persist token_usage row", "error", err)
			}
			if err := t.store.UpsertSessionSummary(context.WithoutCancel(ctx), handle.SessionID, rec); err != nil {
				slog.Error("[Tokens] failed to persist session_token_summary", "error", err)
			}
			if err := t.store.UpsertGlobalStats(context.WithoutCancel(ctx), rec); err != nil {
				slog.Error("[Tokens] failed to persist global_token_stats", "error", err)
			}
		}()
	}
}

// EndConversation returns handle's accumulated totals. The conversation's
// in-memory state is not removed, so a later call with the same handle
// returns the same totals; the aggregate totals it already folded into
// bySession/byMode/etc. remain as well.
func (t *Tracker) EndConversation(handle Handle) Totals {
	cs, ok := t.conversations.Load(handle.id)
	if !ok {
		return Totals{}
	}
	cs.mu.Lock()
	totals := cs.totals
	cs.mu.Unlock()
	return totals
}

func addTotals(m map[string]*Totals, key string, rec Record) {
	tot, ok := m[key]
	if !ok {
		tot = &Totals{}
		m[key] = tot
	}
	tot.InputTokens += rec.InputTokens
	tot.OutputTokens += rec.OutputTokens
	tot.Cost += rec.Cost
	tot.RecordCount++
}

// TotalsBySession returns the in-memory totals for sessionID, snapshot-safe
// under concurrent Record calls.
func (t *Tracker) TotalsBySession(sessionID string) Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	return snapshot(t.bySession[sessionID])
}

// TotalsByMode returns in-memory totals for one Chat Mode Router state.
func (t *Tracker) TotalsByMode(mode string) Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	return snapshot(t.byMode[mode])
}

// TotalsByModel returns in-memory totals for one model name.
func (t *Tracker) TotalsByModel(model string) Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	return snapshot(t.byModel[model])
}

// TotalsByAgent returns in-memory totals for one agent name.
func (t *Tracker) TotalsByAgent(agent string) Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	return snapshot(t.byAgent[agent])
}

// TotalsByDate returns in-memory totals for one calendar date
// ("2006-01-02").
func (t *Tracker) TotalsByDate(date string) Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	return snapshot(t.byDate[date])
}

func snapshot(t *Totals) Totals {
	if t == nil {
		return Totals{}
	}
	return *t
}
