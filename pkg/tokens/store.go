package tokens

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deskmind/core/pkg/sqliteutil"
)

// Store is the SQLite persistence side of the Token Tracker: three relations, token_usage (detail),
// session_token_summary (one row per session, JSON breakdowns), and
// global_token_stats (one row per calendar date). Grounded on
// pkg/sqliteutil's single-writer OpenDB and pkg/rag/vectorstore's
// migrate-on-open idiom.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the token tracker database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sqliteutil.OpenDB(path)
	if err != nil {
		return nil, fmt.Errorf("open token store: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate token store: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS token_usage (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	message_id TEXT NOT NULL,
	model TEXT NOT NULL,
	agent TEXT NOT NULL DEFAULT '',
	mode TEXT NOT NULL,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	tools TEXT NOT NULL DEFAULT '',
	cost REAL NOT NULL,
	recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_token_usage_session ON token_usage(session_id);
CREATE INDEX IF NOT EXISTS idx_token_usage_recorded_at ON token_usage(recorded_at);

CREATE TABLE IF NOT EXISTS session_token_summary (
	session_id TEXT PRIMARY KEY,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost REAL NOT NULL DEFAULT 0,
	record_count INTEGER NOT NULL DEFAULT 0,
	by_mode TEXT NOT NULL DEFAULT '{}',
	by_model TEXT NOT NULL DEFAULT '{}',
	by_agent TEXT NOT NULL DEFAULT '{}',
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS global_token_stats (
	date TEXT PRIMARY KEY,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost REAL NOT NULL DEFAULT 0,
	record_count INTEGER NOT NULL DEFAULT 0
);
`)
	return err
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// InsertRecord appends one detail row to token_usage.
func (s *Store) InsertRecord(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO token_usage (session_id, message_id, model, agent, mode, input_tokens, output_tokens, duration_ms, tools, cost, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Handle.SessionID, rec.Handle.MessageID, rec.Model, rec.Agent, rec.Mode,
		rec.InputTokens, rec.OutputTokens, rec.Duration.Milliseconds(), strings.Join(rec.Tools, ","),
		rec.Cost, rec.RecordedAt.Format("2006-01-02T15:04:05Z07:00"))
	return err
}

// UpsertSessionSummary folds rec into session_token_summary's running
// JSON breakdowns by mode/model/agent, one row per session.
func (s *Store) UpsertSessionSummary(ctx context.Context, sessionID string, rec Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var inputTokens, outputTokens, recordCount int
	var cost float64
	var byModeJSON, byModelJSON, byAgentJSON string

	row := tx.QueryRowContext(ctx, `SELECT input_tokens, output_tokens, cost, record_count, by_mode, by_model, by_agent FROM session_token_summary WHERE session_id = ?`, sessionID)
	switch err := row.Scan(&inputTokens, &outputTokens, &cost, &recordCount, &byModeJSON, &byModelJSON, &byAgentJSON); {
	case err == sql.ErrNoRows:
		byModeJSON, byModelJSON, byAgentJSON = "{}", "{}", "{}"
	case err != nil:
		return err
	}

	byMode := decodeBreakdown(byModeJSON)
	byModel := decodeBreakdown(byModelJSON)
	byAgent := decodeBreakdown(byAgentJSON)

	byMode[rec.Mode] += rec.InputTokens + rec.OutputTokens
	byModel[rec.Model] += rec.InputTokens + rec.OutputTokens
	if rec.Agent != "" {
		byAgent[rec.Agent] += rec.InputTokens + rec.OutputTokens
	}

	inputTokens += rec.InputTokens
	outputTokens += rec.OutputTokens
	cost += rec.Cost
	recordCount++

	_, err = tx.ExecContext(ctx, `
INSERT INTO session_token_summary (session_id, input_tokens, output_tokens, cost, record_count, by_mode, by_model, by_agent, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
	input_tokens = excluded.input_tokens,
	output_tokens = excluded.output_tokens,
	cost = excluded.cost,
	record_count = excluded.record_count,
	by_mode = excluded.by_mode,
	by_model = excluded.by_model,
	by_agent = excluded.by_agent,
	updated_at = excluded.updated_at`,
		sessionID, inputTokens, outputTokens, cost, recordCount,
		encodeBreakdown(byMode), encodeBreakdown(byModel), encodeBreakdown(byAgent),
		rec.RecordedAt.Format("2006-01-02T15:04:05Z07:00"))
	if err != nil {
		return err
	}

	return tx.Commit()
}

// UpsertGlobalStats folds rec into global_token_stats, one row per
// calendar date.
func (s *Store) UpsertGlobalStats(ctx context.Context, rec Record) error {
	date := rec.RecordedAt.Format("2006-01-02")
	_, err := s.db.ExecContext(ctx, `
INSERT INTO global_token_stats (date, input_tokens, output_tokens, cost, record_count)
VALUES (?, ?, ?, ?, 1)
ON CONFLICT(date) DO UPDATE SET
	input_tokens = input_tokens + excluded.input_tokens,
	output_tokens = output_tokens + excluded.output_tokens,
	cost = cost + excluded.cost,
	record_count = record_count + 1`,
		date, rec.InputTokens, rec.OutputTokens, rec.Cost)
	return err
}

// SessionTotals reads session_token_summary's persisted aggregate for
// sessionID, used for cross-session queries.
func (s *Store) SessionTotals(ctx context.Context, sessionID string) (Totals, error) {
	var t Totals
	row := s.db.QueryRowContext(ctx, `SELECT input_tokens, output_tokens, cost, record_count FROM session_token_summary WHERE session_id = ?`, sessionID)
	err := row.Scan(&t.InputTokens, &t.OutputTokens, &t.Cost, &t.RecordCount)
	if err == sql.ErrNoRows {
		return Totals{}, nil
	}
	return t, err
}

// DateTotals reads global_token_stats for one calendar date
// ("2006-01-02").
func (s *Store) DateTotals(ctx context.Context, date string) (Totals, error) {
	var t Totals
	row := s.db.QueryRowContext(ctx, `SELECT input_tokens, output_tokens, cost, record_count FROM global_token_stats WHERE date = ?`, date)
	err := row.Scan(&t.InputTokens, &t.OutputTokens, &t.Cost, &t.RecordCount)
	if err == sql.ErrNoRows {
		return Totals{}, nil
	}
	return t, err
}

func decodeBreakdown(raw string) map[string]int {
	out := make(map[string]int)
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func encodeBreakdown(m map[string]int) string {
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}
