// Package vectorstore implements the Vector Store: a SQLite
// table per embedding model, each row a chunk's ciphertext, vector, and
// JSON metadata. A vector store must never mix embeddings from two
// different models in one similarity search; giving each model its own
// table makes that structurally impossible rather than relying on a filter
// a caller could forget.
package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/deskmind/core/pkg/sqliteutil"
)

// ErrInvalidGracePeriod is returned by Compact when called with a
// non-positive grace window. pkg/core never passes one: it substitutes its
// one-hour default for a non-positive value.
var ErrInvalidGracePeriod = errors.New("compaction grace period must be positive")

// Chunk is a single stored unit: ciphertext (see pkg/rag/crypto), its
// embedding, and the metadata the Retriever filters on.
type Chunk struct {
	ID         string
	TopicID    string
	SourcePath string
	FileHash   string
	ChunkIndex int
	Ciphertext []byte
	Nonce      []byte
	Embedding  []float64
	Metadata   map[string]string
	CreatedAt  time.Time
}

// Filter restricts a Search to chunks matching every non-zero field.
type Filter struct {
	TopicID  string
	Filename string
	Format   string
	Tag      string
}

// Store is a single embedding model's vector table.
type Store struct {
	db      *sql.DB
	modelID string
	table   string
}

var tableNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_]+`)

// sanitizeTableName maps a model ID to a safe SQL identifier. Table names
// are always derived from this function, never taken from user input
// directly, so the fmt.Sprintf-ed SQL below is not an injection surface.
func sanitizeTableName(prefix, modelID string) string {
	safe := tableNameSanitizer.ReplaceAllString(modelID, "_")
	return fmt.Sprintf("%s_%s", prefix, strings.ToLower(safe))
}

// Open opens (creating if needed) the vector table for one embedding model
// in its own database connection pool.
func Open(dbPath, modelID string) (*Store, error) {
	db, err := sqliteutil.OpenDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	s, err := OpenWithDB(db, modelID)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenWithDB opens a model's vector table against an already-open database
// handle, so the chunk table and the document/topic Catalog (and, when the
// model changes, a disjoint table in the same file) share one single-writer
// connection pool instead of racing two separate *sql.DB handles against
// the same SQLite file.
func OpenWithDB(db *sql.DB, modelID string) (*Store, error) {
	s := &Store{
		db:      db,
		modelID: modelID,
		table:   sanitizeTableName("rag_vectors", modelID),
	}

	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate vector store: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	topic_id TEXT NOT NULL,
	source_path TEXT NOT NULL,
	file_hash TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	ciphertext BLOB NOT NULL,
	nonce BLOB NOT NULL,
	embedding BLOB NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL,
	deleted_at TEXT
);
CREATE INDEX IF NOT EXISTS %s_topic_idx ON %s(topic_id);
CREATE INDEX IF NOT EXISTS %s_source_idx ON %s(source_path);
`, s.table, s.table, s.table, s.table, s.table)

	_, err := s.db.Exec(ddl)
	return err
}

// Close closes the underlying database handle. When a Store was created via
// OpenWithDB against a handle shared with a Catalog or another model's
// Store, only one owner should call Close.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ModelID() string {
	return s.modelID
}

// Add inserts a chunk. ID is generated if empty.
func (s *Store) Add(ctx context.Context, c Chunk) (string, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	metaJSON, err := json.Marshal(c.Metadata)
	if err != nil {
		return "", fmt.Errorf("marshal chunk metadata: %w", err)
	}

	embBytes, err := encodeVector(c.Embedding)
	if err != nil {
		return "", fmt.Errorf("encode embedding: %w", err)
	}

	query := fmt.Sprintf(`
INSERT INTO %s (id, topic_id, source_path, file_hash, chunk_index, ciphertext, nonce, embedding, metadata, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)

	_, err = s.db.ExecContext(ctx, query,
		c.ID, c.TopicID, c.SourcePath, c.FileHash, c.ChunkIndex,
		c.Ciphertext, c.Nonce, embBytes, string(metaJSON), c.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("insert chunk: %w", err)
	}

	return c.ID, nil
}

// AddBatch inserts many chunks in one transaction, the ingestion pipeline's
// per-file commit unit.
func (s *Store) AddBatch(ctx context.Context, chunks []Chunk) ([]string, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := fmt.Sprintf(`
INSERT INTO %s (id, topic_id, source_path, file_hash, chunk_index, ciphertext, nonce, embedding, metadata, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	ids := make([]string, len(chunks))
	now := time.Now().UTC().Format(time.RFC3339Nano)

	for i, c := range chunks {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		ids[i] = c.ID

		metaJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal chunk metadata: %w", err)
		}
		embBytes, err := encodeVector(c.Embedding)
		if err != nil {
			return nil, fmt.Errorf("encode embedding: %w", err)
		}

		createdAt := now
		if !c.CreatedAt.IsZero() {
			createdAt = c.CreatedAt.UTC().Format(time.RFC3339Nano)
		}

		if _, err := stmt.ExecContext(ctx, c.ID, c.TopicID, c.SourcePath, c.FileHash, c.ChunkIndex,
			c.Ciphertext, c.Nonce, embBytes, string(metaJSON), createdAt); err != nil {
			return nil, fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit batch: %w", err)
	}

	slog.Debug("[VectorStore] batch inserted", "model_id", s.modelID, "count", len(chunks))
	return ids, nil
}

// SearchCandidate is a row scanned out of the store before similarity
// scoring; it still carries ciphertext, left to the caller (the retriever,
// which holds the decryption key) to decrypt.
type SearchCandidate struct {
	Chunk
}

// Search returns every non-deleted chunk matching filter, for the caller to
// score by cosine similarity and truncate to top-k. Scoring happens outside
// the store: SQLite has no native vector index in this module (no vector
// extension exists anywhere in the retrieval pack), so Search performs an
// exact linear scan, filtered in SQL to shrink the candidate set first.
func (s *Store) Search(ctx context.Context, filter Filter) ([]SearchCandidate, error) {
	where, args := compileFilter(filter)

	query := fmt.Sprintf(`
SELECT id, topic_id, source_path, file_hash, chunk_index, ciphertext, nonce, embedding, metadata, created_at
FROM %s WHERE deleted_at IS NULL %s`, s.table, where)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var out []SearchCandidate
	for rows.Next() {
		var c SearchCandidate
		var embBytes []byte
		var metaJSON, createdAt string

		if err := rows.Scan(&c.ID, &c.TopicID, &c.SourcePath, &c.FileHash, &c.ChunkIndex,
			&c.Ciphertext, &c.Nonce, &embBytes, &metaJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		c.Embedding, err = decodeVector(embBytes)
		if err != nil {
			return nil, fmt.Errorf("decode embedding: %w", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &c.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)

		out = append(out, c)
	}
	return out, rows.Err()
}

// GetByID fetches a single live chunk by its primary key, letting a caller
// that only holds a bare chunk ID (the lexical index, which stores plaintext
// content outside this table) resolve it back into a full row.
func (s *Store) GetByID(ctx context.Context, id string) (SearchCandidate, error) {
	query := fmt.Sprintf(`
SELECT id, topic_id, source_path, file_hash, chunk_index, ciphertext, nonce, embedding, metadata, created_at
FROM %s WHERE id = ? AND deleted_at IS NULL`, s.table)

	var c SearchCandidate
	var embBytes []byte
	var metaJSON, createdAt string

	err := s.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.TopicID, &c.SourcePath, &c.FileHash, &c.ChunkIndex,
		&c.Ciphertext, &c.Nonce, &embBytes, &metaJSON, &createdAt)
	if err != nil {
		return SearchCandidate{}, fmt.Errorf("get chunk %s: %w", id, err)
	}

	c.Embedding, err = decodeVector(embBytes)
	if err != nil {
		return SearchCandidate{}, fmt.Errorf("decode embedding: %w", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &c.Metadata); err != nil {
		return SearchCandidate{}, fmt.Errorf("unmarshal metadata: %w", err)
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)

	return c, nil
}

// compileFilter builds the optional WHERE clause fragment (appended after
// "deleted_at IS NULL") for the non-zero fields of filter. topic_id,
// source_path, and format are plain columns/metadata keys; tag membership
// is checked with a LIKE match on the comma-delimited "tags" metadata entry
// (stored as a comma-separated string, since the metadata column itself is
// a flat string map, not nested JSON).
func compileFilter(filter Filter) (string, []any) {
	var clauses []string
	var args []any

	if filter.TopicID != "" {
		clauses = append(clauses, "topic_id = ?")
		args = append(args, filter.TopicID)
	}
	if filter.Filename != "" {
		clauses = append(clauses, "source_path = ?")
		args = append(args, filter.Filename)
	}
	if filter.Format != "" {
		clauses = append(clauses, "json_extract(metadata, '$.format') = ?")
		args = append(args, filter.Format)
	}
	if filter.Tag != "" {
		clauses = append(clauses, "(',' || json_extract(metadata, '$.tags') || ',') LIKE ?")
		args = append(args, "%,"+filter.Tag+",%")
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "AND " + strings.Join(clauses, " AND "), args
}

// DeleteByPath soft-deletes every chunk for a source path. Ingestion uses it
// to roll back a cancelled batch; re-ingesting a file does not call it.
func (s *Store) DeleteByPath(ctx context.Context, sourcePath string) error {
	query := fmt.Sprintf(`UPDATE %s SET deleted_at = ? WHERE source_path = ? AND deleted_at IS NULL`, s.table)
	_, err := s.db.ExecContext(ctx, query, time.Now().UTC().Format(time.RFC3339Nano), sourcePath)
	return err
}

// DeleteByTopic soft-deletes every chunk belonging to a topic.
func (s *Store) DeleteByTopic(ctx context.Context, topicID string) error {
	query := fmt.Sprintf(`UPDATE %s SET deleted_at = ? WHERE topic_id = ? AND deleted_at IS NULL`, s.table)
	_, err := s.db.ExecContext(ctx, query, time.Now().UTC().Format(time.RFC3339Nano), topicID)
	return err
}

// Count returns the number of live chunks, optionally scoped to a topic.
func (s *Store) Count(ctx context.Context, topicID string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE deleted_at IS NULL`, s.table)
	args := []any{}
	if topicID != "" {
		query += " AND topic_id = ?"
		args = append(args, topicID)
	}

	var n int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

// minCompactionGrace is the design's Open-Question resolution: compaction
// must never be invoked with a zero or negative grace window, since a
// zero window could reclaim rows a concurrent reader is still scanning.
const minCompactionGrace = time.Hour

// Compact permanently removes rows soft-deleted more than gracePeriod ago.
// gracePeriod <= 0 is rejected rather than silently clamped: callers must
// explicitly choose a window, and the minimum enforced floor is one hour.
func (s *Store) Compact(ctx context.Context, gracePeriod time.Duration) (int64, error) {
	if gracePeriod <= 0 {
		return 0, ErrInvalidGracePeriod
	}
	if gracePeriod < minCompactionGrace {
		gracePeriod = minCompactionGrace
	}

	cutoff := time.Now().Add(-gracePeriod).UTC().Format(time.RFC3339Nano)
	query := fmt.Sprintf(`DELETE FROM %s WHERE deleted_at IS NOT NULL AND deleted_at < ?`, s.table)

	res, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("compact: %w", err)
	}

	n, _ := res.RowsAffected()
	slog.Debug("[VectorStore] compacted", "model_id", s.modelID, "removed", n, "grace_period", gracePeriod)
	return n, nil
}

func encodeVector(v []float64) ([]byte, error) {
	return json.Marshal(v)
}

func decodeVector(b []byte) ([]float64, error) {
	var v []float64
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}
