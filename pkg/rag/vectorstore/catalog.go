package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Document is the data-model Document: a user-supplied source
// file, owning the chunks produced from it. The vector store owns this
// table too (ownership rule in: "the vector store exclusively owns
// chunk persistence and retrieval") since a document row and its chunks are
// deleted together.
type Document struct {
	ID         string
	TopicID    string
	SourcePath string
	Format     string
	ByteSize   int64
	UploadedAt time.Time
	Tags       []string
	Summary    string
	FileHash   string
}

// Topic is the data-model Topic: a named retrieval scope.
type Topic struct {
	ID            string
	Name          string
	DocumentCount int
}

// Catalog persists Document and Topic rows in the same database file as the
// chunk tables, so that deleting a topic or document and its chunks happens
// against one SQLite connection pool (single writer).
type Catalog struct {
	db *sql.DB
}

// OpenCatalog opens the document/topic catalog backed by the same database
// file a Store was opened against.
func OpenCatalog(ctx context.Context, db *sql.DB) (*Catalog, error) {
	c := &Catalog{db: db}
	if err := c.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}
	return c, nil
}

func (c *Catalog) migrate(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS rag_topics (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	document_count INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS rag_documents (
	id TEXT PRIMARY KEY,
	topic_id TEXT NOT NULL,
	source_path TEXT NOT NULL,
	format TEXT NOT NULL,
	byte_size INTEGER NOT NULL,
	uploaded_at TEXT NOT NULL,
	tags TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	file_hash TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS rag_documents_topic_idx ON rag_documents(topic_id);
`)
	return err
}

// CreateTopic inserts a new topic, generating an ID if empty.
func (c *Catalog) CreateTopic(ctx context.Context, name string) (Topic, error) {
	t := Topic{ID: uuid.NewString(), Name: name}
	_, err := c.db.ExecContext(ctx, `INSERT INTO rag_topics (id, name, document_count) VALUES (?, ?, 0)`, t.ID, t.Name)
	if err != nil {
		return Topic{}, fmt.Errorf("create topic: %w", err)
	}
	return t, nil
}

// ListTopics returns every topic, ordered by name.
func (c *Catalog) ListTopics(ctx context.Context) ([]Topic, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, name, document_count FROM rag_topics ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()

	var out []Topic
	for rows.Next() {
		var t Topic
		if err := rows.Scan(&t.ID, &t.Name, &t.DocumentCount); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteTopic removes a topic row. The caller (pkg/rag/ingest or pkg/core)
// is responsible for first deleting the topic's documents and chunks —
// this method does not cascade, matching the vector store's "no orphan
// chunks" invariant being enforced at the write-transaction boundary, not
// via a foreign key the embedded driver doesn't support across tables with
// differing names per model.
func (c *Catalog) DeleteTopic(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM rag_topics WHERE id = ?`, id)
	return err
}

// IncrementDocumentCount adjusts a topic's document_count by delta.
func (c *Catalog) IncrementDocumentCount(ctx context.Context, topicID string, delta int) error {
	_, err := c.db.ExecContext(ctx, `UPDATE rag_topics SET document_count = document_count + ? WHERE id = ?`, delta, topicID)
	return err
}

// InsertDocument registers a document row, generating an ID if empty.
func (c *Catalog) InsertDocument(ctx context.Context, d Document) (Document, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.UploadedAt.IsZero() {
		d.UploadedAt = time.Now()
	}

	_, err := c.db.ExecContext(ctx, `
INSERT INTO rag_documents (id, topic_id, source_path, format, byte_size, uploaded_at, tags, summary, file_hash)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.TopicID, d.SourcePath, d.Format, d.ByteSize,
		d.UploadedAt.UTC().Format(time.RFC3339Nano), strings.Join(d.Tags, ","), d.Summary, d.FileHash)
	if err != nil {
		return Document{}, fmt.Errorf("insert document: %w", err)
	}
	return d, nil
}

// DeleteDocument removes a document row. Callers delete the owning chunks
// from every per-model Store first, so no chunk survives with that
// document id.
func (c *Catalog) DeleteDocument(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM rag_documents WHERE id = ?`, id)
	return err
}

// GetDocument fetches a document by ID.
func (c *Catalog) GetDocument(ctx context.Context, id string) (Document, error) {
	row := c.db.QueryRowContext(ctx, `
SELECT id, topic_id, source_path, format, byte_size, uploaded_at, tags, summary, file_hash
FROM rag_documents WHERE id = ?`, id)
	return scanDocument(row)
}

// ListDocuments returns documents, optionally scoped to a topic.
func (c *Catalog) ListDocuments(ctx context.Context, topicID string) ([]Document, error) {
	query := `SELECT id, topic_id, source_path, format, byte_size, uploaded_at, tags, summary, file_hash FROM rag_documents`
	args := []any{}
	if topicID != "" {
		query += ` WHERE topic_id = ?`
		args = append(args, topicID)
	}
	query += ` ORDER BY uploaded_at DESC`

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var d Document
	var uploadedAt, tags string
	if err := row.Scan(&d.ID, &d.TopicID, &d.SourcePath, &d.Format, &d.ByteSize, &uploadedAt, &tags, &d.Summary, &d.FileHash); err != nil {
		if err == sql.ErrNoRows {
			return Document{}, err
		}
		return Document{}, fmt.Errorf("scan document: %w", err)
	}
	d.UploadedAt, _ = time.Parse(time.RFC3339Nano, uploadedAt)
	if tags != "" {
		d.Tags = strings.Split(tags, ",")
	}
	return d, nil
}

// DB exposes the underlying connection so callers (pkg/rag/ingest) can open
// a Store against the same file without a second sqliteutil.OpenDB call.
func (c *Catalog) DB() *sql.DB {
	return c.db
}

func (c *Catalog) Close() error {
	return c.db.Close()
}
