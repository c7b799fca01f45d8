package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
)

// metaTable holds small per-database key/value state that isn't scoped to a
// single embedding model's chunk table: today, just the chunk encryption
// salt (pkg/rag/crypto.NewSalt), generated once per database file and
// reused for every chunk encrypt/decrypt call against it.
const metaTable = "rag_meta"

func ensureMetaTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL
)`, metaTable))
	return err
}

// EnsureSalt returns the database's chunk-encryption salt, generating and
// persisting one via newSalt on first call. Every Store sharing this
// database (one per embedding model, same underlying SQLite file) sees the
// same salt.
func (s *Store) EnsureSalt(ctx context.Context, newSalt func() ([]byte, error)) ([]byte, error) {
	if err := ensureMetaTable(ctx, s.db); err != nil {
		return nil, fmt.Errorf("ensure meta table: %w", err)
	}

	var salt []byte
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT value FROM %s WHERE key = 'salt'`, metaTable)).Scan(&salt)
	if err == nil {
		return salt, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("read salt: %w", err)
	}

	salt, err = newSalt()
	if err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (key, value) VALUES ('salt', ?)`, metaTable), salt); err != nil {
		return nil, fmt.Errorf("persist salt: %w", err)
	}
	return salt, nil
}
