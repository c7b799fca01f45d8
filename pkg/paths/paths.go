// Package paths resolves the on-disk locations the core uses for its
// config and data (vector store databases, token-usage ledger),
// using the same os.UserHomeDir-with-fallback pattern as the prior art's
// equivalent path-resolution package.
package paths

import (
	"os"
	"path/filepath"
)

// GetConfigDir returns the user's config directory.
//
// If the home directory cannot be determined, it falls back to a directory
// under the system temporary directory. This is a best-effort fallback, not
// a security boundary.
func GetConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Clean(filepath.Join(os.TempDir(), ".deskmind-config"))
	}
	return filepath.Clean(filepath.Join(homeDir, ".config", "deskmind"))
}

// GetDataDir returns the user's data directory (vector store DBs, token
// ledger, ingestion caches).
func GetDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Clean(filepath.Join(os.TempDir(), ".deskmind"))
	}
	return filepath.Clean(filepath.Join(homeDir, ".deskmind"))
}

// GetHomeDir returns the user's home directory, or "" if it cannot be
// determined.
func GetHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Clean(homeDir)
}
