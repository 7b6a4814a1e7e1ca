package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Open returns the store named by dsn:
//   - postgres:// or postgresql:// URLs open a PostgresStore
//   - paths ending in .db, .sqlite or .sqlite3 open a SQLiteStore
//   - memory: opens a MemoryStore
//   - anything else is a directory for a FileStore
func Open(dsn string) (BlobStore, error) {
	switch {
	case dsn == "":
		return nil, fmt.Errorf("no store configured")
	case dsn == "memory:":
		return NewMemoryStore(), nil
	case IsPostgresDSN(dsn):
		// Credentials are rejected earlier for user-supplied values; a DSN read
		// from the keyring may carry a password.
		if _, err := ValidateConnString(dsn); err != nil && !errors.Is(err, ErrEmbeddedCredentials) {
			return nil, err
		}
		s := NewPostgresStore(dsn)
		if err := s.Init(); err != nil {
			return nil, err
		}
		return s, nil
	}

	path, err := ExpandPath(dsn)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		s := NewSQLiteStore(path)
		if err := s.Init(); err != nil {
			return nil, err
		}
		return s, nil
	default:
		s := NewFileStore(path)
		if err := s.Init(); err != nil {
			return nil, err
		}
		return s, nil
	}
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
