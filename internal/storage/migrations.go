package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/julianstephens/chime/internal/migration"
)

//go:embed migrations
var migrationFiles embed.FS

// migrate brings db up to the newest schema for the named dialect directory.
func migrate(db *sql.DB, dir string, dialect migration.Dialect) error {
	sub, err := fs.Sub(migrationFiles, "migrations/"+dir)
	if err != nil {
		return fmt.Errorf("failed to load %s migrations: %w", dir, err)
	}
	if _, err := migration.NewRunner(db, sub, dialect).Apply(); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
