package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"

	"github.com/julianstephens/chime/internal/constants"
	"github.com/julianstephens/chime/internal/keyring"
	"github.com/julianstephens/chime/internal/logger"
	"github.com/julianstephens/chime/internal/storage"
)

// LoadDotEnv reads KEY=value pairs from the given files (default ".env") into
// the environment. Variables already set are not overridden and missing files
// are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ResolveStore returns the store location to open. An explicit value wins,
// then a connection string saved in the OS keyring, then the default path.
// Explicit PostgreSQL URLs must not carry a password.
func ResolveStore(explicit string) (string, error) {
	if explicit != "" {
		if storage.IsPostgresDSN(explicit) && storage.HasEmbeddedCredentials(explicit) {
			return "", fmt.Errorf("%w; save it with `%s keyring set` or use .pgpass instead",
				storage.ErrEmbeddedCredentials, constants.AppName)
		}
		return explicit, nil
	}

	connStr, err := keyring.GetConnectionString()
	switch {
	case err == nil:
		logger.Debug("Using store from OS keyring")
		return connStr, nil
	case errors.Is(err, keyring.ErrNotFound):
	default:
		logger.Debug("OS keyring unavailable", "error", err)
	}
	return constants.DefaultStorePath, nil
}

// ResolveConfigDir expands a leading ~ in dir, falling back to the default.
func ResolveConfigDir(dir string) (string, error) {
	if dir == "" {
		dir = constants.DefaultConfigDir
	}
	return storage.ExpandPath(dir)
}

// LoadLocation returns the named IANA zone, or the system zone for "" and "Local".
func LoadLocation(timezone string) (*time.Location, error) {
	if timezone == "" || timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}
	return loc, nil
}
