package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/julianstephens/chime/internal/logger"
)

const lockRetryDelay = 20 * time.Millisecond

// FileStore keeps each key as <dir>/<key>.json and replaces files atomically
// through a rename, so a reader never observes a half-written collection.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) Init() error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}
	return nil
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

func (s *FileStore) Set(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.pathFor(key)
	if err != nil {
		return err
	}
	if err := s.Init(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "."+key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions on %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", key, err)
	}
	return nil
}

// Update holds an advisory lock on <dir>/.<key>.lock for the duration of the
// read-modify-write, so concurrent processes queue up instead of overwriting
// each other.
func (s *FileStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	if _, err := s.pathFor(key); err != nil {
		return err
	}
	if err := s.Init(); err != nil {
		return err
	}

	lock := flock.New(filepath.Join(s.dir, "."+key+".lock"))
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", key, err)
	}
	if !locked {
		return fmt.Errorf("failed to lock %s", key)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("Failed to release store lock", "key", key, "error", err)
		}
	}()

	return readModifyWrite(ctx, s, key, fn)
}

func (s *FileStore) Close() error {
	return nil
}

// GetConfigPath returns the storage directory.
func (s *FileStore) GetConfigPath() string {
	return s.dir
}

func (s *FileStore) pathFor(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("invalid storage key: %q", key)
	}
	return filepath.Join(s.dir, key+".json"), nil
}
