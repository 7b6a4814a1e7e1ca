package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/julianstephens/chime/internal/logger"
	"github.com/julianstephens/chime/internal/models"
	"github.com/julianstephens/chime/internal/storage"
)

const (
	// MaxBackups is the maximum number of snapshots to keep
	MaxBackups = 14
	// BackupDirName is the name of the backup directory under the config dir
	BackupDirName    = "backups"
	BackupFilePrefix = "chime-"
	BackupFileSuffix = ".json"

	timestampFormat = "20060102-150405"
)

// Info describes one snapshot file
type Info struct {
	Path      string
	Timestamp time.Time
	Size      int64

	seq int
}

// Manager writes snapshots of the reminder collection as JSON files, in the
// same format the file store uses, and keeps the newest MaxBackups of them.
type Manager struct {
	backupDir string
	now       func() time.Time
}

func NewManager(configDir string) *Manager {
	return &Manager{
		backupDir: filepath.Join(configDir, BackupDirName),
		now:       time.Now,
	}
}

func (m *Manager) GetBackupDir() string {
	return m.backupDir
}

// Create writes a snapshot of reminders and returns its path.
func (m *Manager) Create(reminders []models.Reminder) (string, error) {
	return m.create(reminders, false)
}

func (m *Manager) create(reminders []models.Reminder, skipRotation bool) (string, error) {
	if err := os.MkdirAll(m.backupDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	data, err := storage.EncodeReminders(reminders)
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}

	timestamp := m.now().Format(timestampFormat)
	path := filepath.Join(m.backupDir, BackupFilePrefix+timestamp+BackupFileSuffix)
	for counter := 1; fileExists(path); counter++ {
		if counter > 100 {
			return "", fmt.Errorf("failed to generate unique backup filename")
		}
		path = filepath.Join(m.backupDir, fmt.Sprintf("%s%s-%d%s", BackupFilePrefix, timestamp, counter, BackupFileSuffix))
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}

	if !skipRotation {
		if err := m.rotate(); err != nil {
			logger.Warn("Failed to rotate old backups", "error", err)
		}
	}
	logger.Debug("Snapshot written", "path", path, "reminders", len(reminders))
	return path, nil
}

// List returns every snapshot, newest first.
func (m *Manager) List() ([]Info, error) {
	entries, err := os.ReadDir(m.backupDir)
	if os.IsNotExist(err) {
		return []Info{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []Info
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, BackupFilePrefix) || !strings.HasSuffix(name, BackupFileSuffix) {
			continue
		}
		timestamp, seq, ok := parseName(name)
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, Info{
			Path:      filepath.Join(m.backupDir, name),
			Timestamp: timestamp,
			Size:      info.Size(),
			seq:       seq,
		})
	}

	sort.SliceStable(backups, func(i, j int) bool {
		if backups[i].Timestamp.Equal(backups[j].Timestamp) {
			return backups[i].seq > backups[j].seq
		}
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// Load reads the reminders stored in a snapshot. A bare file name is looked
// up in the backup directory.
func (m *Manager) Load(path string) ([]models.Reminder, error) {
	if filepath.Base(path) == path {
		path = filepath.Join(m.backupDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup: %w", err)
	}
	reminders, err := storage.DecodeReminders(data)
	if err != nil {
		return nil, fmt.Errorf("backup file is corrupted or invalid: %w", err)
	}
	return reminders, nil
}

// Restore loads the snapshot at path after saving current as a new snapshot,
// so a restore can itself be undone.
func (m *Manager) Restore(path string, current []models.Reminder) ([]models.Reminder, string, error) {
	reminders, err := m.Load(path)
	if err != nil {
		return nil, "", err
	}
	saved, err := m.create(current, true)
	if err != nil {
		return nil, "", fmt.Errorf("failed to back up current reminders before restore: %w", err)
	}
	return reminders, saved, nil
}

// rotate removes snapshots beyond the retention limit
func (m *Manager) rotate() error {
	backups, err := m.List()
	if err != nil {
		return err
	}
	for i := MaxBackups; i < len(backups); i++ {
		if err := os.Remove(backups[i].Path); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", backups[i].Path, err)
		}
	}
	return nil
}

// parseName reads the time and collision counter from chime-YYYYMMDD-HHMMSS[-N].json
func parseName(name string) (time.Time, int, bool) {
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, BackupFilePrefix), BackupFileSuffix)
	if len(stamp) < len(timestampFormat) {
		return time.Time{}, 0, false
	}
	t, err := time.ParseInLocation(timestampFormat, stamp[:len(timestampFormat)], time.Local)
	if err != nil {
		return time.Time{}, 0, false
	}
	rest := stamp[len(timestampFormat):]
	if rest == "" {
		return t, 0, true
	}
	seq, err := strconv.Atoi(strings.TrimPrefix(rest, "-"))
	if err != nil || !strings.HasPrefix(rest, "-") {
		return time.Time{}, 0, false
	}
	return t, seq, true
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
