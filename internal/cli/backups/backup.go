package backups

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/julianstephens/chime/internal/backup"
	"github.com/julianstephens/chime/internal/cli"
)

var errNoBackups = errors.New("backups are not configured")

type BackupCreateCmd struct{}

func (c *BackupCreateCmd) Run(ctx *cli.Context) error {
	backupPath, err := ctx.Snapshot(ctx.Context())
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}

	ctx.Printf("✓ Backup created: %s\n", filepath.Base(backupPath))
	return nil
}

type BackupListCmd struct{}

func (c *BackupListCmd) Run(ctx *cli.Context) error {
	if ctx.Backups == nil {
		return errNoBackups
	}
	backups, err := ctx.Backups.List()
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}

	if len(backups) == 0 {
		ctx.Println("No backups found.")
		ctx.Printf("Backups are stored in: %s\n", ctx.Backups.GetBackupDir())
		return nil
	}

	ctx.Printf("Available backups (%d total, keeping most recent %d):\n\n", len(backups), backup.MaxBackups)
	for _, b := range backups {
		sizeKB := float64(b.Size) / 1024.0
		ctx.Printf("  %s  %s  (%.1f KB)\n", b.Timestamp.Format("2006-01-02 15:04:05"), filepath.Base(b.Path), sizeKB)
	}
	ctx.Printf("\nBackup directory: %s\n", ctx.Backups.GetBackupDir())
	return nil
}

// BackupRestoreCmd replaces every reminder with the contents of a snapshot.
type BackupRestoreCmd struct {
	BackupFile string `arg:"" help:"Path or filename of the backup to restore."`
	Yes        bool   `short:"y" help:"Do not ask for confirmation."`
}

func (c *BackupRestoreCmd) Run(ctx *cli.Context) error {
	if ctx.Backups == nil {
		return errNoBackups
	}

	backupPath := c.BackupFile
	if _, err := os.Stat(backupPath); err != nil {
		possiblePath := filepath.Join(ctx.Backups.GetBackupDir(), filepath.Base(c.BackupFile))
		if _, err := os.Stat(possiblePath); err != nil {
			return fmt.Errorf("backup file not found: tried %s and %s", c.BackupFile, ctx.Backups.GetBackupDir())
		}
		backupPath = possiblePath
	}

	if !c.Yes {
		ctx.Println(cli.WarningStyle.Render("⚠️  WARNING: This will replace all of your reminders with the backup."))
		ctx.Println("A backup of your current reminders will be created before restoring.")
		ctx.Printf("\nRestore from: %s\n", backupPath)
		ok, err := ctx.Confirm("Continue?")
		if err != nil {
			return err
		}
		if !ok {
			ctx.Println("Restore cancelled.")
			return nil
		}
	}

	current, err := ctx.Service.List(ctx.Context(), true)
	if err != nil {
		return err
	}
	reminders, saved, err := ctx.Backups.Restore(backupPath, current)
	if err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}
	scheduled, err := ctx.Service.Replace(ctx.Context(), reminders)
	if err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}

	ctx.Printf("Created backup of current reminders: %s\n", filepath.Base(saved))
	ctx.Printf("✓ Restored %d reminder(s), %d scheduled\n", len(reminders), scheduled)
	return nil
}
