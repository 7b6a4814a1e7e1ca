package reminders

import (
	"fmt"

	"github.com/julianstephens/chime/internal/cli"
	"github.com/julianstephens/chime/internal/constants"
	"github.com/julianstephens/chime/internal/logger"
)

type DeleteCmd struct {
	IDs []string `arg:"" name:"id" help:"Reminder IDs or unique prefixes."`
}

func (c *DeleteCmd) Run(ctx *cli.Context) error {
	ids, err := ctx.ResolveIDs(ctx.Context(), c.IDs)
	if err != nil {
		return err
	}
	actionID := ctx.Service.NewActionID()
	if err := ctx.Service.SoftDelete(ctx.Context(), ids, actionID); err != nil {
		return fmt.Errorf("failed to delete reminders: %w", err)
	}

	ctx.Printf("✓ Deleted %d reminder(s)\n", len(ids))
	ctx.Printf("  Undo with: %s undo %s\n", constants.AppName, actionID)
	return nil
}

type UndoCmd struct {
	ActionID string `arg:"" help:"Action ID printed by delete."`
}

func (c *UndoCmd) Run(ctx *cli.Context) error {
	n, err := ctx.Service.UndoDelete(ctx.Context(), c.ActionID)
	if err != nil {
		return fmt.Errorf("failed to undo delete: %w", err)
	}
	if n == 0 {
		ctx.Println("No deleted reminders match that action.")
		return nil
	}
	ctx.Printf("✓ Restored %d reminder(s)\n", n)
	return nil
}

type PurgeCmd struct{}

func (c *PurgeCmd) Run(ctx *cli.Context) error {
	if ctx.Backups != nil {
		path, err := ctx.Snapshot(ctx.Context())
		if err != nil {
			return fmt.Errorf("failed to back up before purge: %w", err)
		}
		logger.Debug("Snapshot taken before purge", "path", path)
	}

	n, err := ctx.Service.PurgeDeleted(ctx.Context())
	if err != nil {
		return fmt.Errorf("failed to purge reminders: %w", err)
	}
	ctx.Printf("✓ Purged %d deleted reminder(s)\n", n)
	return nil
}
