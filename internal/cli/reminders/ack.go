package reminders

import (
	"fmt"

	"github.com/julianstephens/chime/internal/cli"
)

// AckCmd stops the repeating alerts of reminders that have fired.
type AckCmd struct {
	IDs []string `arg:"" name:"id" help:"Reminder IDs or unique prefixes."`
}

func (c *AckCmd) Run(ctx *cli.Context) error {
	ids, err := ctx.ResolveIDs(ctx.Context(), c.IDs)
	if err != nil {
		return err
	}
	if err := ctx.Service.Acknowledge(ctx.Context(), ids); err != nil {
		return fmt.Errorf("failed to acknowledge reminders: %w", err)
	}
	ctx.Printf("✓ Acknowledged %d reminder(s)\n", len(ids))
	return nil
}
