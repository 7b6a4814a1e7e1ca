package reminders

import (
	"fmt"

	"github.com/julianstephens/chime/internal/cli"
)

type EnableCmd struct {
	IDs []string `arg:"" name:"id" help:"Reminder IDs or unique prefixes."`
}

func (c *EnableCmd) Run(ctx *cli.Context) error {
	return toggle(ctx, c.IDs, true)
}

type DisableCmd struct {
	IDs []string `arg:"" name:"id" help:"Reminder IDs or unique prefixes."`
}

func (c *DisableCmd) Run(ctx *cli.Context) error {
	return toggle(ctx, c.IDs, false)
}

func toggle(ctx *cli.Context, args []string, enable bool) error {
	ids, err := ctx.ResolveIDs(ctx.Context(), args)
	if err != nil {
		return err
	}
	if err := ctx.Service.ToggleEnabled(ctx.Context(), ids, enable); err != nil {
		return fmt.Errorf("failed to update reminders: %w", err)
	}

	verb := "Disabled"
	if enable {
		verb = "Enabled"
	}
	ctx.Printf("✓ %s %d reminder(s)\n", verb, len(ids))
	return nil
}
