package system

import (
	"fmt"

	"github.com/julianstephens/chime/internal/cli"
)

// RunCmd fires due reminders and delivers due notifications once.
type RunCmd struct{}

func (c *RunCmd) Run(ctx *cli.Context) error {
	next, sent, err := ctx.RunOnce(ctx.Context(), ctx.Service, ctx.Now())
	if err != nil {
		return fmt.Errorf("failed to run triggers: %w", err)
	}
	ctx.Printf("✓ Delivered %d notification(s)\n", sent)
	ctx.Printf("  Next wake: %s\n", cli.FormatInstant(next))
	return nil
}

// NextCmd shows the next instant a reminder fires.
type NextCmd struct{}

func (c *NextCmd) Run(ctx *cli.Context) error {
	wake, err := ctx.Service.ComputeNextWake(ctx.Context())
	if err != nil {
		return err
	}
	if wake == nil {
		ctx.Println("No reminders pending.")
		return nil
	}

	reminders, err := ctx.Service.List(ctx.Context(), false)
	if err != nil {
		return err
	}
	ctx.Println(cli.HeaderStyle.Render("Next: " + cli.FormatInstant(wake)))
	for _, r := range reminders {
		if r.IsActive() && r.NextTriggerDate != nil && r.NextTriggerDate.Equal(*wake) {
			ctx.Printf("  %s (ID: %s)\n", r.Title, cli.ShortID(r.ID))
		}
	}

	pending, err := ctx.Spool.Pending(ctx.Context())
	if err != nil {
		return err
	}
	ctx.Println(cli.MutedStyle.Render(fmt.Sprintf("%d notification(s) queued", len(pending))))
	return nil
}
