package reminders

import (
	"fmt"

	"github.com/julianstephens/chime/internal/cli"
	"github.com/julianstephens/chime/internal/service"
)

// EditCmd changes the given fields of a reminder. Saving re-enables it and
// restarts its trigger state.
type EditCmd struct {
	ID            string  `arg:"" help:"Reminder ID or unique prefix."`
	Title         *string `help:"New title."`
	At            *string `short:"t" help:"New time of day (HH:MM)."`
	cli.RuleFlags `embed:""`
	Continuous    *bool `short:"c" negatable:"" help:"Turn continuous alerts on or off."`
}

func (c *EditCmd) Run(ctx *cli.Context) error {
	ids, err := ctx.ResolveIDs(ctx.Context(), []string{c.ID})
	if err != nil {
		return err
	}
	r, err := ctx.Service.Get(ctx.Context(), ids[0])
	if err != nil {
		return fmt.Errorf("failed to find reminder: %w", err)
	}
	if r.IsDeleted() {
		return fmt.Errorf("%w: %s is deleted, undo the delete first", service.ErrNotFound, c.ID)
	}

	if c.Title != nil {
		r.Title = *c.Title
	}
	if c.At != nil {
		hour, minute, err := cli.ParseClock(*c.At)
		if err != nil {
			return err
		}
		r.Hour, r.Minute = hour, minute
	}
	if c.RuleFlags.IsSet() {
		rule, err := c.RuleFlags.Rule()
		if err != nil {
			return err
		}
		r.Rule = rule
	}
	if c.Continuous != nil {
		r.ContinuousAlert = *c.Continuous
	}

	saved, err := ctx.Service.Save(ctx.Context(), r)
	if err != nil {
		return fmt.Errorf("failed to update reminder: %w", err)
	}

	ctx.Printf("✓ Updated reminder: %s (ID: %s)\n", saved.Title, saved.ID)
	ctx.Printf("  %s at %s, next: %s\n", saved.FormatRecurrence(), saved.FormatTime(), cli.FormatInstant(saved.NextTriggerDate))
	return nil
}
