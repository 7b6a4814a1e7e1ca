package reminders

import (
	"fmt"

	"github.com/julianstephens/chime/internal/cli"
	"github.com/julianstephens/chime/internal/models"
)

type AddCmd struct {
	Title         string `arg:"" help:"Reminder title."`
	At            string `short:"t" help:"Time of day (HH:MM)." required:""`
	cli.RuleFlags `embed:""`
	Continuous    bool `short:"c" help:"Repeat every 5 minutes until acknowledged, for up to 30 minutes."`
}

func (c *AddCmd) Validate() error {
	if !c.RuleFlags.IsSet() {
		return fmt.Errorf("one of --date, --weekdays, --monthly or --yearly is required")
	}
	if _, _, err := cli.ParseClock(c.At); err != nil {
		return err
	}
	return nil
}

func (c *AddCmd) Run(ctx *cli.Context) error {
	hour, minute, err := cli.ParseClock(c.At)
	if err != nil {
		return err
	}
	rule, err := c.RuleFlags.Rule()
	if err != nil {
		return err
	}

	saved, err := ctx.Service.Save(ctx.Context(), models.Reminder{
		Title:           c.Title,
		Rule:            rule,
		Hour:            hour,
		Minute:          minute,
		ContinuousAlert: c.Continuous,
	})
	if err != nil {
		return fmt.Errorf("failed to add reminder: %w", err)
	}

	ctx.Printf("✓ Added reminder: %s (ID: %s)\n", saved.Title, saved.ID)
	ctx.Printf("  %s at %s, next: %s\n", saved.FormatRecurrence(), saved.FormatTime(), cli.FormatInstant(saved.NextTriggerDate))
	return nil
}
