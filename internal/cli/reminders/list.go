package reminders

import (
	"fmt"
	"strings"

	"github.com/julianstephens/chime/internal/cli"
)

type ListCmd struct {
	All bool `short:"a" help:"Include deleted reminders awaiting undo or purge."`
}

func (c *ListCmd) Run(ctx *cli.Context) error {
	reminders, err := ctx.Service.List(ctx.Context(), c.All)
	if err != nil {
		return err
	}
	if len(reminders) == 0 {
		ctx.Println("No reminders found.")
		return nil
	}

	header := fmt.Sprintf("%-10s %-28s %-6s %-26s %-17s %s", "ID", "Title", "Time", "Recurrence", "Next", "Status")
	ctx.Println(cli.HeaderStyle.Render(header))
	ctx.Println(strings.Repeat("-", len(header)))
	for _, r := range reminders {
		ctx.Printf("%-10s %-28s %-6s %-26s %-17s %s\n",
			cli.ShortID(r.ID),
			truncate(r.Title, 28),
			r.FormatTime(),
			truncate(r.FormatRecurrence(), 26),
			cli.FormatInstant(r.NextTriggerDate),
			cli.StatusLabel(r),
		)
	}
	return nil
}

type ShowCmd struct {
	ID string `arg:"" help:"Reminder ID or unique prefix."`
}

func (c *ShowCmd) Run(ctx *cli.Context) error {
	ids, err := ctx.ResolveIDs(ctx.Context(), []string{c.ID})
	if err != nil {
		return err
	}
	r, err := ctx.Service.Get(ctx.Context(), ids[0])
	if err != nil {
		return err
	}

	ctx.Println(cli.HeaderStyle.Render(r.Title))
	ctx.Printf("  ID:               %s\n", r.ID)
	ctx.Printf("  Status:           %s\n", cli.StatusLabel(r))
	ctx.Printf("  Recurrence:       %s at %s\n", r.FormatRecurrence(), r.FormatTime())
	ctx.Printf("  Continuous alert: %t\n", r.ContinuousAlert)
	ctx.Printf("  Next occurrence:  %s\n", cli.FormatInstant(r.NextReminderDate))
	ctx.Printf("  Next trigger:     %s\n", cli.FormatInstant(r.NextTriggerDate))
	ctx.Printf("  Last triggered:   %s\n", cli.FormatInstant(r.LastTriggerDate))
	ctx.Printf("  Acknowledged:     %s\n", cli.FormatInstant(r.LastAcknowledged))
	if r.IsDeleted() {
		ctx.Printf("  Undo with:        chime undo %s\n", r.DeletedActionID)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
