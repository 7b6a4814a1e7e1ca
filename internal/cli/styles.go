package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/julianstephens/chime/internal/models"
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	MutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	DangerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Italic(true)
)

// StatusLabel describes where a reminder stands, styled for the terminal.
func StatusLabel(r models.Reminder) string {
	switch {
	case r.IsDeleted():
		return DangerStyle.Render("deleted")
	case !r.Enabled:
		return MutedStyle.Render("disabled")
	case isEscalating(r):
		return WarningStyle.Render("alerting")
	default:
		return "enabled"
	}
}

// isEscalating reports whether the stored trigger is a repeat rather than the
// next natural occurrence.
func isEscalating(r models.Reminder) bool {
	if !r.ContinuousAlert || r.NextTriggerDate == nil {
		return false
	}
	return r.NextReminderDate == nil || !r.NextTriggerDate.Equal(*r.NextReminderDate)
}
