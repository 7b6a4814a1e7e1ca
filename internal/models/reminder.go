package models

import (
	"fmt"
	"strings"
	"time"
)

type Reminder struct {
	ID              string
	Title           string
	Rule            Rule
	Hour            int
	Minute          int
	ContinuousAlert bool
	Enabled         bool

	// Computed trigger state
	NextReminderDate *time.Time // next natural occurrence
	PrevReminderDate *time.Time // occurrence most recently reached
	NextTriggerDate  *time.Time // next instant a notification fires
	LastTriggerDate  *time.Time
	LastAcknowledged *time.Time

	NotificationID  string
	DeletedActionID string
}

func (r *Reminder) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("reminder title cannot be empty")
	}
	if r.Hour < 0 || r.Hour > 23 {
		return fmt.Errorf("hour must be between 0 and 23, got %d", r.Hour)
	}
	if r.Minute < 0 || r.Minute > 59 {
		return fmt.Errorf("minute must be between 0 and 59, got %d", r.Minute)
	}
	if r.Rule == nil {
		return fmt.Errorf("reminder requires a recurrence rule")
	}
	return r.Rule.Validate()
}

// IsOneTime returns true if the reminder fires on a single date
func (r *Reminder) IsOneTime() bool {
	_, ok := r.Rule.(OneTime)
	return ok
}

// IsDeleted returns true while the reminder is tombstoned awaiting undo or purge
func (r *Reminder) IsDeleted() bool {
	return r.DeletedActionID != ""
}

// IsActive reports whether the reminder participates in trigger execution
func (r *Reminder) IsActive() bool {
	return r.Enabled && !r.IsDeleted()
}

// ClearTriggerState resets every computed field so the next evaluation starts fresh.
func (r *Reminder) ClearTriggerState() {
	r.NextReminderDate = nil
	r.PrevReminderDate = nil
	r.NextTriggerDate = nil
	r.LastTriggerDate = nil
	r.LastAcknowledged = nil
}

// FormatTime returns the fire time as HH:MM
func (r *Reminder) FormatTime() string {
	return fmt.Sprintf("%02d:%02d", r.Hour, r.Minute)
}

// FormatRecurrence returns a human-readable string describing the reminder's rule
func (r *Reminder) FormatRecurrence() string {
	if r.Rule == nil {
		return "None"
	}
	return r.Rule.String()
}

// TimePtr returns a pointer to a copy of t.
func TimePtr(t time.Time) *time.Time {
	return &t
}
