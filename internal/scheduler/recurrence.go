package scheduler

import (
	"time"

	"github.com/julianstephens/chime/internal/constants"
	"github.com/julianstephens/chime/internal/models"
)

// NextOccurrence returns the next natural occurrence of rule at hour:minute,
// evaluated in now's location. A one-time rule may resolve to a past instant;
// callers must check futurity themselves. Returns nil when the rule can never
// fire (an empty weekday set).
func NextOccurrence(rule models.Rule, hour, minute int, now time.Time) *time.Time {
	loc := now.Location()

	switch r := rule.(type) {
	case models.OneTime:
		d := r.Date.In(loc)
		next := time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, loc)
		return &next

	case models.Weekdays:
		return nextWeekday(r, hour, minute, now)

	case models.Monthly:
		next := clampedDate(now.Year(), now.Month(), r.Day, hour, minute, loc)
		if !next.After(now) {
			next = clampedDate(now.Year(), now.Month()+1, r.Day, hour, minute, loc)
		}
		return &next

	case models.Yearly:
		next := clampedDate(now.Year(), r.Month, r.Day, hour, minute, loc)
		if !next.After(now) {
			next = clampedDate(now.Year()+1, r.Month, r.Day, hour, minute, loc)
		}
		return &next
	}

	return nil
}

// Advance rolls the reminder's natural occurrence forward. A future
// NextReminderDate is kept as is; an elapsed one is captured as
// PrevReminderDate before being replaced.
func Advance(r models.Reminder, now time.Time) models.Reminder {
	if r.NextReminderDate != nil && r.NextReminderDate.After(now) {
		return r
	}
	if r.NextReminderDate != nil {
		r.PrevReminderDate = models.TimePtr(*r.NextReminderDate)
	}
	r.NextReminderDate = NextOccurrence(r.Rule, r.Hour, r.Minute, now)
	return r
}

func nextWeekday(rule models.Weekdays, hour, minute int, now time.Time) *time.Time {
	if len(rule.Days) == 0 {
		return nil
	}
	loc := now.Location()
	for i := 0; i < constants.WeekdayScanDays; i++ {
		// time.Date normalizes the day overflow, which keeps this correct across DST changes
		candidate := time.Date(now.Year(), now.Month(), now.Day()+i, hour, minute, 0, 0, loc)
		if rule.Has(candidate.Weekday()) && candidate.After(now) {
			return &candidate
		}
	}
	return nil
}

// clampedDate builds year/month/day at hour:minute, pulling day back to the
// last day of the month when the month is shorter. month may overflow into
// the following year.
func clampedDate(year int, month time.Month, day, hour, minute int, loc *time.Location) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	if last := daysIn(first.Year(), first.Month(), loc); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, hour, minute, 0, 0, loc)
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
