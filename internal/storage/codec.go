package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/julianstephens/chime/internal/constants"
	"github.com/julianstephens/chime/internal/models"
)

// record is the stored shape of a reminder. Every date is an ISO-8601 string
// or null, months are zero-based and weekdays are three-letter names.
type record struct {
	ID               string             `json:"id"`
	Title            string             `json:"title"`
	Periodicity      models.Periodicity `json:"periodicity"`
	Date             *string            `json:"date"`
	Weekdays         []string           `json:"weekdays"`
	Day              int                `json:"day"`
	Month            int                `json:"month"`
	Hour             int                `json:"hour"`
	Minute           int                `json:"minute"`
	ContinuousAlert  bool               `json:"continuousAlert"`
	Enabled          bool               `json:"enabled"`
	NotificationID   *string            `json:"notificationId"`
	LastTriggerDate  *string            `json:"lastTriggerDate"`
	NextTriggerDate  *string            `json:"nextTriggerDate"`
	NextReminderDate *string            `json:"nextReminderDate"`
	PrevReminderDate *string            `json:"prevReminderDate"`
	LastAcknowledged *string            `json:"lastAcknowledged"`
	DeletedActionID  *string            `json:"deletedActionId"`
}

// EncodeReminders serializes the whole collection as one JSON array.
func EncodeReminders(reminders []models.Reminder) ([]byte, error) {
	records := make([]record, 0, len(reminders))
	for _, r := range reminders {
		rec, err := toRecord(r)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize reminders: %w", err)
	}
	return data, nil
}

// DecodeReminders parses a collection written by EncodeReminders. Empty input is an empty collection.
func DecodeReminders(data []byte) ([]models.Reminder, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse reminders: %w", err)
	}
	reminders := make([]models.Reminder, 0, len(records))
	for _, rec := range records {
		r, err := fromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("reminder %s: %w", rec.ID, err)
		}
		reminders = append(reminders, r)
	}
	return reminders, nil
}

func toRecord(r models.Reminder) (record, error) {
	rec := record{
		ID:               r.ID,
		Title:            r.Title,
		Weekdays:         []string{},
		Day:              1,
		Hour:             r.Hour,
		Minute:           r.Minute,
		ContinuousAlert:  r.ContinuousAlert,
		Enabled:          r.Enabled,
		NotificationID:   optString(r.NotificationID),
		LastTriggerDate:  formatTime(r.LastTriggerDate),
		NextTriggerDate:  formatTime(r.NextTriggerDate),
		NextReminderDate: formatTime(r.NextReminderDate),
		PrevReminderDate: formatTime(r.PrevReminderDate),
		LastAcknowledged: formatTime(r.LastAcknowledged),
		DeletedActionID:  optString(r.DeletedActionID),
	}

	switch rule := r.Rule.(type) {
	case models.OneTime:
		rec.Periodicity = models.PeriodicityOneTime
		rec.Date = formatTime(&rule.Date)
		rec.Day = rule.Date.Day()
		rec.Month = int(rule.Date.Month()) - 1
	case models.Weekdays:
		rec.Periodicity = models.PeriodicityWeekdays
		for _, wd := range rule.Days {
			rec.Weekdays = append(rec.Weekdays, models.WeekdayName(wd))
		}
	case models.Monthly:
		rec.Periodicity = models.PeriodicityMonthly
		rec.Day = rule.Day
	case models.Yearly:
		rec.Periodicity = models.PeriodicityYearly
		rec.Day = rule.Day
		rec.Month = int(rule.Month) - 1
	default:
		return record{}, fmt.Errorf("reminder %s has no recurrence rule", r.ID)
	}

	return rec, nil
}

func fromRecord(rec record) (models.Reminder, error) {
	r := models.Reminder{
		ID:              rec.ID,
		Title:           rec.Title,
		Hour:            rec.Hour,
		Minute:          rec.Minute,
		ContinuousAlert: rec.ContinuousAlert,
		Enabled:         rec.Enabled,
		NotificationID:  derefString(rec.NotificationID),
		DeletedActionID: derefString(rec.DeletedActionID),
	}

	var err error
	fields := []struct {
		name string
		src  *string
		dst  **time.Time
	}{
		{"lastTriggerDate", rec.LastTriggerDate, &r.LastTriggerDate},
		{"nextTriggerDate", rec.NextTriggerDate, &r.NextTriggerDate},
		{"nextReminderDate", rec.NextReminderDate, &r.NextReminderDate},
		{"prevReminderDate", rec.PrevReminderDate, &r.PrevReminderDate},
		{"lastAcknowledged", rec.LastAcknowledged, &r.LastAcknowledged},
	}
	for _, f := range fields {
		if *f.dst, err = parseTime(f.src); err != nil {
			return models.Reminder{}, fmt.Errorf("invalid %s: %w", f.name, err)
		}
	}

	switch rec.Periodicity {
	case models.PeriodicityOneTime:
		date, err := parseTime(rec.Date)
		if err != nil {
			return models.Reminder{}, fmt.Errorf("invalid date: %w", err)
		}
		if date == nil {
			return models.Reminder{}, fmt.Errorf("one-time reminder has no date")
		}
		r.Rule = models.OneTime{Date: *date}
	case models.PeriodicityWeekdays:
		days := make([]time.Weekday, 0, len(rec.Weekdays))
		for _, name := range rec.Weekdays {
			wd, err := models.ParseWeekday(name)
			if err != nil {
				return models.Reminder{}, err
			}
			days = append(days, wd)
		}
		r.Rule = models.Weekdays{Days: days}
	case models.PeriodicityMonthly:
		r.Rule = models.Monthly{Day: rec.Day}
	case models.PeriodicityYearly:
		r.Rule = models.Yearly{Month: time.Month(rec.Month + 1), Day: rec.Day}
	default:
		return models.Reminder{}, fmt.Errorf("unknown periodicity %q", rec.Periodicity)
	}

	return r, nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(constants.ISOFormat)
	return &s
}

func parseTime(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, *s)
	if err != nil {
		return nil, err
	}
	t = t.Local()
	return &t, nil
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
