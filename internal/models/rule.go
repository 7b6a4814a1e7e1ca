package models

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Periodicity identifies the variant of a recurrence rule. The string values
// are the ones written to storage.
type Periodicity string

const (
	PeriodicityOneTime  Periodicity = "One-time"
	PeriodicityWeekdays Periodicity = "Weekdays"
	PeriodicityMonthly  Periodicity = "Monthly"
	PeriodicityYearly   Periodicity = "Yearly"
)

// Rule is the recurrence payload of a reminder. Exactly one of OneTime,
// Weekdays, Monthly or Yearly.
type Rule interface {
	Periodicity() Periodicity
	Validate() error
	String() string
}

// OneTime fires once on the calendar day of Date.
type OneTime struct {
	Date time.Time
}

// Weekdays fires on every listed day of the week.
type Weekdays struct {
	Days []time.Weekday
}

// Monthly fires on Day of every month, clamped to the month's length.
type Monthly struct {
	Day int
}

// Yearly fires on Month/Day every year, clamped to the month's length.
type Yearly struct {
	Month time.Month
	Day   int
}

func NewOneTime(date time.Time) (OneTime, error) {
	r := OneTime{Date: date}
	return r, r.Validate()
}

func NewWeekdays(days ...time.Weekday) (Weekdays, error) {
	r := Weekdays{Days: normalizeWeekdays(days)}
	return r, r.Validate()
}

func NewMonthly(day int) (Monthly, error) {
	r := Monthly{Day: day}
	return r, r.Validate()
}

func NewYearly(month time.Month, day int) (Yearly, error) {
	r := Yearly{Month: month, Day: day}
	return r, r.Validate()
}

func (OneTime) Periodicity() Periodicity  { return PeriodicityOneTime }
func (Weekdays) Periodicity() Periodicity { return PeriodicityWeekdays }
func (Monthly) Periodicity() Periodicity  { return PeriodicityMonthly }
func (Yearly) Periodicity() Periodicity   { return PeriodicityYearly }

func (r OneTime) Validate() error {
	if r.Date.IsZero() {
		return fmt.Errorf("one-time reminder requires a date")
	}
	return nil
}

func (r Weekdays) Validate() error {
	if len(r.Days) == 0 {
		return fmt.Errorf("weekdays must be specified for weekday recurrence")
	}
	for _, d := range r.Days {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("invalid weekday: %d", d)
		}
	}
	return nil
}

func (r Monthly) Validate() error {
	if r.Day < 1 || r.Day > 31 {
		return fmt.Errorf("day of month must be between 1 and 31, got %d", r.Day)
	}
	return nil
}

func (r Yearly) Validate() error {
	if r.Month < time.January || r.Month > time.December {
		return fmt.Errorf("month must be between 1 and 12, got %d", r.Month)
	}
	if r.Day < 1 || r.Day > 31 {
		return fmt.Errorf("day of month must be between 1 and 31, got %d", r.Day)
	}
	return nil
}

func (r OneTime) String() string {
	return fmt.Sprintf("Once on %s", r.Date.Format("2006-01-02"))
}

func (r Weekdays) String() string {
	days := make([]string, len(r.Days))
	for i, wd := range r.Days {
		days[i] = WeekdayName(wd)
	}
	return fmt.Sprintf("Weekly: %s", strings.Join(days, ", "))
}

func (r Monthly) String() string {
	return fmt.Sprintf("Monthly on day %d", r.Day)
}

func (r Yearly) String() string {
	return fmt.Sprintf("Yearly on %s %d", r.Month.String()[:3], r.Day)
}

// Has reports whether wd is one of the rule's days.
func (r Weekdays) Has(wd time.Weekday) bool {
	for _, d := range r.Days {
		if d == wd {
			return true
		}
	}
	return false
}

// WeekdayName returns the three-letter name used in storage ("Sun".."Sat").
func WeekdayName(wd time.Weekday) string {
	return wd.String()[:3]
}

var dayMap = map[string]time.Weekday{
	"sun":       time.Sunday,
	"sunday":    time.Sunday,
	"mon":       time.Monday,
	"monday":    time.Monday,
	"tue":       time.Tuesday,
	"tuesday":   time.Tuesday,
	"wed":       time.Wednesday,
	"wednesday": time.Wednesday,
	"thu":       time.Thursday,
	"thursday":  time.Thursday,
	"fri":       time.Friday,
	"friday":    time.Friday,
	"sat":       time.Saturday,
	"saturday":  time.Saturday,
}

// ParseWeekday accepts short or long English names in any case, or a number (0=Sunday, 6=Saturday).
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if wd, ok := dayMap[s]; ok {
		return wd, nil
	}
	num, err := strconv.Atoi(s)
	if err == nil && num >= 0 && num <= 6 {
		return time.Weekday(num), nil
	}
	return 0, fmt.Errorf("invalid weekday: %s", s)
}

// ParseWeekdays parses a comma-separated list of weekdays
func ParseWeekdays(s string) ([]time.Weekday, error) {
	var weekdays []time.Weekday
	for _, part := range strings.Split(s, ",") {
		wd, err := ParseWeekday(part)
		if err != nil {
			return nil, err
		}
		weekdays = append(weekdays, wd)
	}
	return normalizeWeekdays(weekdays), nil
}

func normalizeWeekdays(days []time.Weekday) []time.Weekday {
	seen := make(map[time.Weekday]bool, len(days))
	out := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
