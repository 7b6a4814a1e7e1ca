package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/julianstephens/chime/internal/backup"
	"github.com/julianstephens/chime/internal/constants"
	"github.com/julianstephens/chime/internal/logger"
	"github.com/julianstephens/chime/internal/models"
	"github.com/julianstephens/chime/internal/notifier"
	"github.com/julianstephens/chime/internal/service"
	"github.com/julianstephens/chime/internal/storage"
)

type Context struct {
	// Base is canceled when the process is interrupted
	Base    context.Context
	Store   storage.BlobStore
	Repo    *storage.Repository
	Spool   *notifier.Spool
	Service *service.Service
	Now     func() time.Time
	Out     io.Writer
	In      io.Reader
	// Backups is nil when snapshots are not configured
	Backups *backup.Manager
}

// NewContext wires the reminder repository, the notification spool and a
// service over store. now defaults to time.Now.
func NewContext(store storage.BlobStore, sender notifier.Sender, deliveryRate float64, now func() time.Time) *Context {
	if now == nil {
		now = time.Now
	}
	c := &Context{
		Store: store,
		Repo:  storage.NewRepository(store, constants.RemindersKey),
		Spool: notifier.NewSpool(store, constants.NotificationsKey, sender, deliveryRate),
		Now:   now,
		Out:   os.Stdout,
		In:    os.Stdin,
	}
	c.Service = c.NewService(nil)
	return c
}

// NewService returns a service sharing the context's store and spool that
// reports wake-ups to w.
func (c *Context) NewService(w service.Waker) *service.Service {
	return service.New(c.Repo, c.Spool, service.Options{Now: c.Now, Waker: w})
}

// RunOnce fires due reminders, delivers due notifications and returns the
// next instant either needs attention.
func (c *Context) RunOnce(ctx context.Context, svc *service.Service, now time.Time) (*time.Time, int, error) {
	wake, err := svc.ExecuteTriggers(ctx, now)
	if err != nil {
		return nil, 0, err
	}
	sent, deliverErr := c.Spool.Deliver(ctx, now)
	if deliverErr != nil {
		logger.Warn("Some notifications could not be delivered", "error", deliverErr)
	}
	due, err := c.Spool.NextDue(ctx)
	if err != nil {
		return wake, sent, err
	}
	return earliest(wake, due), sent, nil
}

// DisableLapsed switches off one-time reminders whose day has passed.
func (c *Context) DisableLapsed(ctx context.Context) {
	n, err := c.Service.DisableLapsed(ctx)
	if err != nil {
		logger.Warn("Failed to disable lapsed reminders", "error", err)
		return
	}
	if n > 0 {
		logger.Debug("Disabled lapsed one-time reminders", "count", n)
	}
}

func (c *Context) Context() context.Context {
	if c.Base == nil {
		return context.Background()
	}
	return c.Base
}

func (c *Context) Printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out(), format, args...)
}

func (c *Context) Println(args ...interface{}) {
	fmt.Fprintln(c.out(), args...)
}

// Snapshot writes the current collection, tombstones included, to a backup.
func (c *Context) Snapshot(ctx context.Context) (string, error) {
	if c.Backups == nil {
		return "", fmt.Errorf("backups are not configured")
	}
	reminders, err := c.Service.List(ctx, true)
	if err != nil {
		return "", err
	}
	return c.Backups.Create(reminders)
}

func (c *Context) in() io.Reader {
	if c.In == nil {
		return os.Stdin
	}
	return c.In
}

// Confirm asks a yes/no question on the context's input.
func (c *Context) Confirm(prompt string) (bool, error) {
	c.Printf("%s [y/N]: ", prompt)
	response, err := bufio.NewReader(c.in()).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes", nil
}

func (c *Context) out() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

// RuleFlags selects the recurrence of a reminder. At most one may be set.
type RuleFlags struct {
	Date     string `help:"Fire once on this date (YYYY-MM-DD)." xor:"rule"`
	Weekdays string `short:"w" help:"Fire weekly on these comma-separated days (e.g. mon,wed)." xor:"rule"`
	Monthly  int    `help:"Fire monthly on this day (1-31)." xor:"rule"`
	Yearly   string `help:"Fire yearly on this date (MM-DD)." xor:"rule"`
}

// IsSet reports whether any rule flag was given.
func (f RuleFlags) IsSet() bool {
	return f.Date != "" || f.Weekdays != "" || f.Monthly != 0 || f.Yearly != ""
}

// Rule builds the recurrence rule named by the flags.
func (f RuleFlags) Rule() (models.Rule, error) {
	set := 0
	for _, ok := range []bool{f.Date != "", f.Weekdays != "", f.Monthly != 0, f.Yearly != ""} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("exactly one of --date, --weekdays, --monthly or --yearly is required")
	}

	switch {
	case f.Date != "":
		date, err := time.ParseInLocation(constants.DateFormat, f.Date, time.Local)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", f.Date)
		}
		return models.NewOneTime(date)
	case f.Weekdays != "":
		days, err := models.ParseWeekdays(f.Weekdays)
		if err != nil {
			return nil, err
		}
		return models.NewWeekdays(days...)
	case f.Monthly != 0:
		return models.NewMonthly(f.Monthly)
	default:
		month, day, err := ParseMonthDay(f.Yearly)
		if err != nil {
			return nil, err
		}
		return models.NewYearly(month, day)
	}
}

// ParseClock parses an HH:MM wall-clock time.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse(constants.TimeFormat, strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}

// ParseMonthDay parses an MM-DD pair such as 02-29.
func ParseMonthDay(s string) (time.Month, int, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid yearly date %q, expected MM-DD", s)
	}
	month, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid month in %q", s)
	}
	day, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid day in %q", s)
	}
	return time.Month(month), day, nil
}

// FormatInstant renders t for display, or "-" when unset.
func FormatInstant(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(constants.DateFormat + " " + constants.TimeFormat)
}

// ShortID returns the first eight characters of a uuid for table output.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func earliest(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.Before(*a):
		return b
	default:
		return a
	}
}

// ResolveIDs expands unique id prefixes, as printed by list, to full ids.
// Arguments matching nothing are passed through for the service to reject.
func (c *Context) ResolveIDs(ctx context.Context, args []string) ([]string, error) {
	reminders, err := c.Service.List(ctx, true)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(args))
	for _, arg := range args {
		var matches []string
		for _, r := range reminders {
			if r.ID == arg {
				matches = []string{r.ID}
				break
			}
			if strings.HasPrefix(r.ID, arg) {
				matches = append(matches, r.ID)
			}
		}
		switch len(matches) {
		case 0:
			ids = append(ids, arg)
		case 1:
			ids = append(ids, matches[0])
		default:
			return nil, fmt.Errorf("id prefix %q is ambiguous (%d matches)", arg, len(matches))
		}
	}
	return ids, nil
}
