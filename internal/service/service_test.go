package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/julianstephens/chime/internal/constants"
	apperrors "github.com/julianstephens/chime/internal/errors"
	"github.com/julianstephens/chime/internal/models"
	"github.com/julianstephens/chime/internal/notifier"
	"github.com/julianstephens/chime/internal/storage"
)

type scheduledCall struct {
	handle  string
	content notifier.Content
	at      time.Time
}

type fakeDispatcher struct {
	mu           sync.Mutex
	seq          int
	scheduled    []scheduledCall
	canceled     []string
	dismissed    []string
	failSchedule bool
	failCancel   bool
}

func (d *fakeDispatcher) Schedule(_ context.Context, c notifier.Content, at time.Time) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failSchedule {
		return "", errors.New("dispatcher offline")
	}
	d.seq++
	handle := fmt.Sprintf("h%d", d.seq)
	d.scheduled = append(d.scheduled, scheduledCall{handle: handle, content: c, at: at})
	return handle, nil
}

func (d *fakeDispatcher) Cancel(_ context.Context, handle string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failCancel {
		return errors.New("dispatcher offline")
	}
	d.canceled = append(d.canceled, handle)
	return nil
}

func (d *fakeDispatcher) Dismiss(_ context.Context, handle string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dismissed = append(d.dismissed, handle)
	return nil
}

func (d *fakeDispatcher) scheduleCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.scheduled)
}

type fakeWaker struct {
	mu    sync.Mutex
	armed []*time.Time
}

func (w *fakeWaker) Arm(at *time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.armed = append(w.armed, at)
}

type flakyStore struct {
	*storage.MemoryStore
	failSet bool
}

func (s *flakyStore) Set(ctx context.Context, key string, data []byte) error {
	if s.failSet {
		return errors.New("disk full")
	}
	return s.MemoryStore.Set(ctx, key, data)
}

func (s *flakyStore) Update(ctx context.Context, key string, fn storage.UpdateFunc) error {
	return s.MemoryStore.Update(ctx, key, func(ctx context.Context, current []byte) ([]byte, error) {
		next, err := fn(ctx, current)
		if err == nil && next != nil && s.failSet {
			return nil, errors.New("disk full")
		}
		return next, err
	})
}

// hookDispatcher runs onSchedule, once, from inside the first Schedule call.
type hookDispatcher struct {
	*fakeDispatcher
	once       sync.Once
	onSchedule func()
}

func (d *hookDispatcher) Schedule(ctx context.Context, c notifier.Content, at time.Time) (string, error) {
	d.once.Do(d.onSchedule)
	return d.fakeDispatcher.Schedule(ctx, c, at)
}

type harness struct {
	svc   *Service
	disp  *fakeDispatcher
	waker *fakeWaker
	store *flakyStore
	now   time.Time
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()
	h := &harness{
		disp:  &fakeDispatcher{},
		waker: &fakeWaker{},
		store: &flakyStore{MemoryStore: storage.NewMemoryStore()},
		now:   now,
	}
	repo := storage.NewRepository(h.store, constants.RemindersKey)
	h.svc = New(repo, h.disp, Options{
		Now:   func() time.Time { return h.now },
		Waker: h.waker,
	})
	return h
}

func at(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

func weekly(title string, hour, minute int, days ...time.Weekday) models.Reminder {
	return models.Reminder{
		Title:  title,
		Rule:   models.Weekdays{Days: days},
		Hour:   hour,
		Minute: minute,
	}
}

func everyDay() []time.Weekday {
	return []time.Weekday{time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday}
}

func mustSave(t *testing.T, h *harness, r models.Reminder) models.Reminder {
	t.Helper()
	saved, err := h.svc.Save(context.Background(), r)
	if err != nil {
		t.Fatalf("Save(%q) returned error: %v", r.Title, err)
	}
	return saved
}

func mustGet(t *testing.T, h *harness, id string) models.Reminder {
	t.Helper()
	r, err := h.svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s) returned error: %v", id, err)
	}
	return r
}

func assertTime(t *testing.T, label string, got *time.Time, want time.Time) {
	t.Helper()
	if got == nil {
		t.Errorf("%s = nil, want %s", label, want.Format(time.RFC3339))
		return
	}
	if !got.Equal(want) {
		t.Errorf("%s = %s, want %s", label, got.Format(time.RFC3339), want.Format(time.RFC3339))
	}
}

func TestSave_SchedulesAndPersists(t *testing.T) {
	// Thursday 10:00
	h := newHarness(t, at(2026, 1, 8, 10, 0))

	saved := mustSave(t, h, weekly("Standup", 9, 0, time.Monday, time.Wednesday))

	if saved.ID == "" {
		t.Error("Save() did not generate an id")
	}
	if !saved.Enabled {
		t.Error("Save() did not enable the reminder")
	}
	monday := at(2026, 1, 12, 9, 0)
	assertTime(t, "NextTriggerDate", saved.NextTriggerDate, monday)
	assertTime(t, "LastTriggerDate", saved.LastTriggerDate, monday)

	if h.disp.scheduleCount() != 1 {
		t.Fatalf("scheduled %d notifications, want 1", h.disp.scheduleCount())
	}
	call := h.disp.scheduled[0]
	if !call.at.Equal(monday) || call.content.Body != "Standup" || call.content.Title != constants.NotificationTitle {
		t.Errorf("scheduled %+v", call)
	}
	if saved.NotificationID != call.handle {
		t.Errorf("NotificationID = %q, want %q", saved.NotificationID, call.handle)
	}

	stored := mustGet(t, h, saved.ID)
	assertTime(t, "stored NextTriggerDate", stored.NextTriggerDate, monday)
	if stored.NotificationID != call.handle {
		t.Errorf("stored NotificationID = %q", stored.NotificationID)
	}
}

func TestSave_ValidationFailurePersistsNothing(t *testing.T) {
	now := at(2026, 1, 8, 10, 0)

	tests := []struct {
		name     string
		reminder models.Reminder
	}{
		{
			name: "one-time in the past",
			reminder: models.Reminder{
				Title: "Missed",
				Rule:  models.OneTime{Date: at(2026, 1, 7, 0, 0)},
				Hour:  9,
			},
		},
		{
			name: "earlier today",
			reminder: models.Reminder{
				Title: "Too late",
				Rule:  models.OneTime{Date: at(2026, 1, 8, 0, 0)},
				Hour:  9,
			},
		},
		{
			name:     "no weekdays",
			reminder: weekly("Never", 9, 0),
		},
		{
			name:     "empty title",
			reminder: weekly("", 9, 0, time.Monday),
		},
		{
			name:     "bad hour",
			reminder: weekly("Late", 24, 0, time.Monday),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, now)
			_, err := h.svc.Save(context.Background(), tt.reminder)
			if !apperrors.IsValidation(err) {
				t.Fatalf("Save() error = %v, want ValidationError", err)
			}
			if h.disp.scheduleCount() != 0 {
				t.Errorf("scheduled %d notifications for invalid reminder", h.disp.scheduleCount())
			}
			all, _ := h.svc.List(context.Background(), true)
			if len(all) != 0 {
				t.Errorf("persisted %d reminders for invalid reminder", len(all))
			}
			if len(h.waker.armed) != 0 {
				t.Error("waker armed after failed save")
			}
		})
	}
}

func TestSave_EditReplacesAndDismissesPrior(t *testing.T) {
	h := newHarness(t, at(2026, 1, 8, 10, 0))
	first := mustSave(t, h, weekly("Standup", 9, 0, time.Monday))

	edit := first
	edit.Hour = 11
	edit.Enabled = false
	second := mustSave(t, h, edit)

	if second.ID != first.ID {
		t.Errorf("edit changed id from %s to %s", first.ID, second.ID)
	}
	if len(h.disp.dismissed) != 1 || h.disp.dismissed[0] != first.NotificationID {
		t.Errorf("dismissed = %v, want [%s]", h.disp.dismissed, first.NotificationID)
	}
	assertTime(t, "NextTriggerDate", second.NextTriggerDate, at(2026, 1, 12, 11, 0))
	if !second.Enabled {
		t.Error("edit left reminder disabled")
	}

	all, _ := h.svc.List(context.Background(), true)
	if len(all) != 1 {
		t.Errorf("List() returned %d reminders after edit, want 1", len(all))
	}
}

func TestSave_ClearsStaleComputedState(t *testing.T) {
	h := newHarness(t, at(2026, 1, 8, 10, 0))
	stale := at(2025, 6, 1, 9, 0)
	r := weekly("Standup", 9, 0, time.Monday)
	r.PrevReminderDate = &stale
	r.LastAcknowledged = &stale
	r.NextReminderDate = &stale

	saved := mustSave(t, h, r)
	if saved.PrevReminderDate != nil {
		t.Errorf("PrevReminderDate = %v, want nil", saved.PrevReminderDate)
	}
	if saved.LastAcknowledged != nil {
		t.Errorf("LastAcknowledged = %v, want nil", saved.LastAcknowledged)
	}
	assertTime(t, "NextReminderDate", saved.NextReminderDate, at(2026, 1, 12, 9, 0))
}

func TestSave_DispatchFailureDegradesGracefully(t *testing.T) {
	h := newHarness(t, at(2026, 1, 8, 10, 0))
	h.disp.failSchedule = true

	saved := mustSave(t, h, weekly("Standup", 9, 0, time.Monday))
	if saved.NotificationID != "" {
		t.Errorf("NotificationID = %q, want empty", saved.NotificationID)
	}
	if saved.LastTriggerDate != nil {
		t.Errorf("LastTriggerDate = %v, want nil after failed schedule", saved.LastTriggerDate)
	}
	monday := at(2026, 1, 12, 9, 0)
	assertTime(t, "NextTriggerDate", saved.NextTriggerDate, monday)

	// The trigger is still executed once the dispatcher recovers.
	h.disp.failSchedule = false
	h.now = monday
	if _, err := h.svc.ExecuteTriggers(context.Background(), monday); err != nil {
		t.Fatalf("ExecuteTriggers() returned error: %v", err)
	}
	if h.disp.scheduleCount() != 1 || !h.disp.scheduled[0].at.Equal(monday) {
		t.Errorf("scheduled = %+v, want one notification at %s", h.disp.scheduled, monday)
	}
}

func TestToggleEnabled_Disable(t *testing.T) {
	h := newHarness(t, at(2026, 1, 8, 10, 0))
	saved := mustSave(t, h, weekly("Standup", 9, 0, time.Monday))

	if err := h.svc.ToggleEnabled(context.Background(), []string{saved.ID}, false); err != nil {
		t.Fatalf("ToggleEnabled(false) returned error: %v", err)
	}

	got := mustGet(t, h, saved.ID)
	if got.Enabled {
		t.Error("reminder still enabled")
	}
	if got.NotificationID != "" {
		t.Errorf("NotificationID = %q, want empty", got.NotificationID)
	}
	if len(h.disp.canceled) != 1 || h.disp.canceled[0] != saved.NotificationID {
		t.Errorf("canceled = %v, want [%s]", h.disp.canceled, saved.NotificationID)
	}
	assertTime(t, "NextTriggerDate", got.NextTriggerDate, *saved.NextTriggerDate)

	wake, err := h.svc.ComputeNextWake(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if wake != nil {
		t.Errorf("ComputeNextWake() = %v, want nil with every reminder disabled", wake)
	}
	if last := h.waker.armed[len(h.waker.armed)-1]; last != nil {
		t.Errorf("waker armed at %v after disabling, want nil", last)
	}
}

func TestToggleEnabled_DisableIsNoOpWhenAlreadyDisabled(t *testing.T) {
	h := newHarness(t, at(2026, 1, 8, 10, 0))
	saved := mustSave(t, h, weekly("Standup", 9, 0, time.Monday))
	ctx := context.Background()

	h.svc.ToggleEnabled(ctx, []string{saved.ID}, false)
	h.svc.ToggleEnabled(ctx, []string{saved.ID}, false)

	if len(h.disp.canceled) != 1 {
		t.Errorf("canceled %d times, want 1", len(h.disp.canceled))
	}
}

func TestToggleEnabled_ReenableSchedules(t *testing.T) {
	h := newHarness(t, at(2026, 1, 8, 10, 0))
	saved := mustSave(t, h, weekly("Standup", 9, 0, time.Monday))
	ctx := context.Background()

	h.svc.ToggleEnabled(ctx, []string{saved.ID}, false)
	h.now = at(2026, 1, 13, 8, 0)
	if err := h.svc.ToggleEnabled(ctx, []string{saved.ID}, true); err != nil {
		t.Fatalf("ToggleEnabled(true) returned error: %v", err)
	}

	got := mustGet(t, h, saved.ID)
	if !got.Enabled {
		t.Error("reminder not enabled")
	}
	next := at(2026, 1, 19, 9, 0)
	assertTime(t, "NextTriggerDate", got.NextTriggerDate, next)
	assertTime(t, "LastTriggerDate", got.LastTriggerDate, next)
	if got.NotificationID == "" {
		t.Error("re-enabled reminder has no notification")
	}
}

func TestToggleEnabled_LapsedOneTimeRollsForwardOneDay(t *testing.T) {
	day := at(2026, 3, 9, 0, 0)
	h := newHarness(t, at(2026, 3, 9, 8, 0))
	ctx := context.Background()

	saved := mustSave(t, h, models.Reminder{
		Title: "Call the bank",
		Rule:  models.OneTime{Date: day},
		Hour:  18,
	})
	if err := h.svc.ToggleEnabled(ctx, []string{saved.ID}, false); err != nil {
		t.Fatal(err)
	}

	// A day later the occurrence has lapsed.
	h.now = at(2026, 3, 10, 10, 0)
	if err := h.svc.ToggleEnabled(ctx, []string{saved.ID}, true); err != nil {
		t.Fatalf("ToggleEnabled(true) returned error: %v", err)
	}

	got := mustGet(t, h, saved.ID)
	rule, ok := got.Rule.(models.OneTime)
	if !ok {
		t.Fatalf("rule = %#v, want OneTime", got.Rule)
	}
	if !rule.Date.Equal(day.AddDate(0, 0, 1)) {
		t.Errorf("date = %s, want exactly one day later", rule.Date)
	}
	want := at(2026, 3, 10, 18, 0)
	assertTime(t, "NextTriggerDate", got.NextTriggerDate, want)
	if !got.NextTriggerDate.After(h.now) {
		t.Error("NextTriggerDate is not in the future")
	}
}

func TestToggleEnabled_LapsedOneTimeStillPastDoesNotFail(t *testing.T) {
	h := newHarness(t, at(2026, 3, 9, 8, 0))
	ctx := context.Background()

	saved := mustSave(t, h, models.Reminder{
		Title: "Old",
		Rule:  models.OneTime{Date: at(2026, 3, 9, 0, 0)},
		Hour:  9,
	})
	h.svc.ToggleEnabled(ctx, []string{saved.ID}, false)

	h.now = at(2026, 3, 20, 8, 0)
	if err := h.svc.ToggleEnabled(ctx, []string{saved.ID}, true); err != nil {
		t.Fatalf("ToggleEnabled(true) returned error: %v", err)
	}
	got := mustGet(t, h, saved.ID)
	if got.NextTriggerDate != nil {
		t.Errorf("NextTriggerDate = %v, want nil", got.NextTriggerDate)
	}
	if !got.Enabled {
		t.Error("reminder not enabled")
	}
}

func TestToggleEnabled_UnknownID(t *testing.T) {
	h := newHarness(t, at(2026, 1, 8, 10, 0))
	saved := mustSave(t, h, weekly("Standup", 9, 0, time.Monday))

	err := h.svc.ToggleEnabled(context.Background(), []string{saved.ID, "missing"}, false)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("ToggleEnabled() error = %v, want ErrNotFound", err)
	}
	if got := mustGet(t, h, saved.ID); !got.Enabled {
		t.Error("known reminder was disabled despite the failed call")
	}
}

func TestSoftDeleteAndUndo(t *testing.T) {
	h := newHarness(t, at(2026, 1, 8, 10, 0))
	ctx := context.Background()

	a := mustSave(t, h, weekly("A", 9, 0, time.Monday))
	b := mustSave(t, h, weekly("B", 12, 30, time.Friday))
	actionID := h.svc.NewActionID()

	if err := h.svc.SoftDelete(ctx, []string{a.ID, b.ID}, actionID); err != nil {
		t.Fatalf("SoftDelete() returned error: %v", err)
	}
	if len(h.disp.canceled) != 2 {
		t.Errorf("canceled %d notifications, want 2", len(h.disp.canceled))
	}

	live, _ := h.svc.List(ctx, false)
	if len(live) != 0 {
		t.Errorf("List() returned %d live reminders after delete", len(live))
	}
	all, _ := h.svc.List(ctx, true)
	if len(all) != 2 {
		t.Errorf("List(includeDeleted) returned %d reminders, want 2", len(all))
	}
	for _, r := range all {
		if r.DeletedActionID != actionID {
			t.Errorf("%s DeletedActionID = %q, want shared %q", r.Title, r.DeletedActionID, actionID)
		}
	}
	if wake, _ := h.svc.ComputeNextWake(ctx); wake != nil {
		t.Errorf("ComputeNextWake() = %v with everything deleted", wake)
	}

	scheduledBefore := h.disp.scheduleCount()
	restored, err := h.svc.UndoDelete(ctx, actionID)
	if err != nil {
		t.Fatalf("UndoDelete() returned error: %v", err)
	}
	if restored != 2 {
		t.Errorf("UndoDelete() restored %d, want 2", restored)
	}
	if h.disp.scheduleCount()-scheduledBefore != 2 {
		t.Errorf("undo scheduled %d notifications, want 2", h.disp.scheduleCount()-scheduledBefore)
	}

	for _, want := range []models.Reminder{a, b} {
		got := mustGet(t, h, want.ID)
		if got.IsDeleted() || !got.Enabled {
			t.Errorf("%s not restored: deleted=%v enabled=%v", got.Title, got.IsDeleted(), got.Enabled)
		}
		assertTime(t, got.Title+" NextTriggerDate", got.NextTriggerDate, *want.NextTriggerDate)
	}

	wake, _ := h.svc.ComputeNextWake(ctx)
	assertTime(t, "ComputeNextWake", wake, *b.NextTriggerDate)
}

func TestUndoDelete_KeepsDisabledState(t *testing.T) {
	h := newHarness(t, at(2026, 1, 8, 10, 0))
	ctx := context.Background()

	r := mustSave(t, h, weekly("Off", 9, 0, time.Monday))
	h.svc.ToggleEnabled(ctx, []string{r.ID}, false)
	actionID := h.svc.NewActionID()
	h.svc.SoftDelete(ctx, []string{r.ID}, actionID)

	before := h.disp.scheduleCount()
	if _, err := h.svc.UndoDelete(ctx, actionID); err != nil {
		t.Fatal(err)
	}
	if h.disp.scheduleCount() != before {
		t.Error("undo scheduled a notification for a disabled reminder")
	}
	if got := mustGet(t, h, r.ID); got.Enabled || got.IsDeleted() {
		t.Errorf("restored reminder enabled=%v deleted=%v", got.Enabled, got.IsDeleted())
	}
}

func TestUndoDelete_PastOccurrenceIsNotAnError(t *testing.T) {
	h := newHarness(t, at(2026, 1, 8, 8, 0))
	ctx := context.Background()

	r := mustSave(t, h, models.Reminder{
		Title: "Today only",
		Rule:  models.OneTime{Date: at(2026, 1, 8, 0, 0)},
		Hour:  9,
	})
	actionID := h.svc.NewActionID()
	h.svc.SoftDelete(ctx, []string{r.ID}, actionID)

	h.now = at(2026, 1, 9, 8, 0)
	restored, err := h.svc.UndoDelete(ctx, actionID)
	if err != nil || restored != 1 {
		t.Fatalf("UndoDelete() = %d, %v; want 1, nil", restored, err)
	}
	if got := mustGet(t, h, r.ID); got.NextTriggerDate != nil {
		t.Errorf("NextTriggerDate = %v, want nil", got.NextTriggerDate)
	}
}

func TestUndoDelete_OnlyMatchingGroup(t *testing.T) {
	h := newHarness(t, at(2026, 1, 8, 10, 0))
	ctx := context.Background()

	a := mustSave(t, h, weekly("A", 9, 0, time.Monday))
	b := mustSave(t, h, weekly("B", 9, 0, time.Tuesday))
	h.svc.SoftDelete(ctx, []string{a.ID}, "first")
	h.svc.SoftDelete(ctx, []string{b.ID}, "second")

	if n, _ := h.svc.UndoDelete(ctx, "first"); n != 1 {
		t.Errorf("UndoDelete(first) restored %d, want 1", n)
	}
	if got := mustGet(t, h, b.ID); !got.IsDeleted() {
		t.Error("undo of one group restored another")
	}
	if n, _ := h.svc.UndoDelete(ctx, "unknown"); n != 0 {
		t.Errorf("UndoDelete(unknown) restored %d, want 0", n)
	}
}

func TestSoftDelete_RequiresActionID(t *testing.T) {
	h := newHarness(t, at(2026, 1, 8, 10, 0))
	r := mustSave(t, h, weekly("A", 9, 0, time.Monday))
	if err := h.svc.SoftDelete(context.Background(), []string{r.ID}, ""); err == nil {
		t.Error("SoftDelete() with empty action id expected error")
	}
}

func TestPurgeDeleted(t *testing.T) {
	h := newHarness(t, at(2026, 1, 8, 10, 0))
	ctx := context.Background()

	a := mustSave(t, h, weekly("A", 9, 0, time.Monday))
	b := mustSave(t, h, weekly("B", 9, 0, time.Tuesday))
	actionID := h.svc.NewActionID()
	h.svc.SoftDelete(ctx, []string{a.ID}, actionID)

	purged, err := h.svc.PurgeDeleted(ctx)
	if err != nil || purged != 1 {
		t.Fatalf("PurgeDeleted() = %d, %v; want 1, nil", purged, err)
	}
	all, _ := h.svc.List(ctx, true)
	if len(all) != 1 || all[0].ID != b.ID {
		t.Errorf("List() after purge = %+v", all)
	}
	if n, _ := h.svc.UndoDelete(ctx, actionID); n != 0 {
		t.Errorf("undo after purge restored %d", n)
	}
}

func TestReplace(t *testing.T) {
	h := newHarness(t, at(2026, 1, 8, 10, 0))
	ctx := context.Background()
	old := mustSave(t, h, weekly("Old", 9, 0, time.Friday))

	n, err := h.svc.Replace(ctx, []models.Reminder{
		{ID: "r1", Title: "Restored", Rule: models.Weekdays{Days: []time.Weekday{time.Monday}}, Hour: 9, Enabled: true, NotificationID: "stale"},
		{ID: "r2", Title: "Off", Rule: models.Monthly{Day: 3}, Hour: 8},
	})
	if err != nil || n != 1 {
		t.Fatalf("Replace() = %d, %v; want 1, nil", n, err)
	}

	if len(h.disp.canceled) != 1 || h.disp.canceled[0] != old.NotificationID {
		t.Errorf("canceled = %v, want [%s]", h.disp.canceled, old.NotificationID)
	}
	if _, err := h.svc.Get(ctx, old.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(old) error = %v, want ErrNotFound", err)
	}

	r1 := mustGet(t, h, "r1")
	assertTime(t, "r1 NextTriggerDate", r1.NextTriggerDate, at(2026, 1, 12, 9, 0))
	if r1.NotificationID == "" || r1.NotificationID == "stale" {
		t.Errorf("r1 NotificationID = %q, want a fresh handle", r1.NotificationID)
	}
	if r2 := mustGet(t, h, "r2"); r2.NotificationID != "" || r2.NextTriggerDate != nil {
		t.Errorf("disabled r2 = %+v, want no trigger", r2)
	}
}

func TestReplace_RejectsInvalidWithoutSideEffects(t *testing.T) {
	h := newHarness(t, at(2026, 1, 8, 10, 0))
	ctx := context.Background()
	mustSave(t, h, weekly("Keep", 9, 0, time.Friday))

	tests := []struct {
		name      string
		reminders []models.Reminder
	}{
		{
			name: "repeated id",
			reminders: []models.Reminder{
				{ID: "x", Title: "A", Rule: models.Monthly{Day: 1}, Enabled: true},
				{ID: "x", Title: "B", Rule: models.Monthly{Day: 2}, Enabled: true},
			},
		},
		{
			name:      "missing id",
			reminders: []models.Reminder{{Title: "A", Rule: models.Monthly{Day: 1}}},
		},
		{
			name:      "invalid rule",
			reminders: []models.Reminder{{ID: "y", Title: "A", Rule: models.Monthly{Day: 40}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Replace(ctx, tt.reminders)
			if !apperrors.IsValidation(err) {
				t.Fatalf("Replace() error = %v, want a validation error", err)
			}
			if len(h.disp.canceled) != 0 {
				t.Errorf("canceled = %v, want none", h.disp.canceled)
			}
			all, _ := h.svc.List(ctx, true)
			if len(all) != 1 || all[0].Title != "Keep" {
				t.Errorf("List() = %+v, want the original reminder", all)
			}
		})
	}
}

func TestComputeNextWake_Empty(t *testing.T) {
	h := newHarness(t, at(2026, 1, 8, 10, 0))
	wake, err := h.svc.ComputeNextWake(context.Background())
	if err != nil || wake != nil {
		t.Errorf("ComputeNextWake() = %v, %v; want nil, nil", wake, err)
	}
}

func TestComputeNextWake_Earliest(t *testing.T) {
	h := newHarness(t, at(2026, 1, 8, 10, 0))
	mustSave(t, h, weekly("Later", 9, 0, time.Friday))
	mustSave(t, h, weekly("Sooner", 11, 0, time.Thursday))

	wake, err := h.svc.ComputeNextWake(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	assertTime(t, "ComputeNextWake", wake, at(2026, 1, 8, 11, 0))
}

func TestExecuteTriggers_Idempotent(t *testing.T) {
	start := at(2026, 1, 8, 8, 0)
	h := newHarness(t, start)
	ctx := context.Background()

	r := weekly("Pills", 9, 0, everyDay()...)
	r.ContinuousAlert = true
	saved := mustSave(t, h, r)
	occurrence := at(2026, 1, 8, 9, 0)
	assertTime(t, "initial trigger", saved.NextTriggerDate, occurrence)

	// The occurrence itself was booked by Save, so executing at it does not fire again.
	wake, err := h.svc.ExecuteTriggers(ctx, occurrence)
	if err != nil {
		t.Fatal(err)
	}
	if h.disp.scheduleCount() != 1 {
		t.Errorf("scheduled %d notifications at occurrence, want 1", h.disp.scheduleCount())
	}
	assertTime(t, "wake after occurrence", wake, occurrence.Add(5*time.Minute))

	got := mustGet(t, h, saved.ID)
	assertTime(t, "PrevReminderDate", got.PrevReminderDate, occurrence)
	assertTime(t, "NextReminderDate", got.NextReminderDate, occurrence.AddDate(0, 0, 1))

	for i := 0; i < 3; i++ {
		for _, now := range []time.Time{occurrence, occurrence.Add(-time.Minute)} {
			if _, err := h.svc.ExecuteTriggers(ctx, now); err != nil {
				t.Fatal(err)
			}
		}
	}
	if h.disp.scheduleCount() != 1 {
		t.Errorf("repeat runs scheduled %d notifications, want 1", h.disp.scheduleCount())
	}

	step := occurrence.Add(5 * time.Minute)
	for i := 0; i < 2; i++ {
		wake, err = h.svc.ExecuteTriggers(ctx, step)
		if err != nil {
			t.Fatal(err)
		}
	}
	if h.disp.scheduleCount() != 2 {
		t.Errorf("scheduled %d notifications after first escalation, want 2", h.disp.scheduleCount())
	}
	assertTime(t, "wake after escalation", wake, occurrence.Add(10*time.Minute))
	assertTime(t, "LastTriggerDate", mustGet(t, h, saved.ID).LastTriggerDate, step)
}

func TestExecuteTriggers_EscalationCycle(t *testing.T) {
	h := newHarness(t, at(2026, 1, 8, 8, 0))
	ctx := context.Background()

	r := weekly("Pills", 9, 0, everyDay()...)
	r.ContinuousAlert = true
	saved := mustSave(t, h, r)
	occurrence := at(2026, 1, 8, 9, 0)

	h.svc.ExecuteTriggers(ctx, occurrence)

	var fired []time.Time
	for m := 5; m <= 40; m += 5 {
		now := occurrence.Add(time.Duration(m) * time.Minute)
		before := h.disp.scheduleCount()
		if _, err := h.svc.ExecuteTriggers(ctx, now); err != nil {
			t.Fatal(err)
		}
		if h.disp.scheduleCount() > before {
			fired = append(fired, now)
		}
	}

	if len(fired) != 6 {
		t.Fatalf("escalation fired %d times (%v), want 6", len(fired), fired)
	}
	assertTime(t, "last escalation", &fired[5], occurrence.Add(30*time.Minute))

	got := mustGet(t, h, saved.ID)
	assertTime(t, "settled trigger", got.NextTriggerDate, occurrence.AddDate(0, 0, 1))
}

func TestExecuteTriggers_NonContinuousRollsToNextOccurrence(t *testing.T) {
	h := newHarness(t, at(2026, 1, 8, 8, 0))
	ctx := context.Background()

	saved := mustSave(t, h, weekly("Trash", 9, 0, time.Thursday))
	occurrence := at(2026, 1, 8, 9, 0)
	h.svc.ExecuteTriggers(ctx, occurrence)

	// A week later the dispatcher has nothing booked for this occurrence yet.
	nextWeek := occurrence.AddDate(0, 0, 7)
	wake, err := h.svc.ExecuteTriggers(ctx, nextWeek)
	if err != nil {
		t.Fatal(err)
	}
	if h.disp.scheduleCount() != 2 {
		t.Fatalf("scheduled %d notifications, want 2", h.disp.scheduleCount())
	}
	call := h.disp.scheduled[1]
	if !call.at.Equal(nextWeek) {
		t.Errorf("fired at %s, want %s", call.at, nextWeek)
	}
	if len(h.disp.dismissed) != 1 || h.disp.dismissed[0] != saved.NotificationID {
		t.Errorf("dismissed = %v, want prior handle %s", h.disp.dismissed, saved.NotificationID)
	}
	assertTime(t, "wake", wake, nextWeek.AddDate(0, 0, 7))
}

func TestExecuteTriggers_SkipsDisabledAndDeleted(t *testing.T) {
	h := newHarness(t, at(2026, 1, 8, 8, 0))
	ctx := context.Background()

	off := mustSave(t, h, weekly("Off", 9, 0, everyDay()...))
	gone := mustSave(t, h, weekly("Gone", 9, 0, everyDay()...))
	h.svc.ToggleEnabled(ctx, []string{off.ID}, false)
	h.svc.SoftDelete(ctx, []string{gone.ID}, "x")

	before := h.disp.scheduleCount()
	wake, err := h.svc.ExecuteTriggers(ctx, at(2026, 1, 9, 9, 0))
	if err != nil {
		t.Fatal(err)
	}
	if h.disp.scheduleCount() != before {
		t.Error("disabled or deleted reminders fired")
	}
	if wake != nil {
		t.Errorf("wake = %v, want nil", wake)
	}
}

func TestAcknowledge_EndsEscalation(t *testing.T) {
	h := newHarness(t, at(2026, 1, 8, 8, 0))
	ctx := context.Background()

	r := weekly("Pills", 9, 0, everyDay()...)
	r.ContinuousAlert = true
	saved := mustSave(t, h, r)
	occurrence := at(2026, 1, 8, 9, 0)
	h.svc.ExecuteTriggers(ctx, occurrence)
	h.svc.ExecuteTriggers(ctx, occurrence.Add(5*time.Minute))
	escalating := mustGet(t, h, saved.ID)

	h.now = occurrence.Add(7 * time.Minute)
	if err := h.svc.Acknowledge(ctx, []string{saved.ID}); err != nil {
		t.Fatalf("Acknowledge() returned error: %v", err)
	}

	got := mustGet(t, h, saved.ID)
	assertTime(t, "LastAcknowledged", got.LastAcknowledged, h.now)
	tomorrow := occurrence.AddDate(0, 0, 1)
	assertTime(t, "NextTriggerDate", got.NextTriggerDate, tomorrow)
	if got.NotificationID == "" || got.NotificationID == escalating.NotificationID {
		t.Errorf("NotificationID = %q, want a fresh handle", got.NotificationID)
	}
	found := false
	for _, d := range h.disp.dismissed {
		if d == escalating.NotificationID {
			found = true
		}
	}
	if !found {
		t.Errorf("escalation handle %s was not dismissed", escalating.NotificationID)
	}

	before := h.disp.scheduleCount()
	h.svc.ExecuteTriggers(ctx, occurrence.Add(10*time.Minute))
	if h.disp.scheduleCount() != before {
		t.Error("acknowledged reminder kept escalating")
	}
}

func TestDisableLapsed(t *testing.T) {
	h := newHarness(t, at(2026, 3, 9, 8, 0))
	ctx := context.Background()

	once := mustSave(t, h, models.Reminder{Title: "Once", Rule: models.OneTime{Date: at(2026, 3, 9, 0, 0)}, Hour: 18})
	recurring := mustSave(t, h, weekly("Weekly", 9, 0, time.Monday))

	publishes := 0
	h.svc.Subscribe(func([]models.Reminder) { publishes++ })

	h.now = at(2026, 3, 10, 8, 0)
	n, err := h.svc.DisableLapsed(ctx)
	if err != nil || n != 1 {
		t.Fatalf("DisableLapsed() = %d, %v; want 1, nil", n, err)
	}
	if mustGet(t, h, once.ID).Enabled {
		t.Error("lapsed one-time reminder still enabled")
	}
	if !mustGet(t, h, recurring.ID).Enabled {
		t.Error("recurring reminder was disabled")
	}

	n, _ = h.svc.DisableLapsed(ctx)
	if n != 0 {
		t.Errorf("second DisableLapsed() = %d, want 0", n)
	}
	if publishes != 1 {
		t.Errorf("published %d times, want 1 (no write without change)", publishes)
	}
}

func TestCancelAll(t *testing.T) {
	h := newHarness(t, at(2026, 1, 8, 10, 0))
	ctx := context.Background()
	mustSave(t, h, weekly("A", 9, 0, time.Monday))
	mustSave(t, h, weekly("B", 9, 0, time.Tuesday))

	n, err := h.svc.CancelAll(ctx)
	if err != nil || n != 2 {
		t.Fatalf("CancelAll() = %d, %v; want 2, nil", n, err)
	}
	all, _ := h.svc.List(ctx, true)
	for _, r := range all {
		if r.NotificationID != "" {
			t.Errorf("%s still holds handle %s", r.Title, r.NotificationID)
		}
	}
}

func TestCancelFailureStillDisables(t *testing.T) {
	h := newHarness(t, at(2026, 1, 8, 10, 0))
	saved := mustSave(t, h, weekly("A", 9, 0, time.Monday))
	h.disp.failCancel = true

	if err := h.svc.ToggleEnabled(context.Background(), []string{saved.ID}, false); err != nil {
		t.Fatalf("ToggleEnabled() returned error: %v", err)
	}
	if mustGet(t, h, saved.ID).Enabled {
		t.Error("dispatch failure blocked disabling")
	}
}

func TestSubscribe_ReceivesSnapshots(t *testing.T) {
	h := newHarness(t, at(2026, 1, 8, 10, 0))

	var snapshots [][]models.Reminder
	unsubscribe := h.svc.Subscribe(func(s []models.Reminder) { snapshots = append(snapshots, s) })

	a := mustSave(t, h, weekly("A", 9, 0, time.Monday))
	mustSave(t, h, weekly("B", 9, 0, time.Tuesday))

	if len(snapshots) != 2 {
		t.Fatalf("received %d snapshots, want 2", len(snapshots))
	}
	if len(snapshots[1]) != 2 {
		t.Errorf("second snapshot has %d reminders, want the full collection", len(snapshots[1]))
	}

	unsubscribe()
	h.svc.ToggleEnabled(context.Background(), []string{a.ID}, false)
	if len(snapshots) != 2 {
		t.Error("listener called after unsubscribe")
	}

	if len(h.waker.armed) != 3 {
		t.Errorf("waker armed %d times, want 3", len(h.waker.armed))
	}
}

func TestServicesAreIndependent(t *testing.T) {
	h1 := newHarness(t, at(2026, 1, 8, 10, 0))
	h2 := newHarness(t, at(2026, 1, 8, 10, 0))

	calls := 0
	h2.svc.Subscribe(func([]models.Reminder) { calls++ })
	mustSave(t, h1, weekly("A", 9, 0, time.Monday))

	if calls != 0 {
		t.Error("listener on one service saw another service's change")
	}
}

func TestStorageErrorAbortsMutation(t *testing.T) {
	h := newHarness(t, at(2026, 1, 8, 10, 0))
	publishes := 0
	h.svc.Subscribe(func([]models.Reminder) { publishes++ })
	h.store.failSet = true

	_, err := h.svc.Save(context.Background(), weekly("A", 9, 0, time.Monday))
	if !apperrors.IsStorage(err) {
		t.Fatalf("Save() error = %v, want StorageError", err)
	}
	if publishes != 0 || len(h.waker.armed) != 0 {
		t.Error("listeners or waker notified for an uncommitted change")
	}

	h.store.failSet = false
	all, _ := h.svc.List(context.Background(), true)
	if len(all) != 0 {
		t.Errorf("List() = %d reminders after failed write", len(all))
	}
}

func TestConcurrentMutationsDoNotLoseUpdates(t *testing.T) {
	h := newHarness(t, at(2026, 1, 8, 10, 0))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := weekly(fmt.Sprintf("R%02d", i), 9, 0, time.Monday)
			if _, err := h.svc.Save(ctx, r); err != nil {
				t.Errorf("Save() returned error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	all, _ := h.svc.List(ctx, true)
	if len(all) != 20 {
		t.Errorf("List() returned %d reminders, want 20", len(all))
	}
}

func TestSave_RejectsDeletedID(t *testing.T) {
	h := newHarness(t, at(2026, 1, 8, 10, 0))
	ctx := context.Background()

	r := mustSave(t, h, weekly("A", 9, 0, time.Monday))
	if err := h.svc.SoftDelete(ctx, []string{r.ID}, "x"); err != nil {
		t.Fatal(err)
	}

	r.Title = "A edited"
	if _, err := h.svc.Save(ctx, r); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Save() of a deleted reminder error = %v, want ErrNotFound", err)
	}
	got := mustGet(t, h, r.ID)
	if !got.IsDeleted() || got.Title != "A" {
		t.Errorf("deleted reminder changed: deleted=%t title=%q", got.IsDeleted(), got.Title)
	}
	if n, _ := h.svc.UndoDelete(ctx, "x"); n != 1 {
		t.Errorf("UndoDelete() restored %d, want 1", n)
	}
}

func TestDisableLapsed_KeepsEscalatingOneTime(t *testing.T) {
	h := newHarness(t, at(2026, 1, 8, 8, 0))
	ctx := context.Background()

	occurrence := at(2026, 1, 8, 9, 0)
	saved := mustSave(t, h, models.Reminder{
		Title:           "Call back",
		Rule:            models.OneTime{Date: at(2026, 1, 8, 0, 0)},
		Hour:            9,
		ContinuousAlert: true,
	})
	if _, err := h.svc.ExecuteTriggers(ctx, occurrence); err != nil {
		t.Fatal(err)
	}

	h.now = occurrence.Add(time.Minute)
	if n, err := h.svc.DisableLapsed(ctx); err != nil || n != 0 {
		t.Fatalf("DisableLapsed() inside the alert window = %d, %v; want 0, nil", n, err)
	}
	if got := mustGet(t, h, saved.ID); !got.Enabled {
		t.Fatal("escalating one-time reminder was disabled")
	}

	before := h.disp.scheduleCount()
	if _, err := h.svc.ExecuteTriggers(ctx, occurrence.Add(5*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if h.disp.scheduleCount() != before+1 {
		t.Errorf("no escalation fired at +5m (%d schedules, want %d)", h.disp.scheduleCount(), before+1)
	}

	// Past the grace window nothing is left to fire.
	h.now = occurrence.Add(40 * time.Minute)
	if _, err := h.svc.ExecuteTriggers(ctx, h.now); err != nil {
		t.Fatal(err)
	}
	if n, _ := h.svc.DisableLapsed(ctx); n != 1 {
		t.Errorf("DisableLapsed() after the alert window = %d, want 1", n)
	}
}

func TestDisableLapsed_LeavesUnfiredTriggerForExecuteTriggers(t *testing.T) {
	h := newHarness(t, at(2026, 1, 8, 8, 0))
	ctx := context.Background()

	h.disp.failSchedule = true
	saved := mustSave(t, h, models.Reminder{Title: "Once", Rule: models.OneTime{Date: at(2026, 1, 8, 0, 0)}, Hour: 9})
	h.disp.failSchedule = false

	h.now = at(2026, 1, 8, 9, 1)
	if n, _ := h.svc.DisableLapsed(ctx); n != 0 {
		t.Fatalf("DisableLapsed() = %d, want 0 while the occurrence is unfired", n)
	}

	before := h.disp.scheduleCount()
	if _, err := h.svc.ExecuteTriggers(ctx, h.now); err != nil {
		t.Fatal(err)
	}
	if h.disp.scheduleCount() != before+1 {
		t.Fatal("ExecuteTriggers() did not fire the missed occurrence")
	}
	if n, _ := h.svc.DisableLapsed(ctx); n != 1 {
		t.Errorf("DisableLapsed() after firing = %d, want 1", n)
	}
	if got := mustGet(t, h, saved.ID); got.Enabled {
		t.Error("fired one-time reminder still enabled")
	}
}

func TestSeparateServicesOnOneStoreDoNotLoseWrites(t *testing.T) {
	h := newHarness(t, at(2026, 1, 8, 8, 0))
	ctx := context.Background()
	// An unbooked trigger makes the run below fire through the dispatcher.
	h.disp.failSchedule = true
	pills := mustSave(t, h, weekly("Pills", 9, 0, everyDay()...))
	h.disp.failSchedule = false

	// A second service over the same store stands in for a CLI process.
	other := New(storage.NewRepository(h.store, constants.RemindersKey), &fakeDispatcher{}, Options{
		Now: func() time.Time { return at(2026, 1, 8, 9, 0) },
	})

	saved := make(chan error, 1)
	hook := &hookDispatcher{fakeDispatcher: h.disp}
	hook.onSchedule = func() {
		go func() {
			_, err := other.Save(ctx, weekly("Water", 12, 0, everyDay()...))
			saved <- err
		}()
		// Give the concurrent save every chance to land mid-run.
		time.Sleep(50 * time.Millisecond)
	}
	daemon := New(storage.NewRepository(h.store, constants.RemindersKey), hook, Options{
		Now: func() time.Time { return at(2026, 1, 8, 9, 0) },
	})

	if _, err := daemon.ExecuteTriggers(ctx, at(2026, 1, 8, 9, 0)); err != nil {
		t.Fatalf("ExecuteTriggers() returned error: %v", err)
	}
	if h.disp.scheduleCount() != 1 {
		t.Fatalf("ExecuteTriggers() scheduled %d notifications, want 1", h.disp.scheduleCount())
	}
	if err := <-saved; err != nil {
		t.Fatalf("concurrent Save() returned error: %v", err)
	}

	all, err := h.svc.List(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("List() returned %d reminders, want 2", len(all))
	}
	got := mustGet(t, h, pills.ID)
	assertTime(t, "fired reminder's next trigger", got.NextTriggerDate, at(2026, 1, 9, 9, 0))
}
