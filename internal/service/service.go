package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/chime/internal/constants"
	apperrors "github.com/julianstephens/chime/internal/errors"
	"github.com/julianstephens/chime/internal/events"
	"github.com/julianstephens/chime/internal/logger"
	"github.com/julianstephens/chime/internal/models"
	"github.com/julianstephens/chime/internal/notifier"
	"github.com/julianstephens/chime/internal/scheduler"
	"github.com/julianstephens/chime/internal/storage"
)

// ErrNotFound is returned when an id does not name a live reminder.
var ErrNotFound = errors.New("reminder not found")

// Dispatcher schedules user-visible notifications. At most one live handle
// is held per reminder.
type Dispatcher interface {
	Schedule(ctx context.Context, content notifier.Content, at time.Time) (string, error)
	Cancel(ctx context.Context, handle string) error
	Dismiss(ctx context.Context, handle string) error
}

// Waker is told the next instant the service needs to run ExecuteTriggers.
// A nil instant means nothing is pending.
type Waker interface {
	Arm(at *time.Time)
}

type Options struct {
	// Now defaults to time.Now
	Now   func() time.Time
	Waker Waker
	// Bus defaults to a private bus
	Bus *events.Bus
}

// Service owns every read-modify-write of the reminder collection. Mutations
// are serialized by one lock; reads go straight to the store.
type Service struct {
	mu    sync.Mutex
	repo  *storage.Repository
	disp  Dispatcher
	bus   *events.Bus
	waker Waker
	now   func() time.Time
}

func New(repo *storage.Repository, disp Dispatcher, opts Options) *Service {
	s := &Service{
		repo:  repo,
		disp:  disp,
		bus:   opts.Bus,
		waker: opts.Waker,
		now:   opts.Now,
	}
	if s.bus == nil {
		s.bus = events.New()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Subscribe registers l for collection snapshots after every committed change.
func (s *Service) Subscribe(l events.Listener) func() {
	return s.bus.Subscribe(l)
}

// NewActionID mints a token that groups a soft delete for undo.
func (s *Service) NewActionID() string {
	return uuid.New().String()
}

// List returns the stored reminders ordered by title. Tombstones are included
// only when includeDeleted is set.
func (s *Service) List(ctx context.Context, includeDeleted bool) ([]models.Reminder, error) {
	reminders, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Reminder, 0, len(reminders))
	for _, r := range reminders {
		if r.IsDeleted() && !includeDeleted {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (s *Service) Get(ctx context.Context, id string) (models.Reminder, error) {
	reminders, err := s.repo.Load(ctx)
	if err != nil {
		return models.Reminder{}, err
	}
	for _, r := range reminders {
		if r.ID == id {
			return r, nil
		}
	}
	return models.Reminder{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// ComputeNextWake returns the earliest future trigger across enabled, live
// reminders, or nil when nothing is pending.
func (s *Service) ComputeNextWake(ctx context.Context) (*time.Time, error) {
	reminders, err := s.repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	return nextWake(reminders, s.now()), nil
}

// Save validates and schedules r, inserting it or replacing the stored
// reminder with the same id. All computed state is rebuilt from scratch.
func (s *Service) Save(ctx context.Context, r models.Reminder) (models.Reminder, error) {
	var saved models.Reminder
	err := s.mutate(ctx, func(ctx context.Context, reminders []models.Reminder, now time.Time) ([]models.Reminder, bool, error) {
		if err := r.Validate(); err != nil {
			return nil, false, &apperrors.ValidationError{Reason: err.Error()}
		}

		idx := -1
		if r.ID != "" {
			idx = indexOf(reminders, r.ID)
		}
		if idx >= 0 && reminders[idx].IsDeleted() {
			return nil, false, fmt.Errorf("%w: %s", ErrNotFound, r.ID)
		}

		r.ClearTriggerState()
		r.Enabled = true
		r.DeletedActionID = ""
		r, _ = scheduler.Evaluate(r, now)
		if r.NextTriggerDate == nil || !r.NextTriggerDate.After(now) {
			return nil, false, apperrors.Validationf("%q never fires after %s", r.Title, now.Format(constants.DateFormat+" "+constants.TimeFormat))
		}

		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		if idx >= 0 {
			s.dismiss(ctx, reminders[idx].NotificationID)
		}
		r.NotificationID = ""
		s.schedule(ctx, &r)

		if idx >= 0 {
			reminders[idx] = r
		} else {
			reminders = append(reminders, r)
		}
		saved = r
		logger.Info("Reminder saved", "id", r.ID, "title", r.Title, "next_trigger", r.NextTriggerDate)
		return reminders, true, nil
	})
	return saved, err
}

// ToggleEnabled switches the given reminders on or off. Reminders already in
// the requested state are left alone. Re-enabling a lapsed one-time reminder
// moves its date forward one day.
func (s *Service) ToggleEnabled(ctx context.Context, ids []string, enable bool) error {
	return s.mutate(ctx, func(ctx context.Context, reminders []models.Reminder, now time.Time) ([]models.Reminder, bool, error) {
		targets, err := liveIndexes(reminders, ids)
		if err != nil {
			return nil, false, err
		}

		changed := false
		for _, i := range targets {
			r := reminders[i]
			switch {
			case enable && !r.Enabled:
				if rule, ok := r.Rule.(models.OneTime); ok && (r.NextReminderDate == nil || r.NextReminderDate.Before(now)) {
					r.Rule = models.OneTime{Date: rule.Date.AddDate(0, 0, 1)}
				}
				r.Enabled = true
				r, _ = scheduler.Evaluate(r, now)
				if r.NextTriggerDate != nil {
					s.schedule(ctx, &r)
				}
				logger.Info("Reminder enabled", "id", r.ID, "next_trigger", r.NextTriggerDate)
			case !enable && r.Enabled:
				s.cancel(ctx, r.NotificationID)
				r.NotificationID = ""
				r.Enabled = false
				logger.Info("Reminder disabled", "id", r.ID)
			default:
				continue
			}
			reminders[i] = r
			changed = true
		}
		return reminders, changed, nil
	})
}

// SoftDelete tombstones the given reminders under actionID and cancels their
// notifications. The whole group is restored by one UndoDelete(actionID).
func (s *Service) SoftDelete(ctx context.Context, ids []string, actionID string) error {
	if actionID == "" {
		return fmt.Errorf("soft delete requires an action id")
	}
	return s.mutate(ctx, func(ctx context.Context, reminders []models.Reminder, now time.Time) ([]models.Reminder, bool, error) {
		targets, err := liveIndexes(reminders, ids)
		if err != nil {
			return nil, false, err
		}
		for _, i := range targets {
			s.cancel(ctx, reminders[i].NotificationID)
			reminders[i].DeletedActionID = actionID
		}
		logger.Info("Reminders deleted", "count", len(targets), "action_id", actionID)
		return reminders, len(targets) > 0, nil
	})
}

// UndoDelete restores every reminder tombstoned under actionID. Enabled ones
// are re-evaluated and rescheduled; a restored reminder with no future
// trigger is kept with a nil trigger.
func (s *Service) UndoDelete(ctx context.Context, actionID string) (int, error) {
	restored := 0
	err := s.mutate(ctx, func(ctx context.Context, reminders []models.Reminder, now time.Time) ([]models.Reminder, bool, error) {
		if actionID == "" {
			return nil, false, nil
		}
		for i := range reminders {
			r := reminders[i]
			if r.DeletedActionID != actionID {
				continue
			}
			r.DeletedActionID = ""
			if r.Enabled {
				r, _ = scheduler.Evaluate(r, now)
				if r.NextTriggerDate != nil && r.NextTriggerDate.After(now) {
					s.schedule(ctx, &r)
				}
			}
			reminders[i] = r
			restored++
		}
		logger.Info("Reminders restored", "count", restored, "action_id", actionID)
		return reminders, restored > 0, nil
	})
	return restored, err
}

// PurgeDeleted permanently drops every tombstone.
func (s *Service) PurgeDeleted(ctx context.Context) (int, error) {
	purged := 0
	err := s.mutate(ctx, func(ctx context.Context, reminders []models.Reminder, now time.Time) ([]models.Reminder, bool, error) {
		kept := make([]models.Reminder, 0, len(reminders))
		for _, r := range reminders {
			if r.IsDeleted() {
				purged++
				continue
			}
			kept = append(kept, r)
		}
		return kept, purged > 0, nil
	})
	return purged, err
}

// Replace swaps the whole collection for reminders, as when restoring a
// snapshot. Every outstanding notification is canceled, then enabled live
// reminders are re-evaluated and rescheduled. Nothing changes if any reminder
// is invalid or ids repeat.
func (s *Service) Replace(ctx context.Context, reminders []models.Reminder) (int, error) {
	scheduled := 0
	err := s.mutate(ctx, func(ctx context.Context, current []models.Reminder, now time.Time) ([]models.Reminder, bool, error) {
		seen := make(map[string]bool, len(reminders))
		for i := range reminders {
			r := &reminders[i]
			if r.ID == "" || seen[r.ID] {
				return nil, false, apperrors.Validationf("reminder %q has a missing or repeated id", r.Title)
			}
			seen[r.ID] = true
			if err := r.Validate(); err != nil {
				return nil, false, apperrors.Validationf("reminder %s: %v", r.ID, err)
			}
		}

		for _, r := range current {
			s.cancel(ctx, r.NotificationID)
		}

		next := make([]models.Reminder, len(reminders))
		for i, r := range reminders {
			r.NotificationID = ""
			if r.IsActive() {
				r, _ = scheduler.Evaluate(r, now)
				if r.NextTriggerDate != nil && r.NextTriggerDate.After(now) {
					s.schedule(ctx, &r)
					scheduled++
				}
			}
			next[i] = r
		}
		logger.Info("Reminders replaced", "count", len(next), "scheduled", scheduled)
		return next, true, nil
	})
	return scheduled, err
}

// ExecuteTriggers fires every enabled, live reminder whose trigger is due at
// now and rolls it forward, then returns the next wake. A reminder whose last
// trigger already covers its next trigger is not fired again, so repeating a
// run for the same or an earlier now is harmless.
func (s *Service) ExecuteTriggers(ctx context.Context, now time.Time) (*time.Time, error) {
	var wake *time.Time
	err := s.mutateAt(ctx, now, func(ctx context.Context, reminders []models.Reminder, now time.Time) ([]models.Reminder, bool, error) {
		changed := false
		for i := range reminders {
			r := reminders[i]
			if !r.IsActive() || r.NextTriggerDate == nil || r.NextTriggerDate.After(now) {
				continue
			}

			if r.LastTriggerDate == nil || r.LastTriggerDate.Before(*r.NextTriggerDate) {
				s.dismiss(ctx, r.NotificationID)
				r.NotificationID = ""
				handle, err := s.disp.Schedule(ctx, contentFor(r), now)
				if err != nil {
					logDispatch(&apperrors.DispatchError{Op: "schedule", Err: err})
				} else {
					r.NotificationID = handle
				}
				r.LastTriggerDate = models.TimePtr(now)
				logger.Info("Reminder fired", "id", r.ID, "title", r.Title)
			}

			var state scheduler.State
			r, state = scheduler.Evaluate(r, now)
			logger.Debug("Reminder rolled forward", "id", r.ID, "state", state, "next_trigger", r.NextTriggerDate)
			reminders[i] = r
			changed = true
		}
		wake = nextWake(reminders, now)
		return reminders, changed, nil
	})
	if err != nil {
		return nil, err
	}
	return wake, nil
}

// Acknowledge ends the continuous alert cycle of the given reminders and
// schedules their next natural occurrence.
func (s *Service) Acknowledge(ctx context.Context, ids []string) error {
	return s.mutate(ctx, func(ctx context.Context, reminders []models.Reminder, now time.Time) ([]models.Reminder, bool, error) {
		targets, err := liveIndexes(reminders, ids)
		if err != nil {
			return nil, false, err
		}
		for _, i := range targets {
			r := reminders[i]
			r.LastAcknowledged = models.TimePtr(now)
			s.dismiss(ctx, r.NotificationID)
			r.NotificationID = ""
			r, _ = scheduler.Evaluate(r, now)
			if r.NextTriggerDate != nil {
				s.schedule(ctx, &r)
			}
			reminders[i] = r
			logger.Info("Reminder acknowledged", "id", r.ID, "next_trigger", r.NextTriggerDate)
		}
		return reminders, len(targets) > 0, nil
	})
}

// DisableLapsed switches off enabled one-time reminders that will never fire
// again: their occurrence has passed and no continuous alert step is left.
// The notification handle is kept, so an occurrence that is due but not yet
// delivered still goes out. Nothing is written when nothing lapsed.
func (s *Service) DisableLapsed(ctx context.Context) (int, error) {
	disabled := 0
	err := s.mutate(ctx, func(ctx context.Context, reminders []models.Reminder, now time.Time) ([]models.Reminder, bool, error) {
		for i := range reminders {
			r := reminders[i]
			if !r.IsActive() || !r.IsOneTime() {
				continue
			}
			if r.NextTriggerDate != nil && r.NextTriggerDate.After(now) {
				continue
			}
			evaluated, _ := scheduler.Evaluate(r, now)
			if evaluated.NextTriggerDate != nil {
				continue
			}
			// A due trigger that was never fired still belongs to ExecuteTriggers.
			if r.NextTriggerDate != nil && (r.LastTriggerDate == nil || r.LastTriggerDate.Before(*r.NextTriggerDate)) {
				continue
			}
			evaluated.Enabled = false
			reminders[i] = evaluated
			disabled++
			logger.Debug("Disabled lapsed reminder", "id", r.ID)
		}
		return reminders, disabled > 0, nil
	})
	return disabled, err
}

// CancelAll cancels every outstanding notification and forgets the handles.
func (s *Service) CancelAll(ctx context.Context) (int, error) {
	canceled := 0
	err := s.mutate(ctx, func(ctx context.Context, reminders []models.Reminder, now time.Time) ([]models.Reminder, bool, error) {
		for i := range reminders {
			if reminders[i].NotificationID == "" {
				continue
			}
			s.cancel(ctx, reminders[i].NotificationID)
			reminders[i].NotificationID = ""
			canceled++
		}
		return reminders, canceled > 0, nil
	})
	return canceled, err
}

// mutation edits the collection at now. ctx carries the store lock and must
// be the one handed to the dispatcher.
type mutation func(ctx context.Context, reminders []models.Reminder, now time.Time) ([]models.Reminder, bool, error)

func (s *Service) mutate(ctx context.Context, fn mutation) error {
	return s.mutateAt(ctx, s.now(), fn)
}

// mutateAt runs fn under the lock against a freshly loaded collection and
// writes the result back once. Listeners and the waker are told after unlocking.
func (s *Service) mutateAt(ctx context.Context, now time.Time, fn mutation) error {
	var (
		updated []models.Reminder
		changed bool
	)
	s.mu.Lock()
	err := s.repo.Update(ctx, func(ctx context.Context, reminders []models.Reminder) ([]models.Reminder, bool, error) {
		var err error
		updated, changed, err = fn(ctx, reminders, now)
		return updated, changed, err
	})
	s.mu.Unlock()
	if err != nil || !changed {
		return err
	}

	s.bus.Publish(updated)
	if s.waker != nil {
		s.waker.Arm(nextWake(updated, now))
	}
	return nil
}

// schedule books r's next trigger and records the handle. LastTriggerDate is
// only advanced when the dispatcher accepted it, so a failed booking is
// picked up by ExecuteTriggers when due.
func (s *Service) schedule(ctx context.Context, r *models.Reminder) {
	handle, err := s.disp.Schedule(ctx, contentFor(*r), *r.NextTriggerDate)
	if err != nil {
		logDispatch(&apperrors.DispatchError{Op: "schedule", Err: err})
		r.NotificationID = ""
		return
	}
	r.NotificationID = handle
	r.LastTriggerDate = models.TimePtr(*r.NextTriggerDate)
}

func (s *Service) dismiss(ctx context.Context, handle string) {
	if handle == "" {
		return
	}
	if err := s.disp.Dismiss(ctx, handle); err != nil {
		logDispatch(&apperrors.DispatchError{Op: "dismiss", Handle: handle, Err: err})
	}
}

func (s *Service) cancel(ctx context.Context, handle string) {
	if handle == "" {
		return
	}
	if err := s.disp.Cancel(ctx, handle); err != nil {
		logDispatch(&apperrors.DispatchError{Op: "cancel", Handle: handle, Err: err})
	}
}

func logDispatch(err *apperrors.DispatchError) {
	logger.Warn("Notification dispatch failed", "op", err.Op, "handle", err.Handle, "error", err.Err)
}

func contentFor(r models.Reminder) notifier.Content {
	return notifier.Content{Title: constants.NotificationTitle, Body: r.Title}
}

func nextWake(reminders []models.Reminder, now time.Time) *time.Time {
	var earliest *time.Time
	for i := range reminders {
		r := &reminders[i]
		if !r.IsActive() || r.NextTriggerDate == nil || !r.NextTriggerDate.After(now) {
			continue
		}
		if earliest == nil || r.NextTriggerDate.Before(*earliest) {
			earliest = r.NextTriggerDate
		}
	}
	if earliest == nil {
		return nil
	}
	return models.TimePtr(*earliest)
}

func indexOf(reminders []models.Reminder, id string) int {
	for i := range reminders {
		if reminders[i].ID == id {
			return i
		}
	}
	return -1
}

// liveIndexes resolves ids to positions of non-deleted reminders, failing on
// the first id that does not match one.
func liveIndexes(reminders []models.Reminder, ids []string) ([]int, error) {
	out := make([]int, 0, len(ids))
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		idx := indexOf(reminders, id)
		if idx < 0 || reminders[idx].IsDeleted() {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if !seen[idx] {
			seen[idx] = true
			out = append(out, idx)
		}
	}
	return out, nil
}
