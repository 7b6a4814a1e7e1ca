package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/julianstephens/chime/internal/logger"
	"github.com/julianstephens/chime/internal/storage"
)

// Entry is one scheduled notification waiting in the spool.
type Entry struct {
	Handle  string    `json:"handle"`
	Content Content   `json:"content"`
	At      time.Time `json:"at"`
}

// Spool is a persisted queue of scheduled notifications. Any process may
// schedule or cancel; the daemon calls Deliver to hand due entries to the
// Sender. Entries live under one key of the shared BlobStore and every change
// goes through the store's Update, so processes never drop each other's entries.
type Spool struct {
	store   storage.BlobStore
	key     string
	sender  Sender
	limiter *rate.Limiter
}

// NewSpool creates a spool that delivers through sender at no more than
// perSecond notifications per second. A non-positive rate disables throttling.
func NewSpool(store storage.BlobStore, key string, sender Sender, perSecond float64) *Spool {
	limit := rate.Inf
	burst := 1
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
		if int(perSecond) > burst {
			burst = int(perSecond)
		}
	}
	return &Spool{
		store:   store,
		key:     key,
		sender:  sender,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Schedule queues content for delivery at at and returns its handle.
func (s *Spool) Schedule(ctx context.Context, content Content, at time.Time) (string, error) {
	handle := uuid.New().String()
	err := s.update(ctx, func(entries []Entry) ([]Entry, bool) {
		return append(entries, Entry{Handle: handle, Content: content, At: at.UTC()}), true
	})
	if err != nil {
		return "", err
	}
	logger.Debug("Notification scheduled", "handle", handle, "at", at)
	return handle, nil
}

// Cancel drops a pending notification. Unknown handles are ignored.
func (s *Spool) Cancel(ctx context.Context, handle string) error {
	return s.remove(ctx, handle)
}

// Dismiss clears a notification that may already have been shown. The spool
// forgets delivered entries, so this only has work to do for pending ones.
func (s *Spool) Dismiss(ctx context.Context, handle string) error {
	return s.remove(ctx, handle)
}

// Pending returns every queued entry ordered by delivery time.
func (s *Spool) Pending(ctx context.Context) ([]Entry, error) {
	entries, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].At.Before(entries[j].At) })
	return entries, nil
}

// NextDue returns the earliest delivery time, or nil for an empty spool.
func (s *Spool) NextDue(ctx context.Context) (*time.Time, error) {
	entries, err := s.Pending(ctx)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	at := entries[0].At
	return &at, nil
}

// Deliver removes every entry due at or before now and sends it. Entries are
// taken off the spool before sending, so a failed send is logged and not retried.
func (s *Spool) Deliver(ctx context.Context, now time.Time) (int, error) {
	var due []Entry
	err := s.update(ctx, func(entries []Entry) ([]Entry, bool) {
		due = nil
		rest := make([]Entry, 0, len(entries))
		for _, e := range entries {
			if e.At.After(now) {
				rest = append(rest, e)
			} else {
				due = append(due, e)
			}
		}
		return rest, len(due) > 0
	})
	if err != nil {
		return 0, err
	}

	sort.SliceStable(due, func(i, j int) bool { return due[i].At.Before(due[j].At) })

	var errs []error
	sent := 0
	for _, e := range due {
		if err := s.limiter.Wait(ctx); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.sender.Send(ctx, e.Content); err != nil {
			logger.Warn("Failed to send notification", "handle", e.Handle, "error", err)
			errs = append(errs, fmt.Errorf("send %s: %w", e.Handle, err))
			continue
		}
		logger.Info("Notification delivered", "handle", e.Handle, "title", e.Content.Title)
		sent++
	}
	return sent, errors.Join(errs...)
}

func (s *Spool) remove(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	return s.update(ctx, func(entries []Entry) ([]Entry, bool) {
		kept := make([]Entry, 0, len(entries))
		for _, e := range entries {
			if e.Handle != handle {
				kept = append(kept, e)
			}
		}
		return kept, len(kept) != len(entries)
	})
}

// update applies fn to the stored entries under the store's lock and writes
// the result when fn reports a change.
func (s *Spool) update(ctx context.Context, fn func(entries []Entry) ([]Entry, bool)) error {
	err := s.store.Update(ctx, s.key, func(_ context.Context, data []byte) ([]byte, error) {
		entries, err := decodeEntries(data)
		if err != nil {
			return nil, err
		}
		next, changed := fn(entries)
		if !changed {
			return nil, nil
		}
		if next == nil {
			next = []Entry{}
		}
		return json.Marshal(next)
	})
	if err != nil {
		return fmt.Errorf("failed to update notification spool: %w", err)
	}
	return nil
}

func (s *Spool) load(ctx context.Context) ([]Entry, error) {
	data, err := s.store.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to read notification spool: %w", err)
	}
	return decodeEntries(data)
}

func decodeEntries(data []byte) ([]Entry, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse notification spool: %w", err)
	}
	return entries, nil
}
