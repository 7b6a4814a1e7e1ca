package waker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/julianstephens/chime/internal/constants"
	"github.com/julianstephens/chime/internal/logger"
)

// Job runs due work at now and returns when it next needs to run, or nil
// when nothing is pending.
type Job func(ctx context.Context, now time.Time) (*time.Time, error)

type Config struct {
	// SweepSpec is a cron spec for a periodic run regardless of arming. Empty disables it.
	SweepSpec string
	// WatchPath is a store file or directory; changes to it trigger a run. Empty disables it.
	WatchPath string
	Debounce  time.Duration
	Now       func() time.Time
}

// Waker runs a Job once at startup and then whenever its one-shot timer
// expires, Notify is called, the cron sweep ticks or the watched store changes.
// The timer is re-armed from each run's result.
type Waker struct {
	job      Job
	cfg      Config
	notifyCh chan struct{}
	armCh    chan struct{}

	mu      sync.Mutex
	pending *time.Time
}

func New(job Job, cfg Config) *Waker {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = constants.StoreWatchDebounce
	}
	return &Waker{
		job:      job,
		cfg:      cfg,
		notifyCh: make(chan struct{}, 1),
		armCh:    make(chan struct{}, 1),
	}
}

// Notify triggers an immediate run. Non-blocking if a run is already pending.
func (w *Waker) Notify() {
	select {
	case w.notifyCh <- struct{}{}:
	default:
	}
}

// Arm asks for a run no later than at. An earlier wake already armed is kept.
func (w *Waker) Arm(at *time.Time) {
	if at == nil {
		return
	}
	w.mu.Lock()
	if w.pending == nil || at.Before(*w.pending) {
		t := *at
		w.pending = &t
	}
	w.mu.Unlock()

	select {
	case w.armCh <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is canceled.
func (w *Waker) Run(ctx context.Context) error {
	if w.cfg.SweepSpec != "" {
		c := cron.New(cron.WithLocation(time.Local))
		if _, err := c.AddFunc(w.cfg.SweepSpec, w.Notify); err != nil {
			return fmt.Errorf("invalid sweep spec %q: %w", w.cfg.SweepSpec, err)
		}
		c.Start()
		defer c.Stop()
	}

	if w.cfg.WatchPath != "" {
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.watch(ctx)
		}()
		defer wg.Wait()
	}

	logger.Info("Waker started", "sweep", w.cfg.SweepSpec, "watch", w.cfg.WatchPath)

	timer := time.NewTimer(0)
	defer timer.Stop()
	var deadline *time.Time

	arm := func(at time.Time) {
		timer.Stop()
		d := at.Sub(w.cfg.Now())
		if d < 0 {
			d = 0
		}
		timer.Reset(d)
		deadline = &at
		logger.Debug("Waker armed", "at", at)
	}

	run := func(reason string) {
		now := w.cfg.Now()
		logger.Debug("Waker running job", "reason", reason, "now", now)
		next, err := w.job(ctx, now)
		if err != nil {
			logger.Error("Wake job failed", "reason", reason, "error", err)
		}
		timer.Stop()
		deadline = nil
		if next != nil {
			arm(*next)
		}
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("Waker stopped")
			return nil
		case <-timer.C:
			run("timer")
		case <-w.notifyCh:
			run("notify")
		case <-w.armCh:
			w.mu.Lock()
			at := w.pending
			w.pending = nil
			w.mu.Unlock()
			if at != nil && (deadline == nil || at.Before(*deadline)) {
				arm(*at)
			}
		}
	}
}
