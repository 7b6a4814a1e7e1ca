package system

import (
	"context"
	"time"

	"github.com/julianstephens/chime/internal/cli"
	"github.com/julianstephens/chime/internal/constants"
	"github.com/julianstephens/chime/internal/logger"
	"github.com/julianstephens/chime/internal/service"
	"github.com/julianstephens/chime/internal/storage"
	"github.com/julianstephens/chime/internal/waker"
)

// DaemonCmd keeps firing reminders until interrupted. It sleeps until the
// next trigger or queued notification and wakes early when the store changes.
type DaemonCmd struct {
	Sweep   string `help:"Cron spec for a periodic run regardless of pending work. Empty disables it." env:"CHIME_SWEEP" default:"${sweep}"`
	NoWatch bool   `help:"Do not watch the store file for changes made by other processes."`
}

func (c *DaemonCmd) Run(ctx *cli.Context) error {
	var watch string
	if loc, ok := ctx.Store.(storage.Locator); ok && !c.NoWatch {
		watch = loc.GetConfigPath()
	}

	var svc *service.Service
	w := waker.New(func(jobCtx context.Context, now time.Time) (*time.Time, error) {
		next, sent, err := ctx.RunOnce(jobCtx, svc, now)
		if sent > 0 {
			logger.Debug("Delivered notifications", "count", sent)
		}
		return next, err
	}, waker.Config{
		SweepSpec: c.Sweep,
		WatchPath: watch,
		Debounce:  constants.StoreWatchDebounce,
		Now:       ctx.Now,
	})
	svc = ctx.NewService(w)

	logger.Info("Daemon starting", "store_watch", watch, "sweep", c.Sweep)
	ctx.Println("✓ chime daemon running, press Ctrl+C to stop")
	return w.Run(ctx.Context())
}
