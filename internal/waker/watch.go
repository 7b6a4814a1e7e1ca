package waker

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/julianstephens/chime/internal/logger"
)

// watch calls Notify, debounced, whenever the watched store changes. A
// directory matches any .json document in it; a file matches its own name
// and SQLite side files such as -wal and -journal.
func (w *Waker) watch(ctx context.Context) {
	dir, match := watchTarget(w.cfg.WatchPath)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("Store watch init failed", "error", err, "dir", dir)
		return
	}
	defer fw.Close()

	if err := fw.Add(dir); err != nil {
		logger.Warn("Store watch add failed", "error", err, "dir", dir)
		return
	}
	logger.Debug("Store watcher started", "dir", dir)

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.cfg.Debounce, w.Notify)
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if match(filepath.Base(ev.Name)) && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				logger.Debug("Store change detected", "file", ev.Name, "op", ev.Op.String())
				debounce()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			// Events may have been missed; run once to catch up.
			logger.Warn("Store watch error", "error", err, "dir", dir)
			debounce()
		}
	}
}

func watchTarget(path string) (string, func(string) bool) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return path, func(name string) bool {
			return !strings.HasPrefix(name, ".") && strings.HasSuffix(name, ".json")
		}
	}
	file := filepath.Base(path)
	return filepath.Dir(path), func(name string) bool {
		return strings.HasPrefix(name, file)
	}
}
