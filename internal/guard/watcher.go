package guard

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 200 * time.Millisecond

// Watch reloads src whenever its terms file changes, until ctx is cancelled.
// The parent directory is watched so editors that replace the file by rename
// are picked up. onReload (if non-nil) runs after each successful reload.
func Watch(ctx context.Context, src *Source, logger *slog.Logger, onReload func(*Guard)) error {
	if src.Path() == "" {
		return nil
	}
	target, err := filepath.Abs(src.Path())
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(target)); err != nil {
		return err
	}

	logger.Info("guard watcher: started", slog.String("path", target))

	var reloadTimer *time.Timer
	var reloadCh <-chan time.Time

	scheduleReload := func() {
		if reloadTimer == nil {
			reloadTimer = time.NewTimer(reloadDebounce)
			reloadCh = reloadTimer.C
		} else {
			reloadTimer.Reset(reloadDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			logger.Info("guard watcher: stopped")
			return nil

		case <-reloadCh:
			if err := src.Reload(); err != nil {
				logger.Warn("guard watcher: reload failed, keeping previous terms",
					slog.String("error", err.Error()))
				continue
			}
			g := src.Guard()
			logger.Info("guard watcher: terms reloaded", slog.Int("terms", len(g.terms)))
			if onReload != nil {
				onReload(g)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				scheduleReload()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("guard watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
