package organizer

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"devsetup/internal/logger"
)

// Watch organizes files as they appear in the downloads dir until ctx is
// cancelled. A file is handled once it has seen no events for the debounce
// interval, so browsers can finish writing. The organizer must be backed by the
// OS filesystem.
func (o *Organizer) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(o.cfg.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", o.cfg.Dir, err)
	}

	debounce := time.Duration(o.cfg.DebounceMillis) * time.Millisecond
	if debounce <= 0 {
		debounce = 750 * time.Millisecond
	}
	tick := debounce / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	logger.Info("[INFO] Watching %s (Ctrl-C to stop)\n", o.cfg.Dir)
	pending := make(map[string]time.Time)
	for {
		select {
		case <-ctx.Done():
			logger.Info("[INFO] Stopped watching %s\n", o.cfg.Dir)
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !isTopLevel(o.cfg.Dir, event.Name) {
				continue
			}
			logger.Debug("[DEBUG] %s %s\n", event.Op, event.Name)
			pending[filepath.Base(event.Name)] = time.Now()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("[WARN] Watcher error: %v\n", err)

		case now := <-ticker.C:
			for name, last := range pending {
				if now.Sub(last) < debounce {
					continue
				}
				delete(pending, name)
				o.settle(name)
			}
		}
	}
}

// settle organizes one file once its writes have stopped.
func (o *Organizer) settle(name string) {
	info, err := o.fs.Stat(filepath.Join(o.cfg.Dir, name))
	if err != nil || !info.Mode().IsRegular() {
		// Renamed away, deleted, or a new category folder.
		return
	}
	if _, _, err := o.organizeFile(name, false, nil); err != nil {
		logger.Error("[ERROR] Failed to move %s: %v\n", name, err)
	}
}
