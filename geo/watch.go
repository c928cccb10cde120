package geo

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

// Watch reloads the database whenever its file is replaced, until ctx is
// done. Updaters must replace the file atomically with a rename; Create
// events on the path trigger the reload.
func (l *Locator) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	defer watcher.Close()

	// fsnotify loses a watch on a file that is renamed over, so watch the
	// directory instead.
	path := filepath.Clean(l.cfg.DBPath)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return errors.Wrapf(err, "watch %s", filepath.Dir(path))
	}
	level.Info(l.logger).Log("msg", "watching geo database", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path || !event.Has(fsnotify.Create) {
				continue
			}
			level.Info(l.logger).Log("msg", "geo database replaced, reloading", "path", path)
			// Reload logs and counts failures itself.
			_ = l.Reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			level.Error(l.logger).Log("msg", "watcher error", "path", path, "err", err)
		}
	}
}
