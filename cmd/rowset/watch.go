package main

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// settle coalesces the burst of events an editor emits for one save.
const settle = 100 * time.Millisecond

// watchFiles runs fn once and again after each change to one of files, until
// ctx is done. Failures of fn are logged and do not stop the watch.
func watchFiles(ctx context.Context, log *zap.Logger, files []string, fn func(context.Context) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer watcher.Close()

	names := make([]string, 0, len(files))
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return fmt.Errorf("watch: %w", err)
		}
		names = append(names, abs)
		// Directories are watched so that files replaced by rename are seen.
		if dir := filepath.Dir(abs); !slices.Contains(watcher.WatchList(), dir) {
			if err := watcher.Add(dir); err != nil {
				return fmt.Errorf("watch %s: %w", dir, err)
			}
		}
	}
	log = log.Named("watch")
	runOnce := func() {
		if err := fn(ctx); err != nil {
			log.Error("run failed", zap.Error(err))
		}
	}
	runOnce()

	timer := time.NewTimer(settle)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !slices.Contains(names, filepath.Clean(event.Name)) {
				continue
			}
			log.Debug("changed", zap.String("file", event.Name), zap.Stringer("op", event.Op))
			timer.Reset(settle)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", zap.Error(err))
		case <-timer.C:
			runOnce()
		}
	}
}
