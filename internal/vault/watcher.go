package vault

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const resyncDelay = 200 * time.Millisecond

// Watch processes file change events under the vault root until ctx is
// cancelled.
//
// New directories created at runtime are added to the watch list and their
// notes applied. Rename events remove the old path at once and schedule a
// debounced Sync that picks up the new location.
func (b *Bridge) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, b.fs.Root()); err != nil {
		return err
	}

	b.logger.Info("watcher: started", slog.String("root", b.fs.Root()))

	var resyncTimer *time.Timer
	var resyncCh <-chan time.Time

	scheduleResync := func() {
		if resyncTimer == nil {
			resyncTimer = time.NewTimer(resyncDelay)
			resyncCh = resyncTimer.C
		} else {
			resyncTimer.Reset(resyncDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if resyncTimer != nil {
				resyncTimer.Stop()
			}
			b.logger.Info("watcher: stopped")
			return nil

		case <-resyncCh:
			if err := b.Sync(ctx); err != nil {
				b.logger.Warn("watcher: resync failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			b.handle(ctx, w, ev, scheduleResync)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			b.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (b *Bridge) handle(ctx context.Context, w *fsnotify.Watcher, ev fsnotify.Event, scheduleResync func()) {
	absPath := ev.Name

	if ev.Op&fsnotify.Create != 0 {
		if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
			if addErr := addDirsRecursive(w, absPath); addErr != nil {
				b.logger.Warn("watcher: add new dir failed",
					slog.String("path", absPath),
					slog.String("error", addErr.Error()))
			}
			b.applyDir(ctx, absPath)
			return
		}
	}

	if !isNote(filepath.Base(absPath)) {
		return
	}
	rel, err := b.fs.Rel(absPath)
	if err != nil {
		return
	}

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		if _, err := b.Apply(ctx, rel); err != nil {
			b.logger.Warn("watcher: apply failed", slog.String("path", rel), slog.String("error", err.Error()))
		}

	case ev.Op&fsnotify.Remove != 0:
		if err := b.Remove(ctx, rel); err != nil {
			b.logger.Warn("watcher: remove failed", slog.String("path", rel), slog.String("error", err.Error()))
		}

	case ev.Op&fsnotify.Rename != 0:
		// fsnotify reports the old path only; the new one arrives as a
		// Create if it stays inside a watched directory.
		if err := b.Remove(ctx, rel); err != nil {
			b.logger.Warn("watcher: rename remove failed", slog.String("path", rel), slog.String("error", err.Error()))
		}
		scheduleResync()
	}
}

// applyDir applies every note found in a newly created directory.
func (b *Bridge) applyDir(ctx context.Context, dirPath string) {
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !isNote(d.Name()) {
			return nil
		}
		rel, relErr := b.fs.Rel(path)
		if relErr != nil {
			return nil
		}
		if _, err := b.Apply(ctx, rel); err != nil {
			b.logger.Warn("watcher: apply failed", slog.String("path", rel), slog.String("error", err.Error()))
		}
		return nil
	})
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
