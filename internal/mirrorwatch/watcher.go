// Package mirrorwatch watches the mirror working tree for edits made outside
// the mirror API. Every write that goes through the service ends in a commit,
// so a tree that is still dirty once events settle means someone touched the
// files directly. Those paths are logged and broadcast as mirror.out_of_band
// events.
package mirrorwatch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tom-jordan23/cooking-mcp/internal/gitmirror"
	"github.com/tom-jordan23/cooking-mcp/internal/sse"
)

// DefaultDebounce is the settle window between a filesystem event burst and
// the drift check.
const DefaultDebounce = 500 * time.Millisecond

// Watch starts an fsnotify watcher on the mirror root and processes change
// events until ctx is cancelled. Event bursts are debounced; after each burst
// any uncommitted paths are published to broker (if non-nil) as one
// mirror.out_of_band event.
//
// New directories created at runtime are automatically added to the watch
// list. The .git directory and the mirror's own atomic-write temp files are
// ignored.
func Watch(ctx context.Context, mirror *gitmirror.Mirror, broker *sse.Broker, logger *slog.Logger, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := mirror.Root()
	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("mirrorwatch: started", slog.String("root", root))

	// settleTimer debounces event bursts before the drift check.
	var settleTimer *time.Timer
	var settleCh <-chan time.Time

	scheduleCheck := func() {
		if settleTimer == nil {
			settleTimer = time.NewTimer(debounce)
			settleCh = settleTimer.C
		} else {
			settleTimer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if settleTimer != nil {
				settleTimer.Stop()
			}
			logger.Info("mirrorwatch: stopped")
			return nil

		case <-settleCh:
			reportDrift(mirror, broker, logger)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name
			if skip(root, absPath) {
				continue
			}

			// New directories join the watch list; attachment and calendar
			// subdirectories appear at runtime.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("mirrorwatch: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("mirrorwatch: watching new dir", slog.String("path", absPath))
					}
				}
			}

			scheduleCheck()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("mirrorwatch: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reportDrift checks for uncommitted changes once the tree has settled.
// Writes made through the mirror commit before the window closes, so whatever
// is left is out of band.
func reportDrift(mirror *gitmirror.Mirror, broker *sse.Broker, logger *slog.Logger) {
	paths, err := mirror.ChangedPaths()
	if err != nil {
		logger.Warn("mirrorwatch: status failed", slog.String("error", err.Error()))
		return
	}
	if len(paths) == 0 {
		return
	}

	logger.Warn("mirrorwatch: out-of-band changes detected",
		slog.Int("files", len(paths)),
		slog.String("first", paths[0]))
	if broker != nil {
		broker.PublishOutOfBand(paths)
	}
}

// skip filters the .git directory and in-flight atomic-write temp files.
func skip(root, absPath string) bool {
	if gitmirror.IsTempFile(absPath) {
		return true
	}
	rel, err := filepath.Rel(root, absPath)
	if err != nil {
		return true
	}
	return rel == ".git" || strings.HasPrefix(rel, ".git"+string(filepath.Separator))
}

// addDirsRecursive adds root and all its subdirectories to the watcher,
// skipping .git.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
