package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sha1n/relic-rag/internal/index"
)

// DefaultReloadDebounce coalesces the burst of events a single build produces.
const DefaultReloadDebounce = 500 * time.Millisecond

// Watch reloads the engine whenever a build finishes writing its manifest.
// It blocks until ctx is done.
func Watch(ctx context.Context, engine *Engine, debounce time.Duration) error {
	if engine.Dir() == "" {
		return fmt.Errorf("engine has no index directory to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(engine.Dir()); err != nil {
		return fmt.Errorf("failed to watch %s: %w", engine.Dir(), err)
	}
	slog.Info("Watching index for rebuilds", "dir", engine.Dir())

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if isReloadTrigger(event) {
				timer.Reset(debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Index watcher error", "error", err)

		case <-timer.C:
			if err := engine.Reload(); err != nil {
				slog.Error("Index reload failed, keeping previous snapshot", "error", err)
			}
		}
	}
}

// isReloadTrigger reports whether event marks a completed build.
// The manifest is renamed into place last, which surfaces as Create for its final name.
func isReloadTrigger(event fsnotify.Event) bool {
	if filepath.Base(event.Name) != index.ManifestFile {
		return false
	}
	return event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write)
}
