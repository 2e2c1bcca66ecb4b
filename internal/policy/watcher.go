package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// BundleWatcher reloads the bundle file on change and publishes the result
// through an Evaluator. A failed reload keeps the last-known-good bundle in
// force.
type BundleWatcher struct {
	path      string
	runtime   *Runtime
	evaluator *Evaluator
	opts      LoadOptions
	watcher   *fsnotify.Watcher
	logger    zerolog.Logger
}

// NewBundleWatcher watches the directory containing path, since most
// deployment tools replace the bundle file rather than writing in place.
func NewBundleWatcher(path string, runtime *Runtime, evaluator *Evaluator, opts LoadOptions, logger zerolog.Logger) (*BundleWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch bundle directory: %w", err)
	}

	return &BundleWatcher{
		path:      path,
		runtime:   runtime,
		evaluator: evaluator,
		opts:      opts,
		watcher:   watcher,
		logger:    logger.With().Str("component", "bundle-watcher").Logger(),
	}, nil
}

// Start watches for bundle changes until ctx is done.
func (w *BundleWatcher) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher channel closed")
			}
			if !w.isBundleEvent(event) {
				continue
			}
			w.reload(ctx)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			if err != nil {
				w.logger.Warn().Err(err).Msg("watcher error")
			}
		}
	}
}

// Close stops the watcher.
func (w *BundleWatcher) Close() error {
	return w.watcher.Close()
}

func (w *BundleWatcher) isBundleEvent(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != filepath.Clean(w.path) {
		return false
	}
	return event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0
}

// reload loads the bundle file and, on success, swaps it in and retires the
// previous one once its in-flight evaluations are done.
func (w *BundleWatcher) reload(ctx context.Context) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.Error().Err(err).Str("path", w.path).
			Msg("failed to read bundle, keeping current bundle")
		return
	}

	bundle, err := LoadBundle(ctx, w.runtime, data, w.opts)
	if err != nil {
		w.logger.Error().Err(err).Str("path", w.path).
			Msg("failed to load bundle, keeping current bundle")
		return
	}

	if previous := w.evaluator.Swap(bundle); previous != nil {
		if err := previous.Retire(ctx); err != nil {
			w.logger.Warn().Err(err).Msg("failed to retire previous bundle")
		}
	}

	w.logger.Info().
		Str("version", bundle.Version()).
		Str("checksum", bundle.Checksum()).
		Msg("bundle reloaded")
}
