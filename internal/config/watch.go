package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch calls onChange with the reloaded Config each time the file at path
// changes, until ctx is cancelled. The parent directory is watched so that
// saves which replace the file (write to a temp file, then rename) are seen.
//
// A reload that fails to load or validate is logged and skipped; the caller
// keeps its previous config.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(*Config)) error {
	if logger == nil {
		logger = slog.Default()
	}

	path = filepath.Clean(path)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("watching config: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}
	logger.Info("watching config for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := Load(path)
			if err != nil {
				logger.Error("config reload failed, keeping previous config", "path", path, "error", err)
				continue
			}
			logger.Info("config reloaded", "path", path)
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("config watcher error", "error", err)
		}
	}
}
