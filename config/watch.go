package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// PollInterval is how often Watch checks the file when fsnotify is
// unavailable.
var PollInterval = 2 * time.Second

// Watch calls fn with the reloaded config each time path changes, until ctx
// is cancelled. A file that fails to load or validate is logged and
// skipped; fn only ever sees valid configs.
//
// The directory is watched rather than the file so editors that replace the
// file on save are still noticed. Without fsnotify, Watch polls the
// modification time.
func Watch(ctx context.Context, path string, fn func(Config), logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("fsnotify unavailable, polling config", slog.Any("error", err))
		go pollFile(ctx, abs, fn, logger)
		return nil
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		logger.Warn("cannot watch config directory, polling", slog.Any("error", err))
		go pollFile(ctx, abs, fn, logger)
		return nil
	}

	go watchEvents(ctx, abs, watcher, fn, logger)
	return nil
}

func watchEvents(ctx context.Context, path string, watcher *fsnotify.Watcher, fn func(Config), logger *slog.Logger) {
	defer watcher.Close()
	base := filepath.Base(path)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			reload(path, fn, logger)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("config watcher error", slog.Any("error", err))
		}
	}
}

func pollFile(ctx context.Context, path string, fn func(Config), logger *slog.Logger) {
	var last time.Time
	if info, err := os.Stat(path); err == nil {
		last = info.ModTime()
	}

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil || !info.ModTime().After(last) {
				continue
			}
			last = info.ModTime()
			reload(path, fn, logger)
		}
	}
}

func reload(path string, fn func(Config), logger *slog.Logger) {
	// Truncate-then-write shows up as an empty file first.
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		return
	}
	cfg, err := Load(path)
	if err != nil {
		logger.Error("config reload failed", slog.String("path", path), slog.Any("error", err))
		return
	}
	logger.Info("config reloaded", slog.String("path", path), slog.Int("clusters", len(cfg.Clusters)))
	fn(cfg)
}
