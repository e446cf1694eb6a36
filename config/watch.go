package config

import (
	"context"
	"log/slog"
	"reflect"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces the burst of filesystem events an atomic editor
// save produces (rename, create, write) into a single reload.
const debounceWindow = 250 * time.Millisecond

// reloadableDiff names the hot-reloadable fields that differ between two
// configs. Only two groups of settings apply without a restart: the upload
// sampling rate and the alert rule set. Everything else (ports, endpoints,
// window sizes) is fixed at startup.
func reloadableDiff(prev, next *Config) []string {
	var changed []string
	if prev.Engine.SamplingRate != next.Engine.SamplingRate {
		changed = append(changed, "engine.sampling_rate")
	}
	if !reflect.DeepEqual(prev.Server.Alerts.Rules, next.Server.Alerts.Rules) {
		changed = append(changed, "server.alerts.rules")
	}
	return changed
}

// Watch monitors the config file at path and calls onChange with a freshly
// loaded Config whenever a hot-reloadable field actually changes. Rewrites
// that fail to parse or validate keep the previous config active, and
// rewrites that leave every hot-reloadable field untouched are skipped so
// callers never re-apply a no-op. Watch runs until ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return err
	}

	// Baseline for change detection. The caller already loaded this file at
	// startup, so a failure here means it changed out from under us.
	prev, err := Load(path)
	if err != nil {
		return err
	}

	debounce := time.NewTimer(debounceWindow)
	if !debounce.Stop() {
		<-debounce.C
	}

	slog.Info("config: watching for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			// An atomic save replaces the inode; re-add so the next save is
			// still observed.
			_ = watcher.Add(path)
			debounce.Reset(debounceWindow)

		case <-debounce.C:
			next, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config",
					"path", path, "err", err)
				continue
			}
			changed := reloadableDiff(prev, next)
			prev = next
			if len(changed) == 0 {
				slog.Debug("config: file rewritten, no hot-reloadable changes", "path", path)
				continue
			}
			slog.Info("config: reloaded", "path", path, "changed", changed)
			onChange(next)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
