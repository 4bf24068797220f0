package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// RulesApplier receives the full rule set every time the rules file changes
type RulesApplier func(defs []RuleDefinition) error

// RulesWatcher polls the rules file and re-applies it when its modification
// time or size changes.
type RulesWatcher struct {
	path     string
	interval time.Duration
	apply    RulesApplier
	logger   *slog.Logger

	mu       sync.Mutex
	fileInfo os.FileInfo
}

// NewRulesWatcher creates a new rules file watcher
func NewRulesWatcher(path string, interval time.Duration, apply RulesApplier, logger *slog.Logger) *RulesWatcher {
	if interval <= 0 {
		interval = DefaultRulesReloadInterval
	}
	return &RulesWatcher{
		path:     path,
		interval: interval,
		apply:    apply,
		logger:   logger,
	}
}

// Load reads the rules file once and applies it, recording its file info
func (rw *RulesWatcher) Load() error {
	info, err := os.Stat(rw.path)
	if err != nil {
		return fmt.Errorf("failed to stat rules file: %w", err)
	}
	if err := rw.reload(); err != nil {
		return err
	}

	rw.mu.Lock()
	rw.fileInfo = info
	rw.mu.Unlock()

	return nil
}

// Run polls until ctx is cancelled. Reload failures are logged and the
// previously applied rules stay in effect.
func (rw *RulesWatcher) Run(ctx context.Context) error {
	rw.logger.Info("Starting rules watcher",
		"rules_file", rw.path,
		"check_interval", rw.interval)

	ticker := time.NewTicker(rw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			changed, err := rw.checkFileChanges()
			if err != nil {
				rw.logger.Error("Error checking rules file", "error", err)
				continue
			}
			if changed {
				if err := rw.reload(); err != nil {
					rw.logger.Error("Rules reload failed", "rules_file", rw.path, "error", err)
				}
			}
		case <-ctx.Done():
			rw.logger.Info("Stopping rules watcher")
			return nil
		}
	}
}

// checkFileChanges checks if the rules file has been modified
func (rw *RulesWatcher) checkFileChanges() (bool, error) {
	fileInfo, err := os.Stat(rw.path)
	if err != nil {
		return false, fmt.Errorf("failed to stat rules file: %w", err)
	}

	rw.mu.Lock()
	defer rw.mu.Unlock()

	old := rw.fileInfo
	if old == nil {
		rw.fileInfo = fileInfo
		return true, nil
	}

	if fileInfo.ModTime().After(old.ModTime()) || fileInfo.Size() != old.Size() {
		rw.logger.Info("Rules file changed",
			"file", rw.path,
			"old_mod_time", old.ModTime(),
			"new_mod_time", fileInfo.ModTime(),
			"old_size", old.Size(),
			"new_size", fileInfo.Size())
		rw.fileInfo = fileInfo
		return true, nil
	}

	return false, nil
}

func (rw *RulesWatcher) reload() error {
	defs, err := LoadRules(rw.path)
	if err != nil {
		return err
	}
	if err := rw.apply(defs); err != nil {
		return fmt.Errorf("failed to apply rules: %w", err)
	}
	rw.logger.Info("Rules loaded", "rules_file", rw.path, "count", len(defs))
	return nil
}
