package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/rcliao/aide/internal/store"
)

// watchDebounce coalesces bursts of file events (editor saves, our own
// atomic renames) into one rebuild.
const watchDebounce = 250 * time.Millisecond

// Watch rebuilds the index whenever MEMORY.md or a daily-log file changes on
// disk, so hand edits become searchable. It blocks until ctx is done.
func (m *Manager) Watch(ctx context.Context) error {
	if m.State() != StateReady {
		return fmt.Errorf("watch: %w", ErrNotInitialized)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	logDir := filepath.Join(m.cfg.Dir, store.LogDir)
	for _, dir := range []string{m.cfg.Dir, logDir} {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	m.logger.Info("watching memory files", zap.String("dir", m.cfg.Dir))

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isMemoryFile(m.cfg.Dir, event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, func() {
				if err := m.Reindex(ctx); err != nil {
					m.logger.Warn("reindex after file change failed", zap.Error(err))
					return
				}
				m.logger.Debug("reindexed after file change", zap.String("file", event.Name))
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.logger.Error("file watcher error", zap.Error(err))
		}
	}
}

func isMemoryFile(dir, name string) bool {
	if filepath.Ext(name) != ".md" {
		return false
	}
	parent := filepath.Dir(name)
	if filepath.Base(name) == store.LongTermFile {
		return filepath.Clean(parent) == filepath.Clean(dir)
	}
	return filepath.Clean(parent) == filepath.Clean(filepath.Join(dir, store.LogDir))
}
