package server

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// reloadDebounce collapses the burst of events editors produce on save
const reloadDebounce = 250 * time.Millisecond

// WatchConfig reloads the settings whenever the loaded settings file changes
// on disk, until ctx is done. The parent directory is watched rather than the
// file so that editors which save by rename are still seen.
func (s *Server) WatchConfig(ctx context.Context) error {
	s.mu.Lock()
	path := s.configPath
	s.mu.Unlock()
	if path == "" {
		return errors.New("no settings file loaded, nothing to watch")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(absPath), err)
	}
	log.Info().Str("path", absPath).Msg("watching settings file")

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != absPath {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			if err := s.Refresh(); err != nil {
				// keep serving the previous settings
				log.Warn().Err(err).Msg("settings reload failed")
				continue
			}
			log.Info().Str("path", absPath).Msg("settings reloaded")

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("settings watcher error")
		}
	}
}
