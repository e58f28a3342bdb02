package authority

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/apex/log"
	"github.com/fsnotify/fsnotify"

	"sahayak/metrics"
)

// Store holds the current registry. Readers never block; reloads swap the pointer.
type Store struct {
	path    string
	current atomic.Pointer[Registry]
}

// NewStore loads path and returns a store serving it.
func NewStore(path string) (*Store, error) {
	reg, err := Load(path)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path}
	s.set(reg)
	return s, nil
}

// NewStaticStore wraps an already parsed registry.
func NewStaticStore(reg *Registry) *Store {
	s := &Store{}
	s.set(reg)
	return s
}

func (s *Store) set(reg *Registry) {
	s.current.Store(reg)
	metrics.RegistryAuthorities.Set(float64(reg.Len()))
}

// Registry returns the registry currently in effect.
func (s *Store) Registry() *Registry {
	return s.current.Load()
}

// Reload re-reads the file. On error the previous registry stays in place.
func (s *Store) Reload() error {
	if s.path == "" {
		return fmt.Errorf("store has no backing file")
	}
	reg, err := Load(s.path)
	if err != nil {
		return err
	}
	s.set(reg)
	return nil
}

// Watch reloads the registry whenever its file is written, created or renamed into
// place. It returns once the watcher is running and stops when ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return fmt.Errorf("store has no backing file")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	// Editors replace files by rename, so watch the directory and filter by name.
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(s.path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if err := s.Reload(); err != nil {
					log.WithError(err).Warn("Registry reload failed, keeping previous registry")
					continue
				}
				log.Infof("Registry reloaded from %s (%d authorities)", s.path, s.Registry().Len())
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("Registry watcher error")
			}
		}
	}()
	return nil
}
