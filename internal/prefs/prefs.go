// Package prefs persists per-scope filter selections to a JSON file so a
// returning user lands on the view they left. The file is a single map of
// scope key to filter; it is read lazily and rewritten whole on every save.
package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/trellishq/trellis/internal/filters"
)

// FileName is the filter preferences file inside the config directory.
const FileName = "filters.json"

// Store reads and writes filter preferences. It is safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	dir    string
	cache  map[string]*filters.Filter
	loaded bool
}

// New creates a Store rooted at the given config directory. The directory is
// created on first save, not here.
func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path() string {
	return filepath.Join(s.dir, FileName)
}

// loadLocked reads the preferences file into the cache. A missing file is an
// empty preference set; a malformed file is surfaced, not silently reset.
func (s *Store) loadLocked() error {
	if s.loaded {
		return nil
	}
	s.cache = make(map[string]*filters.Filter)
	data, err := os.ReadFile(s.path())
	if os.IsNotExist(err) {
		s.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading filter preferences: %w", err)
	}
	if err := json.Unmarshal(data, &s.cache); err != nil {
		return fmt.Errorf("parsing filter preferences: %w", err)
	}
	s.loaded = true
	return nil
}

// LoadFilter returns the saved filter for a scope key, or nil when none was
// saved.
func (s *Store) LoadFilter(scopeKey string) (*filters.Filter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return nil, err
	}
	return s.cache[scopeKey], nil
}

// SaveFilter writes the filter for a scope key through to disk. The write is
// atomic: the file is replaced via rename so a concurrent reader never sees
// a torn file.
func (s *Store) SaveFilter(scopeKey string, f *filters.Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return err
	}
	s.cache[scopeKey] = f
	return s.writeLocked()
}

// DeleteFilter removes the saved filter for a scope key.
func (s *Store) DeleteFilter(scopeKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return err
	}
	if _, ok := s.cache[scopeKey]; !ok {
		return nil
	}
	delete(s.cache, scopeKey)
	return s.writeLocked()
}

func (s *Store) writeLocked() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := json.MarshalIndent(s.cache, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding filter preferences: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, FileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing filter preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path()); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing filter preferences: %w", err)
	}
	return nil
}

// Watch invalidates the cache and invokes onChange whenever the preferences
// file changes on disk (another process, a sync agent). It blocks until the
// context is done or the watcher fails.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }() // Best effort cleanup

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("watching config directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != FileName {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				s.mu.Lock()
				s.loaded = false
				s.mu.Unlock()
				if onChange != nil {
					onChange()
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)
		}
	}
}
