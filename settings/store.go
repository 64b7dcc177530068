package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"matchable.io/sdk/v1/action"
	"matchable.io/sdk/v1/logger"
)

// Store keeps the settings in a json file. Edits made to the file while the sdk runs are
// picked up by Watch and pushed to every OnChange listener.
type Store struct {
	logger *logger.Logger
	path   string

	mu        sync.RWMutex
	data      Settings
	listeners []func(Settings)
}

// LoadStore reads the settings file at path. Keys missing from the file keep their value
// from defaults, and a missing file is created from defaults.
func LoadStore(logger *logger.Logger, path string, defaults Settings) (*Store, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve settings path %s: %w", path, err)
	}

	store := &Store{
		logger: logger,
		path:   absPath,
		data:   defaults,
	}

	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		// make our directory, if it doesn't exist
		if err := os.MkdirAll(filepath.Dir(absPath), os.ModePerm); err != nil {
			return nil, err
		}

		logger.Infof("No settings found at %s, writing defaults", absPath)
		if err := store.Save(); err != nil {
			return nil, err
		}
		return store, nil
	}

	if data, err := store.read(); err != nil {
		return nil, err
	} else {
		store.data = data
	}

	return store, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data
}

// There is no selective saving, saving the store will overwrite anything existing
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.write(s.data)
}

// Update applies fn to the settings, saves them, and notifies listeners
func (s *Store) Update(fn func(*Settings)) error {
	s.mu.Lock()
	data := s.data
	fn(&data)
	changed := data != s.data

	if err := s.write(data); err != nil {
		s.mu.Unlock()
		return err
	}
	s.data = data
	s.mu.Unlock()

	if changed {
		s.notify(data)
	}
	return nil
}

// EnsurePlayerId generates and saves a player id if there isn't one yet
func (s *Store) EnsurePlayerId() (string, error) {
	if current := s.Current().PlayerId; current != "" {
		return current, nil
	}

	playerId := uuid.New().String()
	if err := s.Update(func(data *Settings) {
		if data.PlayerId == "" {
			data.PlayerId = playerId
		}
	}); err != nil {
		return "", err
	}

	s.logger.Infof("Generated player id %s", s.Current().PlayerId)
	return s.Current().PlayerId, nil
}

// SetEnabled persists the plugin enablement flag
func (s *Store) SetEnabled(enabled bool) error {
	return s.Update(func(data *Settings) {
		data.Enabled = enabled
	})
}

func (s *Store) SetIdentity(mode action.IdentityMode) error {
	if !mode.Valid() {
		return fmt.Errorf("unknown identity %q", mode)
	}
	return s.Update(func(data *Settings) {
		data.Identity = mode
	})
}

func (s *Store) OnChange(fn func(Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Reload re-reads the file and notifies listeners if anything changed
func (s *Store) Reload() error {
	data, err := s.read()
	if err != nil {
		return err
	}

	s.mu.Lock()
	changed := data != s.data
	s.data = data
	s.mu.Unlock()

	if changed {
		s.logger.Debugf("Settings changed on disk, enabled: %t", data.Enabled)
		s.notify(data)
	}
	return nil
}

// Watch reloads the settings whenever the file is written, until ctx is done.
// We watch the directory because editors usually replace the file instead of writing to it.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create settings watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := s.Reload(); err != nil {
				s.logger.Errorf("failed to reload settings: %s", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error(err)
		}
	}
}

func (s *Store) notify(data Settings) {
	s.mu.RLock()
	listeners := make([]func(Settings), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

func (s *Store) read() (Settings, error) {
	s.mu.RLock()
	data := s.data
	s.mu.RUnlock()

	lock := s.newLock()
	if err := lock.RLock(); err != nil {
		return data, fmt.Errorf("failed to lock settings: %w", err)
	}
	defer lock.Unlock()

	file, err := os.ReadFile(s.path)
	if err != nil {
		return data, fmt.Errorf("failed to read settings: %w", err)
	}

	if err := json.Unmarshal(file, &data); err != nil {
		return data, fmt.Errorf("malformed settings file %s: %w", s.path, err)
	}
	return data, nil
}

func (s *Store) write(data Settings) error {
	dataBytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	lock := s.newLock()
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock settings: %w", err)
	}
	defer lock.Unlock()

	// the app key lives in here
	if err := os.WriteFile(s.path, dataBytes, 0600); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// flock locks belong to a file handle, so every read and write opens its own.
// The lock file is never removed, other processes may be waiting on it.
func (s *Store) newLock() *flock.Flock {
	return flock.New(s.path + ".lock")
}
