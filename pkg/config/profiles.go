// Package config provides the settings file and saved connection profiles
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"serial-console/pkg/console"
	"serial-console/pkg/serial"
)

// ErrProfileNotFound is returned for operations on a profile that was never
// saved
var ErrProfileNotFound = errors.New("profile not found")

// ProfileStore keeps named connection profiles
type ProfileStore interface {
	Save(p Profile) error
	Load(name string) (Profile, error)
	List() ([]Profile, error)
	Delete(name string) error
	Exists(name string) bool
}

// Profile is a saved connection: port parameters plus the console settings
// used with them
type Profile struct {
	Name        string              `json:"name"`
	Serial      serial.SerialConfig `json:"serial"`
	Console     console.Settings    `json:"console"`
	Description string              `json:"description,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	LastUsedAt  time.Time           `json:"last_used_at"`
}

// Validate checks the name and both parameter sets
func (p Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name cannot be empty")
	}

	if strings.ContainsAny(p.Name, `/\`) {
		return fmt.Errorf("profile name cannot contain path separators: %s", p.Name)
	}

	if err := p.Serial.Validate(); err != nil {
		return fmt.Errorf("invalid serial config: %w", err)
	}

	if err := p.Console.Validate(); err != nil {
		return fmt.Errorf("invalid console settings: %w", err)
	}

	return nil
}

// profileFile is the on-disk layout of the store
type profileFile struct {
	Version  int                `json:"version"`
	Profiles map[string]Profile `json:"profiles"`
}

const profileFileVersion = 2

// FileProfileStore implements ProfileStore with a single JSON file
type FileProfileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileProfileStore returns a store kept in dir/profiles.json. The
// directory is created on the first save.
func NewFileProfileStore(dir string) *FileProfileStore {
	return &FileProfileStore{path: filepath.Join(dir, "profiles.json")}
}

// Path returns the file backing the store
func (s *FileProfileStore) Path() string {
	return s.path
}

// Save stores p under p.Name. Saving over an existing profile keeps its
// creation time, and its description unless p carries a new one.
func (s *FileProfileStore) Save(p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	return s.update(func(f *profileFile) error {
		now := time.Now()
		p.CreatedAt, p.LastUsedAt = now, now

		if existing, ok := f.Profiles[p.Name]; ok {
			p.CreatedAt = existing.CreatedAt
			if p.Description == "" {
				p.Description = existing.Description
			}
		}

		f.Profiles[p.Name] = p
		return nil
	})
}

// Load returns the named profile and records that it was used
func (s *FileProfileStore) Load(name string) (Profile, error) {
	var p Profile

	err := s.update(func(f *profileFile) error {
		found, ok := f.Profiles[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
		}

		found.LastUsedAt = time.Now()
		f.Profiles[name] = found
		p = found
		return nil
	})

	return p, err
}

// List returns every profile sorted by name
func (s *FileProfileStore) List() ([]Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read()
	if err != nil {
		return nil, err
	}

	names := slices.Sorted(maps.Keys(f.Profiles))
	profiles := make([]Profile, 0, len(names))
	for _, name := range names {
		profiles = append(profiles, f.Profiles[name])
	}
	return profiles, nil
}

// Delete removes the named profile
func (s *FileProfileStore) Delete(name string) error {
	return s.update(func(f *profileFile) error {
		if _, ok := f.Profiles[name]; !ok {
			return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
		}

		delete(f.Profiles, name)
		return nil
	})
}

// Exists reports whether the named profile is stored. An unreadable store
// holds nothing.
func (s *FileProfileStore) Exists(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read()
	if err != nil {
		return false
	}

	_, ok := f.Profiles[name]
	return ok
}

// update applies fn to the stored profiles and writes them back when fn
// succeeds
func (s *FileProfileStore) update(fn func(*profileFile) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read()
	if err != nil {
		return err
	}

	if err := fn(&f); err != nil {
		return err
	}

	return s.write(f)
}

// read loads the store; a missing file is an empty store
func (s *FileProfileStore) read() (profileFile, error) {
	f := profileFile{Version: profileFileVersion, Profiles: map[string]Profile{}}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return f, fmt.Errorf("failed to read profiles: %w", err)
	}

	if err := json.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("failed to parse profiles %s: %w", s.path, err)
	}
	if f.Profiles == nil {
		f.Profiles = map[string]Profile{}
	}

	return f, nil
}

// write replaces the store through a temporary file in the same directory
func (s *FileProfileStore) write(f profileFile) error {
	f.Version = profileFileVersion

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode profiles: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".profiles-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temporary profile file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace profiles: %w", err)
	}
	return nil
}
