package application

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/jobrunner/charttiler/internal/domain"
)

// VisibilityStore persists the hidden charts of each chart directory in a
// YAML file. Charts not listed are visible, so charts added later show up
// by default.
type VisibilityStore struct {
	mu     sync.Mutex
	path   string
	hidden map[string][]string
}

type visibilityFile struct {
	Directories map[string]visibilityEntry `yaml:"directories"`
}

type visibilityEntry struct {
	Hidden []string `yaml:"hidden,omitempty"`
}

// NewVisibilityStore loads path. A missing file is an empty store; an
// empty path keeps the settings in memory only.
func NewVisibilityStore(path string) (*VisibilityStore, error) {
	s := &VisibilityStore{path: path, hidden: make(map[string][]string)}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path) //#nosec G304 -- path comes from configuration
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading visible charts: %w", err)
	}

	var f visibilityFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing visible charts %s: %w", path, err)
	}
	for dir, entry := range f.Directories {
		if len(entry.Hidden) > 0 {
			s.hidden[filepath.Clean(dir)] = entry.Hidden
		}
	}
	return s, nil
}

// Hidden reports whether chart is hidden in dir.
func (s *VisibilityStore) Hidden(dir, chart string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.hidden[filepath.Clean(dir)], chart)
}

// Update stores the visibility of every listed source and writes the file
// when anything changed.
func (s *VisibilityStore) Update(sources []domain.SourceInfo) error {
	next := make(map[string][]string)
	seen := make(map[string]bool)
	for _, src := range sources {
		dir := filepath.Clean(src.Directory)
		seen[dir] = true
		if !src.Enabled {
			next[dir] = append(next[dir], src.Name)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for dir := range seen {
		hidden := next[dir]
		sort.Strings(hidden)
		if slices.Equal(s.hidden[dir], hidden) {
			continue
		}
		changed = true
		if len(hidden) == 0 {
			delete(s.hidden, dir)
		} else {
			s.hidden[dir] = hidden
		}
	}
	if !changed {
		return nil
	}
	return s.save()
}

// save must be called with mu held.
func (s *VisibilityStore) save() error {
	if s.path == "" {
		return nil
	}

	f := visibilityFile{Directories: make(map[string]visibilityEntry, len(s.hidden))}
	for dir, hidden := range s.hidden {
		f.Directories[dir] = visibilityEntry{Hidden: hidden}
	}
	data, err := yaml.Marshal(&f)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
