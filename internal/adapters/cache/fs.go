// Package cache provides the tile cache stores.
package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jobrunner/charttiler/internal/domain"
	"github.com/jobrunner/charttiler/internal/ports/output"
)

const fileExt = ".bin"

// FileStore implements CacheStore on the local filesystem. Entries live at
// <root>/<namespace>/<chart>/<entry>.bin.
type FileStore struct {
	root string
}

// NewFileStore creates a file store rooted at root.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, &domain.CacheError{Operation: "init", Key: root, Err: err}
	}
	return &FileStore{root: root}, nil
}

// Root returns the store's base directory.
func (s *FileStore) Root() string {
	return s.root
}

// Path returns the file path for a key.
func (s *FileStore) Path(key output.CacheKey) string {
	return filepath.Join(s.root, safeName(key.Namespace), safeName(key.Chart), safeName(key.Entry)+fileExt)
}

// Get implements CacheStore.
func (s *FileStore) Get(_ context.Context, key output.CacheKey) ([]byte, error) {
	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", key, domain.ErrCacheMiss)
		}
		return nil, &domain.CacheError{Operation: "get", Key: key.String(), Err: err}
	}
	return data, nil
}

// Put writes to a temporary file in the target directory and renames it
// into place, so readers never observe a partial entry.
func (s *FileStore) Put(_ context.Context, key output.CacheKey, data []byte) error {
	dest := s.Path(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return &domain.CacheError{Operation: "put", Key: key.String(), Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return &domain.CacheError{Operation: "put", Key: key.String(), Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &domain.CacheError{Operation: "put", Key: key.String(), Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &domain.CacheError{Operation: "put", Key: key.String(), Err: err}
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return &domain.CacheError{Operation: "put", Key: key.String(), Err: err}
	}
	return nil
}

// Exists implements CacheStore.
func (s *FileStore) Exists(_ context.Context, key output.CacheKey) (bool, error) {
	_, err := os.Stat(s.Path(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, &domain.CacheError{Operation: "exists", Key: key.String(), Err: err}
}

// Delete implements CacheStore.
func (s *FileStore) Delete(_ context.Context, key output.CacheKey) error {
	if err := os.Remove(s.Path(key)); err != nil && !os.IsNotExist(err) {
		return &domain.CacheError{Operation: "delete", Key: key.String(), Err: err}
	}
	return nil
}

// DeleteChart implements CacheStore.
func (s *FileStore) DeleteChart(_ context.Context, namespace, chart string) error {
	dir := filepath.Join(s.root, safeName(namespace), safeName(chart))
	if err := os.RemoveAll(dir); err != nil {
		return &domain.CacheError{Operation: "delete", Key: dir, Err: err}
	}
	return nil
}

// Writable checks that a file can be created under the root.
func (s *FileStore) Writable(_ context.Context) error {
	f, err := os.CreateTemp(s.root, ".probe-*")
	if err != nil {
		return &domain.CacheError{Operation: "probe", Key: s.root, Err: err}
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// Close implements CacheStore.
func (s *FileStore) Close() error {
	return nil
}

// safeName keeps a key component inside its directory.
func safeName(s string) string {
	s = strings.ReplaceAll(s, string(filepath.Separator), "_")
	s = strings.ReplaceAll(s, "/", "_")
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}
