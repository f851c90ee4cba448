// Package storage provides the chart mirror adapters.
package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// relativeKey strips the storage prefix from a remote key.
func relativeKey(key, prefix string) string {
	rel := strings.TrimPrefix(key, prefix)
	return strings.TrimPrefix(rel, "/")
}

// joinKey prefixes a key for the remote side.
func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return strings.TrimSuffix(prefix, "/") + "/" + key
}

// writeFile streams r into dest through a temporary sibling so a chart
// directory never holds a half written cell. A non-zero modTime is applied
// to dest so the next sync can compare it with the remote object.
func writeFile(dest string, r io.Reader, modTime time.Time) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if !modTime.IsZero() {
		if err := os.Chtimes(tmpName, modTime, modTime); err != nil {
			_ = os.Remove(tmpName)
			return err
		}
	}
	return os.Rename(tmpName, dest)
}

// timeOf dereferences an optional SDK timestamp.
func timeOf(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
