// Package output defines the driven ports: tile cache, chart mirror and
// metrics.
package output

import (
	"context"
	"io"
	"time"
)

// ObjectStorage is the remote side of the chart mirror. Keys are slash
// separated paths relative to the configured prefix and only catalog
// files are listed.
type ObjectStorage interface {
	List(ctx context.Context) ([]StorageObject, error)

	// Download writes the object to dest atomically and stamps dest with the
	// remote modification time when the backend reports one.
	Download(ctx context.Context, key string, dest string) error

	// Open streams an object. A missing key yields an error wrapping
	// domain.ErrNotFound.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	Exists(ctx context.Context, key string) (bool, error)
}

// StorageObject describes one remote chart file.
type StorageObject struct {
	Key          string
	Size         int64     // -1 when the backend does not report sizes
	LastModified time.Time // zero when unknown
	ETag         string
}

// Stale reports whether a local copy with the given size and modification
// time must be replaced by this object.
func (o StorageObject) Stale(size int64, modTime time.Time) bool {
	if o.Size >= 0 && o.Size != size {
		return true
	}
	if o.Size < 0 && o.LastModified.IsZero() {
		return true
	}
	return !o.LastModified.IsZero() && o.LastModified.After(modTime)
}

// StorageType names a mirror backend in configuration.
type StorageType string

const (
	StorageTypeNone  StorageType = "none"
	StorageTypeS3    StorageType = "s3"
	StorageTypeAzure StorageType = "azure"
	StorageTypeHTTP  StorageType = "http"
	StorageTypeLocal StorageType = "local"
)
