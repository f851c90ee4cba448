package output

import (
	"context"
	"path"
)

// CacheKey addresses one cache entry.
type CacheKey struct {
	Namespace string // Container format identifier
	Chart     string // Chart name
	Entry     string // "all_<ppl>" or a tile id
}

// String returns the key as a slash separated path.
func (k CacheKey) String() string {
	return path.Join(k.Namespace, k.Chart, k.Entry)
}

// CacheStore defines the secondary port for the tile cache.
type CacheStore interface {
	// Get returns the entry's bytes or an error wrapping domain.ErrCacheMiss.
	Get(ctx context.Context, key CacheKey) ([]byte, error)

	// Put stores the entry atomically, replacing any previous value.
	Put(ctx context.Context, key CacheKey, data []byte) error

	// Exists reports whether the entry is present.
	Exists(ctx context.Context, key CacheKey) (bool, error)

	// Delete removes the entry. Deleting a missing entry is not an error.
	Delete(ctx context.Context, key CacheKey) error

	// DeleteChart removes every entry of one chart in a namespace.
	DeleteChart(ctx context.Context, namespace, chart string) error

	// Writable reports whether the store accepts writes.
	Writable(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}
