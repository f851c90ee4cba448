// Package application contains the application services.
package application

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/jobrunner/charttiler/internal/domain"
	"github.com/jobrunner/charttiler/internal/ports/input"
	"github.com/jobrunner/charttiler/internal/ports/output"
)

// RegistryConfig holds the collaborators of a ChartRegistry.
type RegistryConfig struct {
	Channel    output.DecryptChannel
	Decoders   map[domain.CatalogType]output.ChartDecoder
	Store      output.CacheStore
	Codec      output.ChartCodec
	Storage    output.ObjectStorage // nil without a chart mirror
	MirrorPath string
	Visibility *VisibilityStore

	StrictStreams bool
	MoveOutEdges  bool
}

// ProgressFunc receives the loaded fraction of a directory.
type ProgressFunc func(dir string, fraction float64)

// ChartRegistry loads chart directories and hands their charts to the tile
// factory.
type ChartRegistry struct {
	mu       sync.RWMutex
	dirs     map[string]*directoryEntry
	factory  *TileFactory
	cfg      RegistryConfig
	metrics  output.MetricsCollector
	logger   *slog.Logger
	progress ProgressFunc

	// gate is shared by all catalogs since they share the decrypt channel.
	gate sync.Mutex

	unsubscribe func()
}

type directoryEntry struct {
	catalog *Catalog
	sources []*ChartSource
	err     error
}

// NewChartRegistry creates a registry feeding factory.
func NewChartRegistry(
	factory *TileFactory,
	cfg RegistryConfig,
	metrics output.MetricsCollector,
	logger *slog.Logger,
) *ChartRegistry {
	if cfg.Visibility == nil {
		cfg.Visibility, _ = NewVisibilityStore("")
	}
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}
	r := &ChartRegistry{
		dirs:    make(map[string]*directoryEntry),
		factory: factory,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}
	r.unsubscribe = factory.Subscribe(r.persistVisibility)
	return r
}

// SetProgressFunc sets the load progress callback.
func (r *ChartRegistry) SetProgressFunc(fn ProgressFunc) {
	r.mu.Lock()
	r.progress = fn
	r.mu.Unlock()
}

// Close stops following factory events.
func (r *ChartRegistry) Close() {
	r.unsubscribe()
}

func (r *ChartRegistry) persistVisibility(event domain.Event) {
	if event.Kind != domain.EventChartsChanged {
		return
	}
	if err := r.cfg.Visibility.Update(r.factory.Sources()); err != nil {
		r.logger.Warn("failed to save visible charts", "error", err)
	}
}

// LoadDirectories loads every directory and sets the factory sources once
// all are loaded. Directories that fail are reported in the joined error;
// the others are still used.
func (r *ChartRegistry) LoadDirectories(ctx context.Context, dirs []string) error {
	var errs []error
	for _, dir := range dirs {
		if err := r.loadDirectory(ctx, dir); err != nil {
			errs = append(errs, err)
		}
	}
	r.applySources()
	return errors.Join(errs...)
}

// LoadDirectory loads all charts of a directory, replacing a previous load
// of it.
func (r *ChartRegistry) LoadDirectory(ctx context.Context, dir string) error {
	err := r.loadDirectory(ctx, dir)
	r.applySources()
	return err
}

func (r *ChartRegistry) loadDirectory(ctx context.Context, dir string) error {
	dir = filepath.Clean(dir)
	r.logger.Info("loading chart directory", "dir", dir)
	start := time.Now()

	opts := []CatalogOption{WithGate(&r.gate), WithStrictStreams(r.cfg.StrictStreams)}
	for t, d := range r.cfg.Decoders {
		opts = append(opts, WithDecoder(t, d))
	}

	catalog, err := NewCatalog(ctx, dir, r.cfg.Channel, r.logger, opts...)
	if err != nil {
		r.logger.Error("failed to open chart directory", "dir", dir, "error", err)
		r.setEntry(dir, &directoryEntry{err: err})
		return err
	}

	entry := &directoryEntry{catalog: catalog, err: catalog.Err()}
	if catalog.Type() == domain.CatalogInvalid {
		r.setEntry(dir, entry)
		return nil
	}

	files := largestFirst(dir, catalog.ChartFileNames())
	initial := len(files)
	for i, name := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		src, err := NewChartSource(ctx, catalog, name, r.cfg.Store, r.cfg.Codec, catalog.Decoder(),
			WithMoveOutEdges(r.cfg.MoveOutEdges),
			WithSourceMetrics(r.metrics),
			WithSourceLogger(r.logger),
		)
		if err != nil {
			r.logger.Warn("skipping chart", "dir", dir, "chart", name, "error", err)
		} else {
			entry.sources = append(entry.sources, src)
		}

		remaining := initial - i - 1
		r.reportProgress(dir, float64(initial-remaining)/float64(initial))
	}

	r.setEntry(dir, entry)
	r.logger.Info("chart directory loaded",
		"dir", dir,
		"type", catalog.Type().String(),
		"charts", len(entry.sources),
		"duration", time.Since(start),
	)
	return nil
}

// largestFirst orders chart files by descending size so that the slowest
// headers are read while progress is still low.
func largestFirst(dir string, names []string) []string {
	sizes := make(map[string]int64, len(names))
	for _, name := range names {
		if info, err := os.Stat(filepath.Join(dir, name)); err == nil {
			sizes[name] = info.Size()
		}
	}
	sort.SliceStable(names, func(i, j int) bool {
		return sizes[names[i]] > sizes[names[j]]
	})
	return names
}

func (r *ChartRegistry) reportProgress(dir string, fraction float64) {
	r.mu.RLock()
	fn := r.progress
	r.mu.RUnlock()
	if fn != nil {
		fn(dir, fraction)
	}
}

func (r *ChartRegistry) setEntry(dir string, entry *directoryEntry) {
	r.mu.Lock()
	r.dirs[dir] = entry
	r.mu.Unlock()
}

// UnloadDirectory removes the charts of a directory.
func (r *ChartRegistry) UnloadDirectory(_ context.Context, dir string) error {
	dir = filepath.Clean(dir)
	r.logger.Info("unloading chart directory", "dir", dir)

	r.mu.Lock()
	if _, ok := r.dirs[dir]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%s: %w", dir, domain.ErrDirectoryNotFound)
	}
	delete(r.dirs, dir)
	r.mu.Unlock()

	r.applySources()
	return nil
}

// Reload loads every known directory again, including directories that
// appeared in the chart mirror.
func (r *ChartRegistry) Reload(ctx context.Context) error {
	r.mu.RLock()
	dirs := make([]string, 0, len(r.dirs))
	for dir := range r.dirs {
		dirs = append(dirs, dir)
	}
	r.mu.RUnlock()

	known := make(map[string]bool, len(dirs))
	for _, dir := range dirs {
		known[dir] = true
	}
	for _, dir := range r.MirrorDirectories() {
		if !known[dir] {
			dirs = append(dirs, dir)
		}
	}
	sort.Strings(dirs)

	return r.LoadDirectories(ctx, dirs)
}

// HandleChange drops the cached fragments of changed chart files and loads
// their directory again. A directory that disappeared is unloaded.
func (r *ChartRegistry) HandleChange(ctx context.Context, dir string, files []string) error {
	for _, name := range files {
		if domain.IsChartFile(name) {
			r.invalidate(ctx, name)
		}
	}

	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return r.UnloadDirectory(ctx, dir)
	}
	return r.LoadDirectory(ctx, dir)
}

func (r *ChartRegistry) invalidate(ctx context.Context, chart string) {
	if err := r.cfg.Store.DeleteChart(ctx, r.cfg.Codec.Namespace(), chart); err != nil {
		r.logger.Warn("failed to drop cached chart", "chart", chart, "error", err)
	}
}

// applySources hands every loaded chart to the factory. A chart name seen
// in an earlier directory wins over later ones.
func (r *ChartRegistry) applySources() {
	r.mu.RLock()
	dirs := make([]string, 0, len(r.dirs))
	for dir := range r.dirs {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	seen := make(map[string]string)
	var sources []Source
	for _, dir := range dirs {
		for _, src := range r.dirs[dir].sources {
			if first, dup := seen[src.Name()]; dup {
				r.logger.Warn("duplicate chart ignored", "chart", src.Name(), "dir", dir, "used", first)
				continue
			}
			seen[src.Name()] = dir
			sources = append(sources, Source{
				Chart:     src,
				Directory: dir,
				Enabled:   !r.cfg.Visibility.Hidden(dir, src.Name()),
			})
		}
	}
	r.mu.RUnlock()

	r.factory.SetSources(sources)
}

// Directories returns the loaded chart directories.
func (r *ChartRegistry) Directories() []input.DirectoryStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]input.DirectoryStatus, 0, len(r.dirs))
	for dir, entry := range r.dirs {
		status := input.DirectoryStatus{Path: dir, Charts: len(entry.sources)}
		if entry.catalog != nil {
			status.Type = entry.catalog.Type()
		}
		if entry.err != nil {
			status.Error = entry.err.Error()
		}
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// SourceCount returns the number of usable chart sources.
func (r *ChartRegistry) SourceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, entry := range r.dirs {
		n += len(entry.sources)
	}
	return n
}

// SyncStats contains statistics from a sync operation.
type SyncStats struct {
	Added   int
	Removed int
}

// Changed reports whether the sync touched any file.
func (s SyncStats) Changed() bool {
	return s.Added > 0 || s.Removed > 0
}

// SyncFromStorage mirrors the chart files of the object storage into the
// mirror directory. New, resized and newer files are downloaded and local
// files no longer in the storage are deleted. Cached fragments of touched charts
// are dropped; loading the mirror is left to the caller.
func (r *ChartRegistry) SyncFromStorage(ctx context.Context) (SyncStats, error) {
	if r.cfg.Storage == nil || r.cfg.MirrorPath == "" {
		return SyncStats{}, fmt.Errorf("chart mirror: %w", domain.ErrUnsupported)
	}
	r.logger.Info("syncing charts from storage", "mirror", r.cfg.MirrorPath)

	start := time.Now()
	objects, err := r.cfg.Storage.List(ctx)
	r.metrics.IncStorageOperations("list", err == nil)
	r.metrics.ObserveStorageDuration("list", time.Since(start))
	if err != nil {
		return SyncStats{}, err
	}

	remote := make(map[string]output.StorageObject, len(objects))
	for _, obj := range objects {
		remote[filepath.ToSlash(obj.Key)] = obj
	}

	stats := SyncStats{}

	for key, obj := range remote {
		localPath := filepath.Join(r.cfg.MirrorPath, filepath.FromSlash(key))
		if info, err := os.Stat(localPath); err == nil && !obj.Stale(info.Size(), info.ModTime()) {
			r.logger.Debug("chart file up to date, skipping", "key", key)
			continue
		}

		start := time.Now()
		err := r.cfg.Storage.Download(ctx, key, localPath)
		r.metrics.IncStorageOperations("download", err == nil)
		r.metrics.ObserveStorageDuration("download", time.Since(start))
		if err != nil {
			r.logger.Error("failed to download chart file", "key", key, "error", err)
			continue
		}

		r.invalidate(ctx, filepath.Base(key))
		stats.Added++
		r.logger.Info("chart file synced", "key", key)
	}

	for _, key := range r.localOnly(remote) {
		localPath := filepath.Join(r.cfg.MirrorPath, filepath.FromSlash(key))
		if err := os.Remove(localPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("failed to delete chart file", "path", localPath, "error", err)
			continue
		}
		r.invalidate(ctx, filepath.Base(key))
		stats.Removed++
		r.logger.Info("removed chart file not in remote storage", "key", key)
	}

	r.logger.Info("sync completed", "added", stats.Added, "removed", stats.Removed)
	return stats, nil
}

// localOnly returns the mirror's chart files missing from remote, as
// slash separated keys.
func (r *ChartRegistry) localOnly(remote map[string]output.StorageObject) []string {
	var keys []string
	_ = filepath.WalkDir(r.cfg.MirrorPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !domain.IsCatalogFile(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(r.cfg.MirrorPath, path)
		if err != nil {
			return nil
		}
		key := filepath.ToSlash(rel)
		if _, ok := remote[key]; !ok {
			keys = append(keys, key)
		}
		return nil
	})
	sort.Strings(keys)
	return keys
}

// MirrorDirectories returns the mirror's directories holding chart files.
func (r *ChartRegistry) MirrorDirectories() []string {
	if r.cfg.MirrorPath == "" {
		return nil
	}
	seen := make(map[string]bool)
	_ = filepath.WalkDir(r.cfg.MirrorPath, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() && domain.IsChartFile(d.Name()) {
			seen[filepath.Clean(filepath.Dir(path))] = true
		}
		return nil
	})

	dirs := make([]string, 0, len(seen))
	for dir := range seen {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}
