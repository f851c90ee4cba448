package output

import "time"

// MetricsCollector defines the secondary port for metrics collection.
type MetricsCollector interface {
	// IncTileRequests counts TileData calls.
	IncTileRequests(fragments int)

	// IncTileGenerations counts clipped tile cache fills per chart.
	IncTileGenerations(chart string, success bool)

	// ObserveGenerationDuration records the time spent filling one cache entry.
	ObserveGenerationDuration(kind string, duration time.Duration)

	// IncCacheLookups counts cache lookups by kind (converted, tile).
	IncCacheLookups(kind string, hit bool)

	// IncCoverageEarlyStops counts TileData calls ended by full coverage.
	IncCoverageEarlyStops()

	// SetSourcesLoaded sets the number of loaded chart sources.
	SetSourcesLoaded(count int)

	// SetSourcesEnabled sets the number of enabled chart sources.
	SetSourcesEnabled(count int)

	// IncStorageOperations increments storage operation counter.
	IncStorageOperations(operation string, success bool)

	// ObserveStorageDuration records storage operation duration.
	ObserveStorageDuration(operation string, duration time.Duration)

	// IncSyncRuns counts storage sync runs.
	IncSyncRuns(success bool)
}

// NoOpMetrics is a no-op implementation of MetricsCollector.
type NoOpMetrics struct{}

// IncTileRequests implements MetricsCollector.
func (n *NoOpMetrics) IncTileRequests(_ int) {}

// IncTileGenerations implements MetricsCollector.
func (n *NoOpMetrics) IncTileGenerations(_ string, _ bool) {}

// ObserveGenerationDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveGenerationDuration(_ string, _ time.Duration) {}

// IncCacheLookups implements MetricsCollector.
func (n *NoOpMetrics) IncCacheLookups(_ string, _ bool) {}

// IncCoverageEarlyStops implements MetricsCollector.
func (n *NoOpMetrics) IncCoverageEarlyStops() {}

// SetSourcesLoaded implements MetricsCollector.
func (n *NoOpMetrics) SetSourcesLoaded(_ int) {}

// SetSourcesEnabled implements MetricsCollector.
func (n *NoOpMetrics) SetSourcesEnabled(_ int) {}

// IncStorageOperations implements MetricsCollector.
func (n *NoOpMetrics) IncStorageOperations(_ string, _ bool) {}

// ObserveStorageDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveStorageDuration(_ string, _ time.Duration) {}

// IncSyncRuns implements MetricsCollector.
func (n *NoOpMetrics) IncSyncRuns(_ bool) {}
