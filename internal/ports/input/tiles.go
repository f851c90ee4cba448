// Package input defines the primary/driving ports of the application.
package input

import (
	"context"

	"github.com/jobrunner/charttiler/internal/domain"
)

// TileService defines the primary port for tile decomposition and
// composition.
type TileService interface {
	// Tiles decomposes the viewport around center into the tiles that
	// intersect an enabled chart.
	Tiles(center domain.Pos, ppl float64, width, height int) []domain.Tile

	// TileData returns the chart fragments for one tile, coarsest first.
	TileData(ctx context.Context, rect domain.GeoRect, ppl float64) []*domain.Chart

	// ChartInfo describes every chart candidate for one tile.
	ChartInfo(rect domain.GeoRect, ppl float64) []domain.ChartInfo

	// Sources returns the registered charts, most detailed first.
	Sources() []domain.SourceInfo

	// SetChartEnabled shows or hides one chart.
	SetChartEnabled(name string, enabled bool) error

	// SetAllChartsEnabled shows or hides every chart and returns the indexes
	// of the sources that changed.
	SetAllChartsEnabled(enabled bool) []int

	// SetTileSettings hides the named charts on one tile.
	SetTileSettings(tileID string, disabledCharts []string)

	// Subscribe registers a listener for factory events.
	Subscribe(fn func(domain.Event)) (unsubscribe func())
}

// ChartRegistry defines the primary port for chart directory management.
type ChartRegistry interface {
	// Directories returns the loaded chart directories.
	Directories() []DirectoryStatus

	// LoadDirectory loads all charts of a directory.
	LoadDirectory(ctx context.Context, dir string) error

	// UnloadDirectory removes the charts of a directory.
	UnloadDirectory(ctx context.Context, dir string) error

	// SourceCount returns the number of usable chart sources.
	SourceCount() int
}

// DirectoryStatus describes one loaded chart directory.
type DirectoryStatus struct {
	Path   string             `json:"path"`
	Type   domain.CatalogType `json:"type"`
	Charts int                `json:"charts"`
	Error  string             `json:"error,omitempty"`
}

// HealthChecker defines the primary port for health checks.
type HealthChecker interface {
	// IsHealthy returns true if the service is healthy.
	IsHealthy(ctx context.Context) bool

	// IsReady returns true if the service is ready to accept requests.
	IsReady(ctx context.Context) bool

	// GetHealthDetails returns detailed health information.
	GetHealthDetails(ctx context.Context) HealthDetails
}

// HealthDetails contains detailed health information.
type HealthDetails struct {
	Healthy       bool              // Overall health status
	Ready         bool              // Ready to accept requests
	SourcesLoaded int               // Number of usable chart sources
	Components    map[string]string // Component statuses
}
