package application

import (
	"context"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jobrunner/charttiler/internal/domain"
)

// tileComposer is the part of the factory the seeder drives.
type tileComposer interface {
	TileData(ctx context.Context, rect domain.GeoRect, ppl float64) []*domain.Chart
}

// SeedProgress receives the number of finished tiles. It is called from
// the worker goroutines.
type SeedProgress func(done, total int)

// SeedStats summarizes a seed run.
type SeedStats struct {
	Tiles     int
	Fragments int
	Duration  time.Duration
}

// Seeder fills the tile caches of a region ahead of use.
type Seeder struct {
	tiles   tileComposer
	grid    TileGrid
	workers int
	logger  *slog.Logger
}

// NewSeeder creates a seeder running up to workers tiles at once. A
// non-positive workers uses the CPU count.
func NewSeeder(tiles tileComposer, grid TileGrid, workers int, logger *slog.Logger) *Seeder {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if grid == nil {
		grid = SlippyGrid
	}
	return &Seeder{tiles: tiles, grid: grid, workers: workers, logger: logger}
}

// Seed composes every grid tile of region between minZoom and maxZoom at
// the resolution the tile list hands out for its zoom.
func (s *Seeder) Seed(ctx context.Context, region domain.GeoRect, minZoom, maxZoom int, progress SeedProgress) (SeedStats, error) {
	if err := region.Validate(); err != nil {
		return SeedStats{}, err
	}
	minZoom = max(minZoom, 0)
	maxZoom = min(maxZoom, domain.MaxZoom)

	type job struct {
		rect domain.GeoRect
		ppl  float64
	}
	var jobs []job
	for z := minZoom; z <= maxZoom; z++ {
		ppl := float64(domain.MaxPixelsPerLongitude(z))
		for _, rect := range s.grid(region, z) {
			jobs = append(jobs, job{rect: rect, ppl: ppl})
		}
	}

	s.logger.Info("seeding tiles",
		"region", region.String(),
		"min_zoom", minZoom,
		"max_zoom", maxZoom,
		"tiles", len(jobs),
		"workers", s.workers,
	)

	start := time.Now()
	var done, fragments atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, j := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			charts := s.tiles.TileData(gctx, j.rect, j.ppl)
			fragments.Add(int64(len(charts)))
			n := done.Add(1)
			if progress != nil {
				progress(int(n), len(jobs))
			}
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	stats := SeedStats{
		Tiles:     int(done.Load()),
		Fragments: int(fragments.Load()),
		Duration:  time.Since(start),
	}
	s.logger.Info("seeding finished",
		"tiles", stats.Tiles,
		"fragments", stats.Fragments,
		"duration", stats.Duration,
	)
	return stats, err
}
