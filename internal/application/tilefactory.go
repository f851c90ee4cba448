package application

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/jobrunner/charttiler/internal/domain"
	"github.com/jobrunner/charttiler/internal/geometry"
	"github.com/jobrunner/charttiler/internal/ports/output"
)

// CoverageThreshold ends TileData once the fragments collected so far
// cover this fraction of the tile.
const CoverageThreshold = 0.98

// FragmentSource produces chart fragments for tiles.
type FragmentSource interface {
	Name() string
	Scale() int
	Extent() domain.GeoRect
	Create(ctx context.Context, rect domain.GeoRect, ppl float64) (*domain.Chart, error)
}

// Source is one entry of the factory's source list.
type Source struct {
	Chart     FragmentSource
	Directory string
	Enabled   bool
}

// TileGrid decomposes a rectangle into the tile rectangles of one zoom
// level.
type TileGrid func(rect domain.GeoRect, zoom int) []domain.GeoRect

// MaxViewportTiles bounds the number of tiles one viewport decomposes into.
// A viewport of 16384 x 16384 pixels needs at most about 1200.
const MaxViewportTiles = 4096

// SlippyGrid is the standard web map grid: 2^zoom by 2^zoom tiles between
// the Mercator latitude limits.
func SlippyGrid(rect domain.GeoRect, zoom int) []domain.GeoRect {
	z := maptile.Zoom(zoom)
	minX, maxX, minY, maxY := slippySpan(rect, z)

	rects := make([]domain.GeoRect, 0, int(maxX-minX+1)*int(maxY-minY+1))
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			rects = append(rects, domain.RectFromBound(maptile.New(x, y, z).Bound()))
		}
	}
	return rects
}

// slippyCount returns how many cells SlippyGrid yields without building them.
func slippyCount(rect domain.GeoRect, zoom int) int {
	minX, maxX, minY, maxY := slippySpan(rect, maptile.Zoom(zoom))
	return int(maxX-minX+1) * int(maxY-minY+1)
}

// slippySpan returns the inclusive tile index range covering rect.
func slippySpan(rect domain.GeoRect, z maptile.Zoom) (minX, maxX, minY, maxY uint32) {
	last := uint32(1)<<z - 1

	clampLat := func(lat float64) float64 {
		return math.Max(-domain.MercatorLatLimit, math.Min(domain.MercatorLatLimit, lat))
	}
	clampIndex := func(v uint32) uint32 {
		if v > last {
			return last
		}
		return v
	}

	topLeft := maptile.At(orb.Point{math.Max(-180, rect.Left), clampLat(rect.Top)}, z)
	bottomRight := maptile.At(orb.Point{math.Min(180, rect.Right), clampLat(rect.Bottom)}, z)

	minX, maxX = clampIndex(topLeft.X), clampIndex(bottomRight.X)
	minY, maxY = clampIndex(topLeft.Y), clampIndex(bottomRight.Y)
	return minX, maxX, minY, maxY
}

// TileFactory decomposes viewports into tiles and composes the chart
// fragments of a tile from its ordered sources.
type TileFactory struct {
	mu           sync.RWMutex
	sources      []Source
	index        *rtreego.Rtree
	tileSettings map[string][]string

	memoMu    sync.Mutex
	memo      *tilesMemo
	lastTiles []domain.Tile

	obsMu     sync.Mutex
	observers map[int]func(domain.Event)
	nextObs   int

	grid    TileGrid
	metrics output.MetricsCollector
	logger  *slog.Logger
}

type tilesMemo struct {
	viewport domain.GeoRect
	zoom     int
	rects    []domain.GeoRect
	tiles    []domain.Tile
}

// FactoryOption configures a TileFactory.
type FactoryOption func(*TileFactory)

// WithTileGrid replaces the slippy grid.
func WithTileGrid(grid TileGrid) FactoryOption {
	return func(f *TileFactory) {
		if grid != nil {
			f.grid = grid
		}
	}
}

// WithFactoryMetrics sets the metrics collector.
func WithFactoryMetrics(m output.MetricsCollector) FactoryOption {
	return func(f *TileFactory) {
		if m != nil {
			f.metrics = m
		}
	}
}

// NewTileFactory creates a factory without sources.
func NewTileFactory(logger *slog.Logger, opts ...FactoryOption) *TileFactory {
	f := &TileFactory{
		index:        newExtentIndex(nil),
		tileSettings: make(map[string][]string),
		observers:    make(map[int]func(domain.Event)),
		grid:         SlippyGrid,
		metrics:      &output.NoOpMetrics{},
		logger:       logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// extentEntry is a source extent in the R-tree, dimensions (lon, lat).
type extentEntry struct {
	pos  int
	rect rtreego.Rect
}

func (e *extentEntry) Bounds() rtreego.Rect { return e.rect }

func toRTreeRect(r domain.GeoRect) rtreego.Rect {
	rect, _ := rtreego.NewRectFromPoints(
		rtreego.Point{r.Left, r.Bottom},
		rtreego.Point{r.Right, r.Top},
	)
	return rect
}

func newExtentIndex(sources []Source) *rtreego.Rtree {
	entries := make([]rtreego.Spatial, 0, len(sources))
	for i, s := range sources {
		entries = append(entries, &extentEntry{pos: i, rect: toRTreeRect(s.Chart.Extent())})
	}
	return rtreego.NewTree(2, 4, 16, entries...)
}

// Tiles decomposes the viewport of width x height pixels around center into
// the tiles that intersect at least one enabled source. A viewport spanning
// more than MaxViewportTiles tiles yields no tiles.
func (f *TileFactory) Tiles(center domain.Pos, ppl float64, width, height int) []domain.Tile {
	viewport := domain.Viewport(center, ppl, width, height)
	zoom := domain.ZoomLevel(ppl)

	if n := slippyCount(viewport, zoom); n > MaxViewportTiles {
		f.logger.Warn("viewport too large",
			"width", width,
			"height", height,
			"zoom", zoom,
			"tiles", n,
			"limit", MaxViewportTiles,
		)
		return nil
	}

	f.memoMu.Lock()
	defer f.memoMu.Unlock()

	if f.memo != nil && f.memo.viewport == viewport && f.memo.zoom == zoom {
		return f.memo.tiles
	}

	var rects []domain.GeoRect
	for _, r := range f.grid(viewport, zoom) {
		if f.anyEnabledIntersects(r) {
			rects = append(rects, r)
		}
	}

	if f.memo != nil && slices.Equal(f.memo.rects, rects) {
		f.memo.viewport, f.memo.zoom = viewport, zoom
		return f.memo.tiles
	}

	maxPPL := domain.MaxPixelsPerLongitude(zoom)
	tiles := make([]domain.Tile, 0, len(rects))
	for _, r := range rects {
		tiles = append(tiles, domain.Tile{
			ID:                    domain.TileID(r, maxPPL),
			BoundingBox:           r,
			MaxPixelsPerLongitude: maxPPL,
		})
	}

	f.memo = &tilesMemo{viewport: viewport, zoom: zoom, rects: rects, tiles: tiles}
	f.lastTiles = tiles
	return tiles
}

func (f *TileFactory) anyEnabledIntersects(rect domain.GeoRect) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, hit := range f.index.SearchIntersect(toRTreeRect(rect)) {
		s := f.sources[hit.(*extentEntry).pos]
		if s.Enabled && s.Chart.Extent().Intersects(rect) {
			return true
		}
	}
	return false
}

// candidates returns the enabled sources intersecting rect, most detailed
// first, and the charts disabled on the tile.
func (f *TileFactory) candidates(rect domain.GeoRect, tileID string) ([]FragmentSource, []string) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var out []FragmentSource
	for _, s := range f.sources {
		if s.Enabled && s.Chart.Extent().Intersects(rect) {
			out = append(out, s.Chart)
		}
	}
	return out, slices.Clone(f.tileSettings[tileID])
}

// TileData returns the fragments of the enabled charts covering rect,
// coarsest first so that detail paints on top. Charts far more detailed
// than the display scale are skipped, except the coarsest candidate. The
// walk from detailed to coarse stops once the fragments cover the tile.
// A source that fails is logged and left out.
func (f *TileFactory) TileData(ctx context.Context, rect domain.GeoRect, ppl float64) []*domain.Chart {
	tileID := domain.TileID(rect, int(ppl))
	candidates, disabled := f.candidates(rect, tileID)
	displayScale := domain.DisplayScale(ppl)

	coverage := geometry.NewCoverage(rect)
	var charts []*domain.Chart
	for i, src := range candidates {
		if i < len(candidates)-1 && displayScale/4 > src.Scale() {
			continue
		}
		if slices.Contains(disabled, src.Name()) {
			continue
		}

		chart, err := src.Create(ctx, rect, ppl)
		if err != nil {
			f.logger.Warn("chart unavailable for tile",
				"chart", src.Name(),
				"tile", tileID,
				"error", err,
			)
			continue
		}
		if chart == nil {
			continue
		}

		charts = append(charts, chart)
		coverage.Add(chart.CoveragePolygons())
		if coverage.Ratio() >= CoverageThreshold {
			f.metrics.IncCoverageEarlyStops()
			break
		}
	}

	slices.Reverse(charts)
	f.metrics.IncTileRequests(len(charts))
	return charts
}

// ChartInfo describes every enabled chart intersecting rect that is not too
// detailed for ppl, and whether it is shown on the tile.
func (f *TileFactory) ChartInfo(rect domain.GeoRect, ppl float64) []domain.ChartInfo {
	candidates, disabled := f.candidates(rect, domain.TileID(rect, int(ppl)))
	displayScale := domain.DisplayScale(ppl)

	infos := make([]domain.ChartInfo, 0, len(candidates))
	for i, src := range candidates {
		if i < len(candidates)-1 && displayScale/4 > src.Scale() {
			continue
		}
		infos = append(infos, domain.ChartInfo{
			Name:           src.Name(),
			NativeScale:    src.Scale(),
			BoundingBox:    src.Extent(),
			EnabledForTile: !slices.Contains(disabled, src.Name()),
		})
	}
	return infos
}

// SetSources replaces the source list. Nil charts are dropped and the rest
// sorted most detailed first.
func (f *TileFactory) SetSources(sources []Source) {
	kept := make([]Source, 0, len(sources))
	for _, s := range sources {
		if s.Chart != nil {
			kept = append(kept, s)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Chart.Scale() < kept[j].Chart.Scale()
	})

	f.mu.Lock()
	regions := extents(f.sources)
	f.sources = kept
	f.index = newExtentIndex(kept)
	regions = append(regions, extents(kept)...)
	f.mu.Unlock()

	f.clearMemo()
	f.updateMetrics()
	f.logger.Info("chart sources set", "count", len(kept))

	f.publish(domain.Event{Kind: domain.EventSourcesUpdated})
	f.publish(domain.Event{Kind: domain.EventChartsChanged, Regions: regions})
}

// Clear removes every source.
func (f *TileFactory) Clear() {
	f.SetSources(nil)
}

func extents(sources []Source) []domain.GeoRect {
	out := make([]domain.GeoRect, 0, len(sources))
	for _, s := range sources {
		out = append(out, s.Chart.Extent())
	}
	return out
}

// SetChartEnabled shows or hides the named chart. Listeners get the chart's
// extent and the ids of the last returned tiles it intersects.
func (f *TileFactory) SetChartEnabled(name string, enabled bool) error {
	f.mu.Lock()
	pos := f.find(name)
	if pos < 0 {
		f.mu.Unlock()
		return fmt.Errorf("%s: %w", name, domain.ErrChartNotFound)
	}
	if f.sources[pos].Enabled == enabled {
		f.mu.Unlock()
		return nil
	}
	f.sources[pos].Enabled = enabled
	extent := f.sources[pos].Chart.Extent()
	f.mu.Unlock()

	f.memoMu.Lock()
	var ids []string
	for _, t := range f.lastTiles {
		if t.BoundingBox.Intersects(extent) {
			ids = append(ids, t.ID)
		}
	}
	f.memo = nil
	f.memoMu.Unlock()

	f.updateMetrics()
	f.logger.Info("chart visibility changed", "chart", name, "enabled", enabled)

	f.publish(domain.Event{Kind: domain.EventChartsChanged, Regions: []domain.GeoRect{extent}})
	f.publish(domain.Event{Kind: domain.EventTileDataChanged, TileIDs: ids})
	return nil
}

// SetAllChartsEnabled shows or hides every chart and returns the positions
// of the sources that changed.
func (f *TileFactory) SetAllChartsEnabled(enabled bool) []int {
	var changed []int
	var regions []domain.GeoRect

	f.mu.Lock()
	for i := range f.sources {
		if f.sources[i].Enabled != enabled {
			f.sources[i].Enabled = enabled
			changed = append(changed, i)
			regions = append(regions, f.sources[i].Chart.Extent())
		}
	}
	f.mu.Unlock()

	if len(changed) == 0 {
		return nil
	}

	f.clearMemo()
	f.updateMetrics()
	f.publish(domain.Event{Kind: domain.EventChartsChanged, Regions: regions})
	return changed
}

// SetTileSettings hides the named charts on one tile. An empty list shows
// every chart again.
func (f *TileFactory) SetTileSettings(tileID string, disabledCharts []string) {
	disabled := slices.Clone(disabledCharts)
	slices.Sort(disabled)
	disabled = slices.Compact(disabled)

	f.mu.Lock()
	if slices.Equal(f.tileSettings[tileID], disabled) {
		f.mu.Unlock()
		return
	}
	if len(disabled) == 0 {
		delete(f.tileSettings, tileID)
	} else {
		f.tileSettings[tileID] = disabled
	}
	f.mu.Unlock()

	f.publish(domain.Event{Kind: domain.EventTileDataChanged, TileIDs: []string{tileID}})
}

// Sources describes the registered charts, most detailed first.
func (f *TileFactory) Sources() []domain.SourceInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()

	infos := make([]domain.SourceInfo, 0, len(f.sources))
	for _, s := range f.sources {
		infos = append(infos, domain.SourceInfo{
			Name:        s.Chart.Name(),
			Directory:   s.Directory,
			NativeScale: s.Chart.Scale(),
			Extent:      s.Chart.Extent(),
			Enabled:     s.Enabled,
		})
	}
	return infos
}

// HasSource reports whether a chart with the given name is registered.
func (f *TileFactory) HasSource(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.find(name) >= 0
}

// EnabledCount returns the number of enabled sources.
func (f *TileFactory) EnabledCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	n := 0
	for _, s := range f.sources {
		if s.Enabled {
			n++
		}
	}
	return n
}

// find must be called with mu held.
func (f *TileFactory) find(name string) int {
	for i, s := range f.sources {
		if s.Chart.Name() == name {
			return i
		}
	}
	return -1
}

func (f *TileFactory) clearMemo() {
	f.memoMu.Lock()
	f.memo = nil
	f.memoMu.Unlock()
}

func (f *TileFactory) updateMetrics() {
	f.mu.RLock()
	total := len(f.sources)
	f.mu.RUnlock()

	f.metrics.SetSourcesLoaded(total)
	f.metrics.SetSourcesEnabled(f.EnabledCount())
}

// Subscribe registers fn for factory events. Events are delivered
// synchronously, in publication order, outside the factory's locks.
func (f *TileFactory) Subscribe(fn func(domain.Event)) (unsubscribe func()) {
	f.obsMu.Lock()
	id := f.nextObs
	f.nextObs++
	f.observers[id] = fn
	f.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.obsMu.Lock()
			delete(f.observers, id)
			f.obsMu.Unlock()
		})
	}
}

func (f *TileFactory) publish(event domain.Event) {
	f.obsMu.Lock()
	ids := make([]int, 0, len(f.observers))
	for id := range f.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]func(domain.Event), 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, f.observers[id])
	}
	f.obsMu.Unlock()

	for _, fn := range listeners {
		fn(event)
	}
}
