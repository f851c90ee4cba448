package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/jobrunner/charttiler/internal/domain"
	"github.com/jobrunner/charttiler/internal/geometry"
	"github.com/jobrunner/charttiler/internal/ports/output"
)

// Clip window and grid sizes in screen pixels.
const (
	clipMarginPixels     = 6
	clipResolutionPixels = 2
)

// Cache lookup kinds for metrics.
const (
	kindConverted = "converted"
	kindTile      = "tile"
)

// tightEntrySuffix marks tile entries clipped with edge extension off.
const tightEntrySuffix = "_tight"

// ChartReader runs fn on a stream of one chart file while holding the
// reader's single-stream gate.
type ChartReader interface {
	WithChart(ctx context.Context, name string, fn func(io.Reader) error) error
}

// ChartSource produces clipped fragments of one chart file. Every fragment
// and every full conversion is cached; concurrent requests for the same
// fragment generate it once.
type ChartSource struct {
	reader  ChartReader
	file    string
	header  domain.ChartHeader
	store   output.CacheStore
	codec   output.ChartCodec
	decoder output.ChartDecoder
	metrics output.MetricsCollector
	logger  *slog.Logger

	moveOutEdges bool

	convertMu sync.Mutex
	inflight  *keyedMutex
}

// ChartSourceOption configures a ChartSource.
type ChartSourceOption func(*ChartSource)

// WithMoveOutEdges toggles edge extension at the chart's own boundary.
func WithMoveOutEdges(enabled bool) ChartSourceOption {
	return func(s *ChartSource) { s.moveOutEdges = enabled }
}

// WithSourceMetrics sets the metrics collector.
func WithSourceMetrics(m output.MetricsCollector) ChartSourceOption {
	return func(s *ChartSource) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithSourceLogger sets the logger.
func WithSourceLogger(l *slog.Logger) ChartSourceOption {
	return func(s *ChartSource) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewChartSource reads the header of one chart file. A chart without a
// native scale is rejected with domain.ErrInvalidChart.
func NewChartSource(
	ctx context.Context,
	reader ChartReader,
	file string,
	store output.CacheStore,
	codec output.ChartCodec,
	decoder output.ChartDecoder,
	opts ...ChartSourceOption,
) (*ChartSource, error) {
	s := &ChartSource{
		reader:       reader,
		file:         file,
		store:        store,
		codec:        codec,
		decoder:      decoder,
		metrics:      &output.NoOpMetrics{},
		logger:       slog.Default(),
		moveOutEdges: true,
		inflight:     newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if decoder == nil {
		return nil, fmt.Errorf("%s: %w", file, domain.ErrUnsupportedFormat)
	}

	err := reader.WithChart(ctx, file, func(r io.Reader) error {
		h, err := decoder.ReadHeader(ctx, r)
		if err != nil {
			return err
		}
		s.header = *h
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.header.NativeScale <= 0 {
		return nil, fmt.Errorf("%s has no native scale: %w", file, domain.ErrInvalidChart)
	}
	if s.header.Name == "" {
		s.header.Name = stem(file)
	}
	return s, nil
}

// Name returns the chart file name, the source's identity.
func (s *ChartSource) Name() string { return s.file }

// Scale returns the native scale denominator.
func (s *ChartSource) Scale() int { return s.header.NativeScale }

// Extent returns the chart's geographic extent.
func (s *ChartSource) Extent() domain.GeoRect { return s.header.Extent }

// Header returns the chart metadata.
func (s *ChartSource) Header() domain.ChartHeader { return s.header }

// Create returns the fragment of the chart inside rect at resolution ppl,
// from cache or freshly clipped. Concurrent calls with the same rect and
// ppl produce one generation; the others wait and read its result.
func (s *ChartSource) Create(ctx context.Context, rect domain.GeoRect, ppl float64) (*domain.Chart, error) {
	entry := s.tileEntry(domain.TileID(rect, int(ppl)))
	unlock := s.inflight.Lock(entry)
	defer unlock()

	key := s.key(entry)
	if chart, ok := s.lookup(ctx, key, kindTile); ok {
		return chart, nil
	}

	start := time.Now()
	chart, err := s.generate(ctx, rect, ppl, key)
	s.metrics.IncTileGenerations(s.file, err == nil)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveGenerationDuration(kindTile, time.Since(start))
	return chart, nil
}

// lookup reads and decodes a cache entry. An entry that does not decode is
// logged and reported as a miss so it gets regenerated.
func (s *ChartSource) lookup(ctx context.Context, key output.CacheKey, kind string) (*domain.Chart, bool) {
	data, err := s.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			s.logger.Warn("cache read failed", "key", key.String(), "error", err)
		}
		s.metrics.IncCacheLookups(kind, false)
		return nil, false
	}

	chart, err := s.codec.Decode(data)
	if err != nil {
		s.logger.Warn("discarding unreadable cache entry", "key", key.String(), "error", err)
		s.metrics.IncCacheLookups(kind, false)
		return nil, false
	}

	s.metrics.IncCacheLookups(kind, true)
	return chart, true
}

func (s *ChartSource) generate(ctx context.Context, rect domain.GeoRect, ppl float64, key output.CacheKey) (*domain.Chart, error) {
	cfg := clipConfig(rect, ppl, s.moveOutEdges)

	full, err := s.converted(ctx, ppl, cfg)
	if err != nil {
		return nil, fmt.Errorf("converting %s: %w", s.file, err)
	}
	if full.NativeScale <= 0 {
		return nil, fmt.Errorf("%s: %w", s.file, domain.ErrInvalidChart)
	}

	clipped := geometry.ClipChart(full, cfg)
	if err := s.put(ctx, key, clipped); err != nil {
		return nil, err
	}
	return clipped, nil
}

// converted returns the simplified full chart for ppl, converting it on
// first use. Conversion is chart wide and rare, so one mutex per chart
// serializes it.
func (s *ChartSource) converted(ctx context.Context, ppl float64, cfg geometry.ClipConfig) (*domain.Chart, error) {
	key := s.key("all_" + strconv.Itoa(int(ppl)))
	if chart, ok := s.lookup(ctx, key, kindConverted); ok {
		return chart, nil
	}

	s.convertMu.Lock()
	defer s.convertMu.Unlock()

	if data, err := s.store.Get(ctx, key); err == nil {
		if chart, err := s.codec.Decode(data); err == nil {
			return chart, nil
		}
	}

	start := time.Now()
	epsilon := 2 * math.Min(cfg.LongitudeResolution, cfg.LatitudeResolution)
	simp := geometry.NewSimplifier(epsilon)

	var decoded *domain.DecodedChart
	err := s.reader.WithChart(ctx, s.file, func(r io.Reader) error {
		var err error
		decoded, err = s.decoder.Decode(ctx, r)
		return err
	})
	if err != nil {
		return nil, err
	}

	if decoded.Header.NativeScale <= 0 {
		decoded.Header.NativeScale = s.header.NativeScale
	}
	if decoded.Header.Name == "" {
		decoded.Header.Name = s.header.Name
	}
	if decoded.Header.Extent.IsZero() {
		decoded.Header.Extent = s.header.Extent
	}

	chart := buildChart(decoded, simp)
	if err := s.put(ctx, key, chart); err != nil {
		return nil, err
	}

	s.metrics.ObserveGenerationDuration(kindConverted, time.Since(start))
	s.logger.Info("chart converted",
		"chart", s.file,
		"ppl", int(ppl),
		"objects", chart.ObjectCount(),
		"duration", time.Since(start),
	)
	return chart, nil
}

func (s *ChartSource) put(ctx context.Context, key output.CacheKey, chart *domain.Chart) error {
	data, err := s.codec.Encode(chart)
	if err != nil {
		return err
	}
	return s.store.Put(ctx, key, data)
}

// tileEntry names the cache entry of a tile. Fragments clipped without edge
// extension are kept apart from the default ones.
func (s *ChartSource) tileEntry(id string) string {
	if s.moveOutEdges {
		return id
	}
	return id + tightEntrySuffix
}

func (s *ChartSource) key(entry string) output.CacheKey {
	return output.CacheKey{Namespace: s.codec.Namespace(), Chart: s.file, Entry: entry}
}

// Invalidate drops every cache entry of the chart.
func (s *ChartSource) Invalidate(ctx context.Context) error {
	return s.store.DeleteChart(ctx, s.codec.Namespace(), s.file)
}

// clipConfig derives the clip window of a tile from its resolution: the
// margin is clipMarginPixels wide and the grid resolution clipResolutionPixels.
func clipConfig(rect domain.GeoRect, ppl float64, moveOutEdges bool) geometry.ClipConfig {
	return geometry.ClipConfig{
		Box:                 rect,
		LongitudeMargin:     domain.MercatorWidthInverse(rect.Left, clipMarginPixels, ppl) - rect.Left,
		LatitudeMargin:      rect.Top - domain.MercatorHeightInverse(rect.Top, clipMarginPixels, ppl),
		LongitudeResolution: domain.MercatorWidthInverse(rect.Left, clipResolutionPixels, ppl) - rect.Left,
		LatitudeResolution:  rect.Top - domain.MercatorHeightInverse(rect.Top, clipResolutionPixels, ppl),
		MoveOutEdges:        moveOutEdges,
	}
}
