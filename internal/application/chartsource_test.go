package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/paulmach/orb"

	"github.com/jobrunner/charttiler/internal/domain"
	"github.com/jobrunner/charttiler/internal/ports/output"
)

var (
	testExtent = domain.GeoRect{Top: 60, Bottom: 59, Left: 18, Right: 19}
	testTile   = domain.GeoRect{Top: 59.6, Bottom: 59.4, Left: 18.4, Right: 18.6}
)

const testPPL = 5000.0

func decodedTestChart() *domain.DecodedChart {
	return &domain.DecodedChart{
		Header: domain.ChartHeader{Name: "TEST", NativeScale: 50000, Extent: testExtent},
		Objects: []domain.ChartObject{
			{
				Class:      domain.ClassCoverage,
				Attributes: map[domain.AttributeCode]string{domain.AttrCategoryOfCoverage: "1"},
				Polygons:   []orb.Polygon{rectPolygon(testExtent)},
			},
			{
				Class:      domain.ClassLandArea,
				Attributes: map[domain.AttributeCode]string{domain.AttrObjectName: "Island"},
				Polygons:   []orb.Polygon{rectPolygon(domain.GeoRect{Top: 59.55, Bottom: 59.45, Left: 18.45, Right: 18.55})},
			},
		},
	}
}

type chartSourceFixture struct {
	source  *ChartSource
	store   *mockStore
	decoder *mockDecoder
}

func newChartSourceFixture(t *testing.T) chartSourceFixture {
	t.Helper()
	return newChartSourceOnStore(t, newMockStore())
}

func newChartSourceOnStore(t *testing.T, store *mockStore, opts ...ChartSourceOption) chartSourceFixture {
	t.Helper()
	dir := writeCharts(t, "CELL.000")
	decoder := testDecoder()
	decoder.decoded = decodedTestChart()

	catalog, err := NewCatalog(context.Background(), dir, nil, testLogger(),
		WithDecoder(domain.CatalogUnencrypted, decoder))
	if err != nil {
		t.Fatal(err)
	}

	opts = append([]ChartSourceOption{WithSourceLogger(testLogger())}, opts...)
	src, err := NewChartSource(context.Background(), catalog, "CELL.000", store, jsonCodec{}, decoder, opts...)
	if err != nil {
		t.Fatalf("NewChartSource() error = %v", err)
	}
	return chartSourceFixture{source: src, store: store, decoder: decoder}
}

func tileKey(rect domain.GeoRect, ppl float64) output.CacheKey {
	return output.CacheKey{Namespace: "test", Chart: "CELL.000", Entry: domain.TileID(rect, int(ppl))}
}

func convertedKey() output.CacheKey {
	return output.CacheKey{Namespace: "test", Chart: "CELL.000", Entry: "all_5000"}
}

func TestNewChartSourceHeader(t *testing.T) {
	f := newChartSourceFixture(t)

	if f.source.Name() != "CELL.000" {
		t.Errorf("Name() = %q", f.source.Name())
	}
	if f.source.Scale() != 50000 {
		t.Errorf("Scale() = %d, want 50000", f.source.Scale())
	}
	if f.source.Extent() != testExtent {
		t.Errorf("Extent() = %v, want %v", f.source.Extent(), testExtent)
	}
	if f.source.Header().Name != "TEST" {
		t.Errorf("Header().Name = %q, want TEST", f.source.Header().Name)
	}
}

func TestNewChartSourceRejectsZeroScale(t *testing.T) {
	dir := writeCharts(t, "CELL.000")
	decoder := testDecoder()
	catalog, err := NewCatalog(context.Background(), dir, nil, testLogger(),
		WithDecoder(domain.CatalogUnencrypted, decoder))
	if err != nil {
		t.Fatal(err)
	}

	decoder.header.NativeScale = 0
	_, err = NewChartSource(context.Background(), catalog, "CELL.000", newMockStore(), jsonCodec{}, decoder)
	if !errors.Is(err, domain.ErrInvalidChart) {
		t.Errorf("error = %v, want ErrInvalidChart", err)
	}
}

func TestChartSourceCreate(t *testing.T) {
	f := newChartSourceFixture(t)

	chart, err := f.source.Create(context.Background(), testTile, testPPL)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if chart.NativeScale != 50000 || chart.BoundingBox != testExtent {
		t.Errorf("metadata = %d %v", chart.NativeScale, chart.BoundingBox)
	}
	if len(chart.Coverage) != 1 {
		t.Fatalf("len(Coverage) = %d, want 1", len(chart.Coverage))
	}
	bound := chart.Coverage[0].Polygons[0].Bound()
	if bound.Max[1] > testTile.Top+0.01 || bound.Min[0] < testTile.Left-0.01 {
		t.Errorf("coverage %v not clipped to the tile", bound)
	}
	if len(chart.LandAreas) != 1 || chart.LandAreas[0].Name != "Island" {
		t.Errorf("LandAreas = %+v", chart.LandAreas)
	}

	if f.store.putCount(tileKey(testTile, testPPL)) != 1 {
		t.Error("tile not written to the cache")
	}
	if f.store.putCount(convertedKey()) != 1 {
		t.Error("converted chart not written to the cache")
	}
}

func TestChartSourceEdgeModeKeepsSeparateEntries(t *testing.T) {
	store := newMockStore()
	extended := newChartSourceOnStore(t, store)
	tight := newChartSourceOnStore(t, store, WithMoveOutEdges(false))

	if _, err := extended.source.Create(context.Background(), testTile, testPPL); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := tight.source.Create(context.Background(), testTile, testPPL); err != nil {
		t.Fatalf("Create() without edge extension error = %v", err)
	}

	tightKey := tileKey(testTile, testPPL)
	tightKey.Entry += tightEntrySuffix
	if n := store.putCount(tileKey(testTile, testPPL)); n != 1 {
		t.Errorf("extended entry written %d times, want 1", n)
	}
	if n := store.putCount(tightKey); n != 1 {
		t.Errorf("tight entry written %d times, want 1; the extended fragment was reused", n)
	}
}

func TestChartSourceConcurrentCreate(t *testing.T) {
	f := newChartSourceFixture(t)
	const n = 8

	results := make([][]byte, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			chart, err := f.source.Create(context.Background(), testTile, testPPL)
			if err != nil {
				errs[i] = err
				return
			}
			results[i], errs[i] = json.Marshal(chart)
		}(i)
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("call %d error = %v", i, err)
		}
	}
	for i := 1; i < n; i++ {
		if !bytes.Equal(results[0], results[i]) {
			t.Errorf("call %d returned different data", i)
		}
	}

	if got := f.store.putCount(tileKey(testTile, testPPL)); got != 1 {
		t.Errorf("tile written %d times, want 1", got)
	}
	if got := f.decoder.decodes.Load(); got != 1 {
		t.Errorf("chart decoded %d times, want 1", got)
	}
	if got := f.source.inflight.Len(); got != 0 {
		t.Errorf("%d tile locks left behind", got)
	}
}

func TestChartSourceConvertsOncePerResolution(t *testing.T) {
	f := newChartSourceFixture(t)
	ctx := context.Background()
	other := domain.GeoRect{Top: 59.4, Bottom: 59.2, Left: 18.4, Right: 18.6}

	for _, rect := range []domain.GeoRect{testTile, other, testTile} {
		if _, err := f.source.Create(ctx, rect, testPPL); err != nil {
			t.Fatal(err)
		}
	}
	if got := f.decoder.decodes.Load(); got != 1 {
		t.Errorf("decodes at one resolution = %d, want 1", got)
	}
	if got := f.store.putCount(tileKey(testTile, testPPL)); got != 1 {
		t.Errorf("cached tile written %d times, want 1", got)
	}

	if _, err := f.source.Create(ctx, testTile, 2*testPPL); err != nil {
		t.Fatal(err)
	}
	if got := f.decoder.decodes.Load(); got != 2 {
		t.Errorf("decodes after a new resolution = %d, want 2", got)
	}
}

func TestChartSourceRegeneratesCorruptEntry(t *testing.T) {
	f := newChartSourceFixture(t)
	key := tileKey(testTile, testPPL)
	f.store.set(key, []byte("not a chart"))

	chart, err := f.source.Create(context.Background(), testTile, testPPL)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if chart == nil || len(chart.Coverage) == 0 {
		t.Fatal("Create() returned no data")
	}
	if f.store.putCount(key) != 1 {
		t.Error("corrupt entry was not replaced")
	}

	data, err := f.store.Get(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := (jsonCodec{}).Decode(data); err != nil {
		t.Errorf("replaced entry does not decode: %v", err)
	}
}

func TestChartSourceDecodeFailure(t *testing.T) {
	f := newChartSourceFixture(t)
	f.decoder.decodeErr = errors.New("truncated record")

	if _, err := f.source.Create(context.Background(), testTile, testPPL); err == nil {
		t.Fatal("Create() succeeded with a failing decoder")
	}
	if f.store.putCount(tileKey(testTile, testPPL)) != 0 {
		t.Error("failed generation wrote a tile")
	}
	if f.source.inflight.Len() != 0 {
		t.Error("tile lock left behind after failure")
	}
}

func TestChartSourceInvalidate(t *testing.T) {
	f := newChartSourceFixture(t)
	if _, err := f.source.Create(context.Background(), testTile, testPPL); err != nil {
		t.Fatal(err)
	}

	if err := f.source.Invalidate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if ok, _ := f.store.Exists(context.Background(), tileKey(testTile, testPPL)); ok {
		t.Error("tile still cached after Invalidate()")
	}
}

func TestClipConfigMargins(t *testing.T) {
	cfg := clipConfig(testTile, testPPL, true)

	if cfg.LongitudeMargin <= cfg.LongitudeResolution {
		t.Errorf("margin %v not wider than resolution %v", cfg.LongitudeMargin, cfg.LongitudeResolution)
	}
	wantLon := clipMarginPixels / testPPL
	if diff := cfg.LongitudeMargin - wantLon; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("LongitudeMargin = %v, want %v", cfg.LongitudeMargin, wantLon)
	}
	if cfg.LatitudeMargin <= 0 || cfg.LatitudeResolution <= 0 {
		t.Errorf("latitude measures = %v, %v", cfg.LatitudeMargin, cfg.LatitudeResolution)
	}
	if !cfg.MoveOutEdges {
		t.Error("MoveOutEdges not set")
	}
}
