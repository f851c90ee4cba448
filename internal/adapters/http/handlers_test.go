package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"

	"github.com/jobrunner/charttiler/internal/application"
	"github.com/jobrunner/charttiler/internal/config"
	"github.com/jobrunner/charttiler/internal/domain"
	"github.com/jobrunner/charttiler/internal/ports/input"
)

// mockTileService implements input.TileService for testing.
type mockTileService struct {
	mu sync.Mutex

	tiles   []domain.Tile
	charts  []*domain.Chart
	info    []domain.ChartInfo
	sources []domain.SourceInfo

	enableErr   error
	lastRect    domain.GeoRect
	lastPPL     float64
	enabled     map[string]bool
	allEnabled  *bool
	tileSetting map[string][]string
	listeners   []func(domain.Event)
	tilesCalls  int
}

func (m *mockTileService) Tiles(_ domain.Pos, _ float64, _, _ int) []domain.Tile {
	m.tilesCalls++
	return m.tiles
}

func (m *mockTileService) TileData(_ context.Context, rect domain.GeoRect, ppl float64) []*domain.Chart {
	m.lastRect, m.lastPPL = rect, ppl
	return m.charts
}

func (m *mockTileService) ChartInfo(domain.GeoRect, float64) []domain.ChartInfo {
	return m.info
}

func (m *mockTileService) Sources() []domain.SourceInfo {
	return m.sources
}

func (m *mockTileService) SetChartEnabled(name string, enabled bool) error {
	if m.enableErr != nil {
		return m.enableErr
	}
	if m.enabled == nil {
		m.enabled = make(map[string]bool)
	}
	m.enabled[name] = enabled
	return nil
}

func (m *mockTileService) SetAllChartsEnabled(enabled bool) []int {
	m.allEnabled = &enabled
	return []int{0, 1}
}

func (m *mockTileService) SetTileSettings(tileID string, disabledCharts []string) {
	if m.tileSetting == nil {
		m.tileSetting = make(map[string][]string)
	}
	m.tileSetting[tileID] = disabledCharts
}

func (m *mockTileService) Subscribe(fn func(domain.Event)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
	return func() {}
}

func (m *mockTileService) publish(e domain.Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, fn := range m.listeners {
		fn(e)
	}
	return len(m.listeners) > 0
}

// mockRegistry implements input.ChartRegistry for testing.
type mockRegistry struct {
	dirs      []input.DirectoryStatus
	loadErr   error
	unloadErr error
	loaded    []string
	unloaded  []string
}

func (m *mockRegistry) Directories() []input.DirectoryStatus { return m.dirs }

func (m *mockRegistry) LoadDirectory(_ context.Context, dir string) error {
	m.loaded = append(m.loaded, dir)
	return m.loadErr
}

func (m *mockRegistry) UnloadDirectory(_ context.Context, dir string) error {
	m.unloaded = append(m.unloaded, dir)
	return m.unloadErr
}

func (m *mockRegistry) SourceCount() int { return len(m.dirs) }

// mockHealthService implements input.HealthChecker for testing.
type mockHealthService struct {
	healthy bool
	ready   bool
}

func (m *mockHealthService) IsHealthy(_ context.Context) bool {
	return m.healthy
}

func (m *mockHealthService) IsReady(_ context.Context) bool {
	return m.ready
}

func (m *mockHealthService) GetHealthDetails(_ context.Context) input.HealthDetails {
	return input.HealthDetails{
		Healthy:       m.healthy,
		Ready:         m.ready,
		SourcesLoaded: 3,
		Components:    map[string]string{"charts": "ok"},
	}
}

// mockSync implements SyncTrigger for testing.
type mockSync struct {
	result     application.SyncResult
	err        error
	retryAfter time.Duration
}

func (m *mockSync) TriggerSync(context.Context) (application.SyncResult, error) {
	return m.result, m.err
}

func (m *mockSync) RetryAfter() time.Duration { return m.retryAfter }

type testServer struct {
	*Server
	tiles    *mockTileService
	registry *mockRegistry
	health   *mockHealthService
}

func newTestServer(t *testing.T, trigger SyncTrigger) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ts := &testServer{
		tiles:    &mockTileService{},
		registry: &mockRegistry{},
		health:   &mockHealthService{healthy: true, ready: true},
	}
	ts.Server = NewServer(
		config.ServerConfig{
			Host:          "localhost",
			Port:          8080,
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			ViewerEnabled: true,
		},
		Services{Tiles: ts.tiles, Registry: ts.registry, Health: ts.health, Sync: trigger},
		"",
		logger,
	)
	return ts
}

func (ts *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rr := httptest.NewRecorder()
	ts.Router().ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v: %s", err, rr.Body.String())
	}
	return body
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name       string
		healthy    bool
		wantStatus int
		wantText   string
	}{
		{"healthy", true, http.StatusOK, "ok"},
		{"unhealthy", false, http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			ts.health.healthy = tt.healthy

			rr := ts.do(http.MethodGet, "/health", "")
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			body := decodeBody(t, rr)
			if body["status"] != tt.wantText {
				t.Errorf("status field = %v, want %q", body["status"], tt.wantText)
			}
			if body["sources_loaded"] != float64(3) {
				t.Errorf("sources_loaded = %v, want 3", body["sources_loaded"])
			}
		})
	}
}

func TestHandleLivenessAndReadiness(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		healthy    bool
		ready      bool
		wantStatus int
	}{
		{"live", "/health/live", true, false, http.StatusOK},
		{"not live", "/health/live", false, false, http.StatusServiceUnavailable},
		{"ready", "/health/ready", true, true, http.StatusOK},
		{"not ready", "/health/ready", true, false, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			ts.health.healthy, ts.health.ready = tt.healthy, tt.ready

			if rr := ts.do(http.MethodGet, tt.path, ""); rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}
}

func TestHandleTiles(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
	}{
		{"valid", "lat=54.5&lon=10.2&ppl=5000&width=800&height=600", http.StatusOK},
		{"missing lat", "lon=10.2&ppl=5000&width=800&height=600", http.StatusBadRequest},
		{"invalid lon", "lat=54.5&lon=east&ppl=5000&width=800&height=600", http.StatusBadRequest},
		{"latitude out of range", "lat=95&lon=10.2&ppl=5000&width=800&height=600", http.StatusBadRequest},
		{"zero ppl", "lat=54.5&lon=10.2&ppl=0&width=800&height=600", http.StatusBadRequest},
		{"negative width", "lat=54.5&lon=10.2&ppl=5000&width=-1&height=600", http.StatusBadRequest},
		{"missing height", "lat=54.5&lon=10.2&ppl=5000&width=800", http.StatusBadRequest},
		{"largest viewport", "lat=54.5&lon=10.2&ppl=5000&width=16384&height=16384", http.StatusOK},
		{"width above limit", "lat=54.5&lon=10.2&ppl=5000&width=16385&height=600", http.StatusBadRequest},
		{"huge height", "lat=0&lon=0&ppl=2912&width=800&height=100000000", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			ts.tiles.tiles = []domain.Tile{{ID: "abc", MaxPixelsPerLongitude: 5000}}

			rr := ts.do(http.MethodGet, "/api/v1/tiles?"+tt.query, "")
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if tt.wantStatus == http.StatusOK {
				if body := decodeBody(t, rr); body["count"] != float64(1) {
					t.Errorf("count = %v, want 1", body["count"])
				}
			}
		})
	}
}

func TestHandleTilesRejectsLargeViewport(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.tiles.tiles = []domain.Tile{{ID: "abc"}}

	rr := ts.do(http.MethodGet, "/api/v1/tiles?lat=0&lon=0&ppl=2912&width=100000000&height=100000000", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if msg := decodeBody(t, rr)["message"]; msg != "width must not exceed 16384 pixels" {
		t.Errorf("message = %v", msg)
	}
	if ts.tiles.tilesCalls != 0 {
		t.Errorf("Tiles called %d times for a rejected viewport", ts.tiles.tilesCalls)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		wantStatus int
	}{
		{"api route", http.MethodPatch, "/api/v1/charts", http.StatusMethodNotAllowed},
		{"api route with variable", http.MethodGet, "/api/v1/charts/A.000/enabled", http.StatusMethodNotAllowed},
		{"plain options", http.MethodOptions, "/api/v1/directories", http.StatusMethodNotAllowed},
		{"root route", http.MethodDelete, "/health", http.StatusMethodNotAllowed},
		{"unknown api route", http.MethodGet, "/api/v1/nothing", http.StatusNotFound},
	}

	ts := newTestServer(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := ts.do(tt.method, tt.target, "")
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if tt.wantStatus == http.StatusMethodNotAllowed {
				if body := decodeBody(t, rr); body["error"] != http.StatusText(http.StatusMethodNotAllowed) {
					t.Errorf("error = %v", body["error"])
				}
			}
		})
	}
}

func testChart() *domain.Chart {
	square := orb.Polygon{{{10, 54}, {10.5, 54}, {10.5, 54.5}, {10, 54.5}, {10, 54}}}
	return &domain.Chart{
		Name:        "DE421010.000",
		NativeScale: 22000,
		BoundingBox: domain.GeoRect{Top: 54.5, Bottom: 54, Left: 10, Right: 10.5},
		Coverage:    []domain.CoverageArea{{Polygons: []orb.Polygon{square}}},
		LandAreas:   []domain.NamedArea{{Name: "Fehmarn", Polygons: []orb.Polygon{square}, Centroid: orb.Point{10.25, 54.25}}},
		Soundings:   []domain.Sounding{{Position: orb.Point{10.1, 54.3}, Depth: 7.5}},
		LateralBuoys: []domain.LateralBuoy{{
			Name:     "K1",
			Colors:   []domain.Color{domain.ColorRed, domain.ColorWhite},
			Position: orb.Point{10.2, 54.2},
		}},
	}
}

func TestHandleTileData(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.tiles.charts = []*domain.Chart{testChart()}

	rr := ts.do(http.MethodGet, "/api/v1/tiles/data?top=54.5&bottom=54&left=10&right=10.5&ppl=2000", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if ts.tiles.lastPPL != 2000 || ts.tiles.lastRect.Top != 54.5 {
		t.Errorf("TileData called with %v, %v", ts.tiles.lastRect, ts.tiles.lastPPL)
	}

	var fc struct {
		Features []struct {
			Properties map[string]interface{} `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &fc); err != nil {
		t.Fatal(err)
	}
	layers := make(map[string]int)
	for _, f := range fc.Features {
		layers[f.Properties["layer"].(string)]++
		if f.Properties["chart"] != "DE421010.000" {
			t.Errorf("feature without chart name: %v", f.Properties)
		}
	}
	want := map[string]int{layerCoverage: 1, layerLand: 1, layerLabels: 1, layerSoundings: 1, layerBuoys: 1}
	for layer, n := range want {
		if layers[layer] != n {
			t.Errorf("layer %s has %d features, want %d", layer, layers[layer], n)
		}
	}
}

func TestHandleTileDataInvalid(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"missing right", "top=54.5&bottom=54&left=10&ppl=2000"},
		{"inverted", "top=54&bottom=54.5&left=10&right=10.5&ppl=2000"},
		{"zero ppl", "top=54.5&bottom=54&left=10&right=10.5&ppl=0"},
		{"nan", "top=NaN&bottom=54&left=10&right=10.5&ppl=2000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			rr := ts.do(http.MethodGet, "/api/v1/tiles/data?"+tt.query, "")
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestHandleVectorTile(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.tiles.charts = []*domain.Chart{testChart()}
	original := testChart().LateralBuoys[0].Position

	// Zoom 8 tile holding 54.25N 10.25E.
	rr := ts.do(http.MethodGet, "/api/v1/tiles/8/135/81.mvt", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Content-Encoding") != "gzip" {
		t.Error("tile is not gzip encoded")
	}
	if ts.tiles.lastPPL != float64(domain.MaxPixelsPerLongitude(8)) {
		t.Errorf("ppl = %v, want %d", ts.tiles.lastPPL, domain.MaxPixelsPerLongitude(8))
	}

	layers, err := mvt.UnmarshalGzipped(rr.Body.Bytes())
	if err != nil {
		t.Fatalf("mvt.UnmarshalGzipped() error = %v", err)
	}
	names := make(map[string]bool)
	for _, l := range layers {
		names[l.Name] = true
	}
	for _, want := range []string{layerSoundings, layerBuoys, layerLand} {
		if !names[want] {
			t.Errorf("layer %s missing, got %v", want, names)
		}
	}

	if got := ts.tiles.charts[0].LateralBuoys[0].Position; got != original {
		t.Errorf("chart geometry was modified: %v", got)
	}
}

func TestHandleVectorTileInvalid(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"zoom too deep", "/api/v1/tiles/24/0/0.mvt"},
		{"x outside zoom", "/api/v1/tiles/2/4/0.mvt"},
		{"y outside zoom", "/api/v1/tiles/0/0/1.mvt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			if rr := ts.do(http.MethodGet, tt.path, ""); rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestHandleTileSettings(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := ts.do(http.MethodPut, "/api/v1/tiles/0123abcd/settings", `{"disabledCharts":["A.000","B.000"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := ts.tiles.tileSetting["0123abcd"]; len(got) != 2 || got[1] != "B.000" {
		t.Errorf("tile settings = %v", got)
	}

	if rr := ts.do(http.MethodPut, "/api/v1/tiles/0123abcd/settings", `{`); rr.Code != http.StatusBadRequest {
		t.Errorf("broken body status = %d, want 400", rr.Code)
	}
}

func TestHandleListCharts(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.tiles.sources = []domain.SourceInfo{
		{Name: "A.000", NativeScale: 12000, Enabled: true},
		{Name: "B.000", NativeScale: 90000, Enabled: false},
	}

	rr := ts.do(http.MethodGet, "/api/v1/charts", "")
	body := decodeBody(t, rr)
	if body["count"] != float64(2) || body["enabled"] != float64(1) {
		t.Errorf("count = %v, enabled = %v", body["count"], body["enabled"])
	}
}

func TestHandleChartInfo(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.tiles.info = []domain.ChartInfo{{Name: "A.000", NativeScale: 12000, EnabledForTile: true}}

	rr := ts.do(http.MethodGet, "/api/v1/charts/info?top=1&bottom=0&left=0&right=1&ppl=100", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["count"] != float64(1) {
		t.Errorf("count = %v", body["count"])
	}
}

func TestHandleEnableChart(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		enableErr  error
		wantStatus int
	}{
		{"disable", `{"enabled":false}`, nil, http.StatusOK},
		{"missing field", `{}`, nil, http.StatusBadRequest},
		{"broken body", `{"enabled":`, nil, http.StatusBadRequest},
		{"unknown chart", `{"enabled":true}`, domain.ErrChartNotFound, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			ts.tiles.enableErr = tt.enableErr

			rr := ts.do(http.MethodPut, "/api/v1/charts/A.000/enabled", tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK {
				if enabled, ok := ts.tiles.enabled["A.000"]; !ok || enabled {
					t.Errorf("chart state = %v, %v", enabled, ok)
				}
			}
		})
	}
}

func TestHandleEnableAllCharts(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := ts.do(http.MethodPut, "/api/v1/charts/enabled", `{"enabled":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ts.tiles.allEnabled == nil || !*ts.tiles.allEnabled {
		t.Error("SetAllChartsEnabled(true) not called")
	}
	if body := decodeBody(t, rr); body["changed"] != float64(2) {
		t.Errorf("changed = %v, want 2", body["changed"])
	}
}

func TestHandleDirectories(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.registry.dirs = []input.DirectoryStatus{{Path: "/charts/baltic", Charts: 4}}

	rr := ts.do(http.MethodGet, "/api/v1/directories", "")
	if body := decodeBody(t, rr); body["count"] != float64(1) {
		t.Errorf("count = %v", body["count"])
	}

	rr = ts.do(http.MethodPost, "/api/v1/directories", `{"path":"/charts/north"}`)
	if rr.Code != http.StatusOK || len(ts.registry.loaded) != 1 || ts.registry.loaded[0] != "/charts/north" {
		t.Errorf("load: status = %d, loaded = %v", rr.Code, ts.registry.loaded)
	}
	if rr := ts.do(http.MethodPost, "/api/v1/directories", `{}`); rr.Code != http.StatusBadRequest {
		t.Errorf("load without path: status = %d", rr.Code)
	}

	rr = ts.do(http.MethodDelete, "/api/v1/directories?path=/charts/north", "")
	if rr.Code != http.StatusNoContent || len(ts.registry.unloaded) != 1 {
		t.Errorf("unload: status = %d, unloaded = %v", rr.Code, ts.registry.unloaded)
	}

	ts.registry.unloadErr = domain.ErrDirectoryNotFound
	if rr := ts.do(http.MethodDelete, "/api/v1/directories?path=/nowhere", ""); rr.Code != http.StatusNotFound {
		t.Errorf("unload unknown: status = %d, want 404", rr.Code)
	}
	if rr := ts.do(http.MethodDelete, "/api/v1/directories", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("unload without path: status = %d, want 400", rr.Code)
	}
}

func TestHandleEvents(t *testing.T) {
	ts := newTestServer(t, nil)
	srv := httptest.NewServer(ts.Router())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("Content-Type = %q", ct)
	}

	// Headers are flushed after the subscription is in place.
	if !ts.tiles.publish(domain.Event{Kind: domain.EventTileDataChanged, TileIDs: []string{"t1"}}) {
		t.Fatal("handler did not subscribe")
	}

	line, err := bufio.NewReader(resp.Body).ReadBytes('\n')
	if err != nil {
		t.Fatal(err)
	}
	var e domain.Event
	if err := json.Unmarshal(line, &e); err != nil {
		t.Fatal(err)
	}
	if e.Kind != domain.EventTileDataChanged || len(e.TileIDs) != 1 || e.TileIDs[0] != "t1" {
		t.Errorf("event = %+v", e)
	}
}

func TestHandleSync(t *testing.T) {
	tests := []struct {
		name       string
		sync       *mockSync
		wantStatus int
		wantRetry  string
	}{
		{"synced", &mockSync{result: application.SyncResult{ChartsAdded: 2}}, http.StatusOK, ""},
		{
			"rate limited",
			&mockSync{err: application.ErrRateLimited, retryAfter: 12500 * time.Millisecond},
			http.StatusTooManyRequests,
			"13",
		},
		{"failed", &mockSync{err: errors.New("bucket gone")}, http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.sync)

			rr := ts.do(http.MethodPost, "/api/v1/sync", "")
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if got := rr.Header().Get("Retry-After"); got != tt.wantRetry {
				t.Errorf("Retry-After = %q, want %q", got, tt.wantRetry)
			}
		})
	}
}

func TestSyncRouteRequiresService(t *testing.T) {
	ts := newTestServer(t, nil)
	if rr := ts.do(http.MethodPost, "/api/v1/sync", ""); rr.Code == http.StatusOK {
		t.Error("sync route served without a sync service")
	}
}

func TestHandleOpenAPI(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := ts.do(http.MethodGet, "/openapi.json", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	paths, ok := body["paths"].(map[string]interface{})
	if !ok {
		t.Fatal("paths missing")
	}
	if _, ok := paths["/api/v1/tiles/{z}/{x}/{y}.mvt"]; !ok {
		t.Error("vector tile path not documented")
	}
}

func TestOpenAPIDocument_Version(t *testing.T) {
	tests := []struct {
		name    string
		version string
		want    string
	}{
		{"build version", "v1.4.2", "v1.4.2"},
		{"unset keeps document version", "", "1.0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := openAPIDocument(tt.version)
			if err != nil {
				t.Fatalf("openAPIDocument() error = %v", err)
			}
			var doc struct {
				Info struct {
					Version string `json:"version"`
				} `json:"info"`
			}
			if err := json.Unmarshal(raw, &doc); err != nil {
				t.Fatalf("document is not JSON: %v", err)
			}
			if doc.Info.Version != tt.want {
				t.Errorf("info.version = %q, want %q", doc.Info.Version, tt.want)
			}
		})
	}
}

func TestJSONKeys(t *testing.T) {
	in := map[string]any{
		"responses": map[any]any{200: "ok", "404": []any{map[any]any{true: 1}}},
	}
	out, err := json.Marshal(jsonKeys(in))
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	want := `{"responses":{"200":"ok","404":[{"true":1}]}}`
	if string(out) != want {
		t.Errorf("got %s, want %s", out, want)
	}
}

func TestHandleViewer(t *testing.T) {
	ts := newTestServer(t, nil)

	rr := ts.do(http.MethodGet, "/", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "/api/v1/tiles/{z}/{x}/{y}.mvt") {
		t.Error("viewer does not reference the tile endpoint")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.Router().HandleFunc("/panic", func(http.ResponseWriter, *http.Request) { panic("boom") })

	if rr := ts.do(http.MethodGet, "/panic", ""); rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
}

func TestBoolToStatus(t *testing.T) {
	if boolToStatus(true) != "ok" || boolToStatus(false) != "unhealthy" {
		t.Error("boolToStatus mapping changed")
	}
}
