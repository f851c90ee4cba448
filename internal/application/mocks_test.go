package application

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/paulmach/orb"

	"github.com/jobrunner/charttiler/internal/domain"
	"github.com/jobrunner/charttiler/internal/ports/output"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockStore implements output.CacheStore in memory and counts writes.
type mockStore struct {
	mu          sync.Mutex
	entries     map[string][]byte
	puts        map[string]int
	deleted     []string
	writableErr error
}

func newMockStore() *mockStore {
	return &mockStore{entries: make(map[string][]byte), puts: make(map[string]int)}
}

func (m *mockStore) Get(_ context.Context, key output.CacheKey) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.entries[key.String()]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, domain.ErrCacheMiss)
	}
	return bytes.Clone(data), nil
}

func (m *mockStore) Put(_ context.Context, key output.CacheKey, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key.String()] = bytes.Clone(data)
	m.puts[key.String()]++
	return nil
}

func (m *mockStore) Exists(_ context.Context, key output.CacheKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key.String()]
	return ok, nil
}

func (m *mockStore) Delete(_ context.Context, key output.CacheKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key.String())
	return nil
}

func (m *mockStore) DeleteChart(_ context.Context, namespace, chart string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := namespace + "/" + chart + "/"
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
	m.deleted = append(m.deleted, chart)
	return nil
}

func (m *mockStore) Writable(_ context.Context) error { return m.writableErr }

func (m *mockStore) Close() error { return nil }

func (m *mockStore) putCount(key output.CacheKey) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts[key.String()]
}

func (m *mockStore) set(key output.CacheKey, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key.String()] = data
}

// jsonCodec implements output.ChartCodec with JSON.
type jsonCodec struct{}

func (jsonCodec) Encode(chart *domain.Chart) ([]byte, error) { return json.Marshal(chart) }

func (jsonCodec) Decode(data []byte) (*domain.Chart, error) {
	var c domain.Chart
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCacheCorrupt, err)
	}
	return &c, nil
}

func (jsonCodec) Namespace() string { return "test" }

// mockDecoder implements output.ChartDecoder with fixed results.
type mockDecoder struct {
	header    domain.ChartHeader
	decoded   *domain.DecodedChart
	headerErr error
	decodeErr error
	decodes   atomic.Int32
}

func (m *mockDecoder) ReadHeader(_ context.Context, r io.Reader) (*domain.ChartHeader, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return nil, err
	}
	if m.headerErr != nil {
		return nil, m.headerErr
	}
	h := m.header
	return &h, nil
}

func (m *mockDecoder) Decode(_ context.Context, r io.Reader) (*domain.DecodedChart, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return nil, err
	}
	m.decodes.Add(1)
	if m.decodeErr != nil {
		return nil, m.decodeErr
	}
	return m.decoded, nil
}

// mockChannel implements output.DecryptChannel serving files from disk.
type mockChannel struct {
	ready    bool
	mu       sync.Mutex
	requests []output.DecryptRequest
}

func (m *mockChannel) Ready(_ context.Context) bool { return m.ready }

func (m *mockChannel) Open(_ context.Context, req output.DecryptRequest) (io.ReadCloser, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return os.Open(req.Path)
}

// mockStorage implements output.ObjectStorage backed by a map.
type mockStorage struct {
	objects     map[string][]byte
	downloadErr error
	listErr     error
}

func (m *mockStorage) List(_ context.Context) ([]output.StorageObject, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]output.StorageObject, 0, len(m.objects))
	for key, data := range m.objects {
		out = append(out, output.StorageObject{Key: key, Size: int64(len(data))})
	}
	return out, nil
}

func (m *mockStorage) Download(_ context.Context, key, dest string) error {
	if m.downloadErr != nil {
		return m.downloadErr
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return err
	}
	return os.WriteFile(dest, m.objects[key], 0o600)
}

func (m *mockStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *mockStorage) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.objects[key]
	return ok, nil
}

// fakeSource implements FragmentSource with a fixed fragment.
type fakeSource struct {
	name     string
	scale    int
	extent   domain.GeoRect
	coverage domain.GeoRect
	err      error
	calls    atomic.Int32
}

func (f *fakeSource) Name() string           { return f.name }
func (f *fakeSource) Scale() int             { return f.scale }
func (f *fakeSource) Extent() domain.GeoRect { return f.extent }

func (f *fakeSource) Create(_ context.Context, rect domain.GeoRect, _ float64) (*domain.Chart, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	chart := &domain.Chart{Name: f.name, NativeScale: f.scale, BoundingBox: f.extent}
	if c := f.coverage.Intersection(rect); !c.IsZero() {
		chart.Coverage = []domain.CoverageArea{{Polygons: []orb.Polygon{rectPolygon(c)}}}
	}
	return chart, nil
}

func rectPolygon(r domain.GeoRect) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{r.Left, r.Bottom}, {r.Right, r.Bottom}, {r.Right, r.Top}, {r.Left, r.Top}, {r.Left, r.Bottom},
	}}
}

// writeCharts creates empty chart files in a new directory.
func writeCharts(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("chart "+name), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}
