package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/jobrunner/charttiler/internal/domain"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("failed to create dir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to create file: %v", err)
		}
	}
}

func TestKeyHelpers(t *testing.T) {
	if got := relativeKey("charts/enc/a.000", "charts"); got != "enc/a.000" {
		t.Errorf("relativeKey() = %q", got)
	}
	if got := joinKey("charts/", "a.000"); got != "charts/a.000" {
		t.Errorf("joinKey() = %q", got)
	}
	if got := joinKey("", "a.000"); got != "a.000" {
		t.Errorf("joinKey() without prefix = %q", got)
	}
}

func TestLocalStorageList(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{
		"SE4ABC01.000":        "test",
		"SE5DEF02.000":        "test",
		"oesu/FI5XYZ.oesu":    "test",
		"oesu/Chartinfo.txt":  "test",
		"ignored.txt":         "test",
		"SE4ABC01.001":        "test",
		"also_ignored.sqlite": "test",
	})

	storage := NewLocalStorage(tmpDir)
	objects, err := storage.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	var keys []string
	for _, obj := range objects {
		keys = append(keys, obj.Key)
		if obj.Size != 4 {
			t.Errorf("object %q size = %d, want 4", obj.Key, obj.Size)
		}
		if obj.LastModified.IsZero() {
			t.Errorf("object %q has no modification time", obj.Key)
		}
	}
	sort.Strings(keys)

	want := []string{"SE4ABC01.000", "SE5DEF02.000", "oesu/Chartinfo.txt", "oesu/FI5XYZ.oesu"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestLocalStorageListNonExistent(t *testing.T) {
	storage := NewLocalStorage("/nonexistent/path")
	_, err := storage.List(context.Background())

	var storageErr *domain.StorageError
	if !errors.As(err, &storageErr) {
		t.Errorf("List() error = %v, want StorageError", err)
	}
}

func TestLocalStorageExists(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{"exists.000": "test"})
	storage := NewLocalStorage(tmpDir)

	tests := []struct {
		name string
		key  string
		want bool
	}{
		{"existing file", "exists.000", true},
		{"non-existing file", "nonexistent.000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exists, err := storage.Exists(context.Background(), tt.key)
			if err != nil {
				t.Errorf("Exists() error = %v", err)
			}
			if exists != tt.want {
				t.Errorf("Exists() = %v, want %v", exists, tt.want)
			}
		})
	}
}

func TestLocalStorageDownload(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()
	writeTree(t, srcDir, map[string]string{"source.000": "test content for download"})

	storage := NewLocalStorage(srcDir)
	destFile := filepath.Join(destDir, "nested", "deep", "dest.000")

	if err := storage.Download(context.Background(), "source.000", destFile); err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	content, err := os.ReadFile(destFile)
	if err != nil {
		t.Fatalf("failed to read dest file: %v", err)
	}
	if string(content) != "test content for download" {
		t.Errorf("content = %q", string(content))
	}

	entries, _ := os.ReadDir(filepath.Dir(destFile))
	if len(entries) != 1 {
		t.Errorf("dest dir holds %d entries, want only the download", len(entries))
	}
}

func TestLocalStorageDownloadKeepsModTime(t *testing.T) {
	srcDir := t.TempDir()
	writeTree(t, srcDir, map[string]string{"enc/DE421010.000": "cell"})
	published := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := os.Chtimes(filepath.Join(srcDir, "enc", "DE421010.000"), published, published); err != nil {
		t.Fatal(err)
	}

	storage := NewLocalStorage(srcDir)
	objects, err := storage.List(context.Background())
	if err != nil || len(objects) != 1 {
		t.Fatalf("List() = %v, %v", objects, err)
	}

	dest := filepath.Join(t.TempDir(), "DE421010.000")
	if err := storage.Download(context.Background(), objects[0].Key, dest); err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	info, err := os.Stat(dest)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(published) {
		t.Errorf("mod time = %v, want %v", info.ModTime(), published)
	}
	if objects[0].Stale(info.Size(), info.ModTime()) {
		t.Error("freshly downloaded copy reported stale")
	}
}

func TestLocalStorageDownloadSameFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{"test.000": "test"})
	storage := NewLocalStorage(tmpDir)

	err := storage.Download(context.Background(), "test.000", filepath.Join(tmpDir, "test.000"))
	if err != nil {
		t.Errorf("Download() to same location should not error, got: %v", err)
	}
}

func TestLocalStorageDownloadNonExistent(t *testing.T) {
	storage := NewLocalStorage(t.TempDir())
	err := storage.Download(context.Background(), "nonexistent.000", filepath.Join(t.TempDir(), "dest.000"))
	if !errors.Is(err, os.ErrNotExist) || !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Download() error = %v, want ErrNotExist and ErrNotFound", err)
	}
}

func TestLocalStorageFullPath(t *testing.T) {
	storage := NewLocalStorage("/data/charts")

	tests := []struct {
		key  string
		want string
	}{
		{"a.000", "/data/charts/a.000"},
		{"enc/b.000", "/data/charts/enc/b.000"},
		{"", "/data/charts"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := storage.FullPath(tt.key); got != tt.want {
				t.Errorf("FullPath(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestHTTPStorage(t *testing.T) {
	published := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/index.txt":
			w.Header().Set("Last-Modified", published.Format(http.TimeFormat))
			_, _ = w.Write([]byte("# charts\n\nenc/A.000   4\nreadme.md\n/enc/Chartinfo.txt\n"))
		case "/enc/A.000":
			w.Header().Set("Last-Modified", published.Format(http.TimeFormat))
			_, _ = w.Write([]byte("cell"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	storage := NewHTTPStorage(HTTPConfig{BaseURL: srv.URL + "/"})
	ctx := context.Background()

	objects, err := storage.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(objects) != 2 || objects[0].Key != "enc/A.000" || objects[1].Key != "enc/Chartinfo.txt" {
		t.Fatalf("List() = %+v", objects)
	}
	if objects[0].Size != 4 || !objects[0].LastModified.IsZero() {
		t.Errorf("sized entry = %+v", objects[0])
	}
	if objects[1].Size != -1 || !objects[1].LastModified.Equal(published) {
		t.Errorf("unsized entry = %+v", objects[1])
	}

	if ok, err := storage.Exists(ctx, "enc/A.000"); err != nil || !ok {
		t.Errorf("Exists(A.000) = %v, %v", ok, err)
	}
	if ok, err := storage.Exists(ctx, "enc/B.000"); err != nil || ok {
		t.Errorf("Exists(B.000) = %v, %v", ok, err)
	}

	dest := filepath.Join(t.TempDir(), "A.000")
	if err := storage.Download(ctx, "enc/A.000", dest); err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if b, _ := os.ReadFile(dest); string(b) != "cell" {
		t.Errorf("downloaded %q", b)
	}
	if info, err := os.Stat(dest); err != nil || !info.ModTime().Equal(published) {
		t.Errorf("downloaded mod time = %v, %v", info, err)
	}

	if _, err := storage.Open(ctx, "enc/B.000"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Open(missing) error = %v, want ErrNotFound", err)
	}
}

func TestHTTPStorageInvalidIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("enc/A.000 big\n"))
	}))
	defer srv.Close()

	_, err := NewHTTPStorage(HTTPConfig{BaseURL: srv.URL}).List(context.Background())
	var storageErr *domain.StorageError
	if !errors.As(err, &storageErr) || storageErr.Operation != "list" {
		t.Errorf("List() error = %v, want list StorageError", err)
	}
}
