// Package app provides application initialization and wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/jobrunner/charttiler/internal/adapters/cache"
	"github.com/jobrunner/charttiler/internal/adapters/codec"
	"github.com/jobrunner/charttiler/internal/adapters/decrypt"
	httpAdapter "github.com/jobrunner/charttiler/internal/adapters/http"
	"github.com/jobrunner/charttiler/internal/adapters/metrics"
	"github.com/jobrunner/charttiler/internal/adapters/s57"
	"github.com/jobrunner/charttiler/internal/adapters/storage"
	tlsAdapter "github.com/jobrunner/charttiler/internal/adapters/tls"
	"github.com/jobrunner/charttiler/internal/adapters/watcher"
	"github.com/jobrunner/charttiler/internal/application"
	"github.com/jobrunner/charttiler/internal/config"
	"github.com/jobrunner/charttiler/internal/domain"
	"github.com/jobrunner/charttiler/internal/ports/output"
)

// App holds all application components.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Metrics       *metrics.Collector
	Cache         output.CacheStore
	Storage       output.ObjectStorage
	Factory       *application.TileFactory
	Registry      *application.ChartRegistry
	SyncService   *application.SyncService
	HealthService *application.HealthService
	Seeder        *application.Seeder
	HTTPServer    *httpAdapter.Server
	TLS           *tlsAdapter.Manager
	Watcher       *watcher.Watcher

	unsubscribe func()
}

// New creates and initializes a new application.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize metrics
	var metricsCollector output.MetricsCollector = &output.NoOpMetrics{}
	if cfg.Metrics.Enabled {
		app.Metrics = metrics.NewCollector("charttiler", nil)
		metricsCollector = app.Metrics
	}

	// Initialize fragment cache
	store, err := initCache(ctx, cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("initializing cache: %w", err)
	}
	app.Cache = store

	chartCodec, err := codec.New()
	if err != nil {
		return nil, fmt.Errorf("initializing chart codec: %w", err)
	}

	// The decrypt channel is only needed for encrypted catalogs.
	var channel output.DecryptChannel
	if cfg.Decrypt.Enabled {
		channel = decrypt.NewClient(decrypt.Config{
			SocketPath:  cfg.Decrypt.Socket,
			KeyLength:   cfg.Decrypt.KeyLength,
			IdleTimeout: cfg.Decrypt.IdleTimeout,
		}, logger)
	}

	// Initialize storage adapter
	if cfg.Storage.Enabled() {
		objStorage, err := initStorage(ctx, cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("initializing storage: %w", err)
		}
		app.Storage = objStorage
	}

	visibility, err := application.NewVisibilityStore(cfg.Charts.VisibilityFile)
	if err != nil {
		return nil, fmt.Errorf("loading visible charts: %w", err)
	}

	tempDir := filepath.Join(cfg.Cache.Dir, "tmp")
	if err := ensureDir(tempDir); err != nil {
		return nil, fmt.Errorf("creating temp directory: %w", err)
	}

	app.Factory = application.NewTileFactory(logger, application.WithFactoryMetrics(metricsCollector))

	mirrorPath := ""
	if app.Storage != nil {
		mirrorPath = absPath(cfg.Storage.MirrorPath)
	}
	app.Registry = application.NewChartRegistry(
		app.Factory,
		application.RegistryConfig{
			Channel: channel,
			// FormatA and FormatB decoders plug in here. Without one those
			// catalogs read headers through the channel but serve no charts.
			Decoders: map[domain.CatalogType]output.ChartDecoder{
				domain.CatalogUnencrypted: s57.NewDecoder(tempDir, logger),
			},
			Store:         store,
			Codec:         chartCodec,
			Storage:       app.Storage,
			MirrorPath:    mirrorPath,
			Visibility:    visibility,
			StrictStreams: cfg.Decrypt.StrictStreams,
			MoveOutEdges:  cfg.Cache.MoveOutEdges,
		},
		metricsCollector,
		logger,
	)
	app.Registry.SetProgressFunc(func(dir string, fraction float64) {
		logger.Debug("loading charts", "dir", dir, "progress", fraction)
	})

	// Initialize sync service if a chart mirror is configured
	var syncTrigger httpAdapter.SyncTrigger
	if app.Storage != nil {
		app.SyncService = application.NewSyncService(
			app.Registry,
			cfg.Sync.Interval,
			cfg.Sync.Cooldown,
			metricsCollector,
			logger,
		)
		syncTrigger = app.SyncService
	}

	app.HealthService = application.NewHealthService(app.Registry, store)
	app.Seeder = application.NewSeeder(app.Factory, nil, cfg.Seed.Workers, logger)

	// Initialize HTTP server
	app.HTTPServer = httpAdapter.NewServer(
		cfg.Server,
		httpAdapter.Services{
			Tiles:    app.Factory,
			Registry: app.Registry,
			Health:   app.HealthService,
			Sync:     syncTrigger,
			Metrics:  app.Metrics,
			Version:  cfg.Version,
		},
		cfg.Metrics.Path,
		logger,
	)

	// Initialize TLS if enabled
	if cfg.TLS.Enabled {
		manager, err := tlsAdapter.NewManager(tlsAdapter.Config{
			Domains:  cfg.TLS.Domains,
			Email:    cfg.TLS.Email,
			CacheDir: cfg.TLS.CacheDir,
			Staging:  cfg.TLS.Staging,
			DNS: tlsAdapter.DNSConfig{
				SubscriptionID:    cfg.TLS.DNS.SubscriptionID,
				ResourceGroupName: cfg.TLS.DNS.ResourceGroupName,
				ClientID:          cfg.TLS.DNS.ClientID,
			},
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("initializing TLS: %w", err)
		}
		app.TLS = manager
	}

	// Initialize file watcher for hot-reload
	if cfg.Charts.Watch {
		w, err := watcher.New(
			watcher.Config{
				Paths:    app.chartDirectories(),
				Debounce: cfg.Charts.WatchDebounce,
			},
			app.handleFileEvent,
			logger,
		)
		if err != nil {
			logger.Warn("failed to initialize file watcher", "error", err)
		} else {
			app.Watcher = w
			// Directories loaded later, by sync or API, are watched too.
			app.unsubscribe = app.Factory.Subscribe(app.watchLoadedDirectories)
		}
	}

	return app, nil
}

// LoadCharts loads the configured chart directories and the chart mirror.
// Directories that fail are logged; the others are used.
func (a *App) LoadCharts(ctx context.Context) error {
	dirs := a.chartDirectories()
	if len(dirs) == 0 {
		a.Logger.Warn("no chart directories configured")
	}
	err := a.Registry.LoadDirectories(ctx, dirs)
	a.Logger.Info("charts loaded",
		"directories", len(dirs),
		"sources", a.Registry.SourceCount(),
	)
	return err
}

// Start starts all application components.
func (a *App) Start(ctx context.Context) error {
	// The mirror is brought up to date before it is loaded.
	if a.Storage != nil {
		if _, err := a.Registry.SyncFromStorage(ctx); err != nil {
			a.Logger.Warn("initial sync failed", "error", err)
		}
	}

	if err := a.LoadCharts(ctx); err != nil {
		a.Logger.Warn("failed to load some chart directories", "error", err)
	}

	// Start file watcher
	if a.Watcher != nil {
		if err := a.Watcher.Start(ctx); err != nil {
			a.Logger.Warn("failed to start file watcher", "error", err)
		}
	}

	if a.SyncService != nil && a.SyncService.Interval() > 0 {
		a.SyncService.Start(ctx)
	}

	// Start server
	var err error
	if a.TLS != nil {
		if err := a.TLS.ManageCertificates(ctx); err != nil {
			return err
		}
		err = a.HTTPServer.StartTLS(a.TLS.TLSConfig())
	} else {
		err = a.HTTPServer.Start()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	if a.unsubscribe != nil {
		a.unsubscribe()
	}

	// Stop watcher
	if a.Watcher != nil {
		_ = a.Watcher.Stop()
	}

	if a.SyncService != nil {
		a.SyncService.Stop()
	}

	// Shutdown HTTP server
	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		a.Logger.Error("HTTP server shutdown error", "error", err)
	}
	if a.TLS != nil {
		a.TLS.Close()
	}

	a.Registry.Close()
	a.Factory.Clear()

	if err := a.Cache.Close(); err != nil {
		a.Logger.Error("cache close error", "error", err)
		return err
	}
	return nil
}

// chartDirectories returns the configured directories and the chart
// mirror's directories as absolute paths.
func (a *App) chartDirectories() []string {
	seen := make(map[string]bool)
	var dirs []string
	add := func(dir string) {
		dir = absPath(dir)
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	for _, dir := range a.Config.Charts.Directories {
		add(dir)
	}
	for _, dir := range a.Registry.MirrorDirectories() {
		add(dir)
	}
	return dirs
}

// handleFileEvent handles file system events for hot-reload.
func (a *App) handleFileEvent(ctx context.Context, event watcher.Event) error {
	a.Logger.Info("chart files changed",
		"dir", event.Dir,
		"files", len(event.Files),
		"operation", event.Operation.String(),
	)
	return a.Registry.HandleChange(ctx, event.Dir, event.Files)
}

// watchLoadedDirectories keeps the watched set equal to the configured
// directories plus whatever the registry currently has loaded.
func (a *App) watchLoadedDirectories(event domain.Event) {
	if event.Kind != domain.EventSourcesUpdated {
		return
	}
	keep := make(map[string]struct{})
	for _, dir := range a.chartDirectories() {
		keep[dir] = struct{}{}
	}
	for _, dir := range a.Registry.Directories() {
		keep[dir.Path] = struct{}{}
		if err := a.Watcher.AddPath(dir.Path); err != nil {
			a.Logger.Debug("failed to watch chart directory", "dir", dir.Path, "error", err)
		}
	}
	for _, dir := range a.Watcher.Watched() {
		if _, ok := keep[dir]; !ok {
			if err := a.Watcher.RemovePath(dir); err != nil {
				a.Logger.Debug("failed to unwatch chart directory", "dir", dir, "error", err)
			}
		}
	}
}

// initCache opens the configured fragment cache backend.
func initCache(ctx context.Context, cfg config.CacheConfig) (output.CacheStore, error) {
	switch cfg.Backend {
	case "sqlite":
		return cache.NewSQLiteStore(ctx, filepath.Join(cfg.Dir, "cache.db"))
	case "fs", "":
		return cache.NewFileStore(cfg.Dir)
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}
}

// initStorage initializes the appropriate storage adapter.
func initStorage(ctx context.Context, cfg config.StorageConfig) (output.ObjectStorage, error) {
	switch output.StorageType(cfg.Type) {
	case output.StorageTypeLocal:
		return storage.NewLocalStorage(cfg.LocalPath), nil

	case output.StorageTypeS3:
		return storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})

	case output.StorageTypeAzure:
		return storage.NewAzureStorage(storage.AzureConfig{
			Container:        cfg.Azure.Container,
			AccountName:      cfg.Azure.AccountName,
			AccountKey:       cfg.Azure.AccountKey,
			ConnectionString: cfg.Azure.ConnectionString,
			Prefix:           cfg.Azure.Prefix,
		})

	case output.StorageTypeHTTP:
		return storage.NewHTTPStorage(storage.HTTPConfig{
			BaseURL:   cfg.HTTP.BaseURL,
			IndexFile: cfg.HTTP.IndexFile,
			Timeout:   cfg.HTTP.Timeout,
			Username:  cfg.HTTP.Username,
			Password:  cfg.HTTP.Password,
		}), nil

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

func absPath(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return filepath.Clean(dir)
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}
