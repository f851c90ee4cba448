// Package main provides the entry point for the charttiler service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jobrunner/charttiler/internal/app"
	"github.com/jobrunner/charttiler/internal/config"
	"github.com/jobrunner/charttiler/internal/domain"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var cfgFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "charttiler",
	Short: "charttiler - nautical chart tile service",
	Long: `charttiler cuts vector nautical charts into map tiles.

It loads chart directories, picks the charts that cover each tile at the
requested resolution and serves their clipped contents over a REST API.

Features:
  - S-57 ENC cells, plain and through a decryption channel
  - Fragment cache on disk or in SQLite
  - GeoJSON tile data and Mapbox Vector Tiles
  - Chart mirror from local, AWS S3, Azure or HTTP storage
  - Hot-reload of chart directories
  - TLS with automatic certificate management
  - Prometheus metrics`,
	RunE: runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("charttiler %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Build Date: %s\n", buildDate)
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill the fragment cache for a region",
	Long: `Seed composes every tile of a region for a range of zoom levels so that
later requests are served from the cache.`,
	Example: `  charttiler seed --region 55.0,53.8,9.8,11.2 --min-zoom 6 --max-zoom 12`,
	RunE:    runSeed,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Load the chart directories and list their charts",
	RunE:  runInspect,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, text)")
	rootCmd.PersistentFlags().StringSlice("charts", nil, "chart directories")
	rootCmd.PersistentFlags().String("cache-dir", "./cache", "fragment cache directory")

	// Server flags
	rootCmd.Flags().String("host", "127.0.0.1", "server host")
	rootCmd.Flags().Int("port", 8080, "server port")
	rootCmd.Flags().Bool("tls", false, "enable TLS")
	rootCmd.Flags().StringSlice("tls-domains", nil, "TLS domains")
	rootCmd.Flags().String("tls-email", "", "TLS email for Let's Encrypt")

	// Storage flags
	rootCmd.Flags().String("storage-type", "none", "chart mirror storage type (none, local, s3, azure, http)")
	rootCmd.Flags().String("storage-path", "", "local storage path")

	// CORS flags
	rootCmd.Flags().StringSlice("cors", nil, "allowed CORS origins (e.g., https://example.com,*.sub.domain.tld)")

	// Seed flags
	seedCmd.Flags().String("region", "", "region as top,bottom,left,right in degrees")
	seedCmd.Flags().Int("min-zoom", 0, "first zoom level")
	seedCmd.Flags().Int("max-zoom", 12, "last zoom level")
	seedCmd.Flags().Int("workers", 0, "parallel tiles (default: CPU count)")
	_ = seedCmd.MarkFlagRequired("region")

	// Bind flags to viper
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("charts.directories", rootCmd.PersistentFlags().Lookup("charts"))
	_ = viper.BindPFlag("cache.dir", rootCmd.PersistentFlags().Lookup("cache-dir"))
	_ = viper.BindPFlag("server.host", rootCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", rootCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("tls.enabled", rootCmd.Flags().Lookup("tls"))
	_ = viper.BindPFlag("tls.domains", rootCmd.Flags().Lookup("tls-domains"))
	_ = viper.BindPFlag("tls.email", rootCmd.Flags().Lookup("tls-email"))
	_ = viper.BindPFlag("storage.type", rootCmd.Flags().Lookup("storage-type"))
	_ = viper.BindPFlag("storage.local_path", rootCmd.Flags().Lookup("storage-path"))
	_ = viper.BindPFlag("server.cors.allowed_origins", rootCmd.Flags().Lookup("cors"))
	_ = viper.BindPFlag("seed.workers", seedCmd.Flags().Lookup("workers"))

	rootCmd.AddCommand(versionCmd, seedCmd, inspectCmd)
}

func initConfig() {
	config.Defaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// loadApp loads the configuration and wires the application.
func loadApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg.Version = version

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing application: %w", err)
	}
	return application, nil
}

func runServer(_ *cobra.Command, _ []string) error {
	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := loadApp(ctx)
	if err != nil {
		return err
	}
	cfg := application.Config
	logger := application.Logger

	logger.Info("starting charttiler",
		"version", version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"cache_backend", cfg.Cache.Backend,
		"storage_type", cfg.Storage.Type,
	)

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in background
	serverErr := make(chan error, 1)
	go func() {
		if err := application.Start(ctx); err != nil {
			serverErr <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		logger.Error("server error", "error", err)
	}
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	logger.Info("shutting down server")
	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}

func runSeed(cmd *cobra.Command, _ []string) error {
	raw, _ := cmd.Flags().GetString("region")
	region, err := parseRegion(raw)
	if err != nil {
		return err
	}
	minZoom, _ := cmd.Flags().GetInt("min-zoom")
	maxZoom, _ := cmd.Flags().GetInt("max-zoom")
	if minZoom < 0 || maxZoom > domain.MaxZoom || minZoom > maxZoom {
		return fmt.Errorf("zoom range must lie within 0..%d", domain.MaxZoom)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = application.Cache.Close() }()

	if err := application.LoadCharts(ctx); err != nil {
		application.Logger.Warn("failed to load some chart directories", "error", err)
	}

	bar := pb.New(0)
	bar.Start()
	stats, err := application.Seeder.Seed(ctx, region, minZoom, maxZoom, func(done, total int) {
		bar.SetTotal(int64(total))
		bar.SetCurrent(int64(done))
	})
	bar.Finish()
	if err != nil {
		return fmt.Errorf("seeding: %w", err)
	}

	fmt.Printf("seeded %d tiles with %d fragments in %s\n",
		stats.Tiles, stats.Fragments, stats.Duration.Round(time.Millisecond))
	return nil
}

func runInspect(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	application, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = application.Cache.Close() }()

	loadErr := application.LoadCharts(ctx)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DIRECTORY\tTYPE\tCHARTS\tERROR")
	for _, dir := range application.Registry.Directories() {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", dir.Path, dir.Type, dir.Charts, dir.Error)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "CHART\tSCALE\tENABLED\tEXTENT")
	for _, src := range application.Factory.Sources() {
		fmt.Fprintf(tw, "%s\t1:%d\t%t\t%s\n", src.Name, src.NativeScale, src.Enabled, src.Extent)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return loadErr
}

// parseRegion parses "top,bottom,left,right".
func parseRegion(raw string) (domain.GeoRect, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return domain.GeoRect{}, errors.New("region must be top,bottom,left,right")
	}
	var edges [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return domain.GeoRect{}, fmt.Errorf("invalid region edge %q: %w", p, err)
		}
		edges[i] = v
	}
	rect := domain.GeoRect{Top: edges[0], Bottom: edges[1], Left: edges[2], Right: edges[3]}
	return rect, rect.Validate()
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(time.Now().UTC().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
