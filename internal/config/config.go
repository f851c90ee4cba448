// Package config provides configuration management using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Charts  ChartsConfig  `mapstructure:"charts"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Decrypt DecryptConfig `mapstructure:"decrypt"`
	Storage StorageConfig `mapstructure:"storage"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Seed    SeedConfig    `mapstructure:"seed"`
	TLS     TLSConfig     `mapstructure:"tls"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`

	// Version is the build version; it is set by the binary, not loaded.
	Version string `mapstructure:"-"`
}

// ConfigError reports an invalid configuration value.
type ConfigError struct {
	Key     string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Message)
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
	ViewerEnabled   bool          `mapstructure:"viewer_enabled"`
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"` // e.g., ["https://example.com", "*.sub.domain.tld"]
}

// Enabled returns true if CORS is configured with at least one allowed origin.
func (c *CORSConfig) Enabled() bool {
	return len(c.AllowedOrigins) > 0
}

// ChartsConfig holds the chart directories.
type ChartsConfig struct {
	Directories    []string      `mapstructure:"directories"`
	Watch          bool          `mapstructure:"watch"`
	WatchDebounce  time.Duration `mapstructure:"watch_debounce"`
	VisibilityFile string        `mapstructure:"visibility_file"`
}

// CacheConfig holds the fragment cache configuration.
type CacheConfig struct {
	Backend      string `mapstructure:"backend"` // fs, sqlite
	Dir          string `mapstructure:"dir"`
	MoveOutEdges bool   `mapstructure:"move_out_edges"`
}

// DecryptConfig holds the decryption channel configuration.
type DecryptConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Socket        string        `mapstructure:"socket"`
	KeyLength     int           `mapstructure:"key_length"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	StrictStreams bool          `mapstructure:"strict_streams"`
}

// StorageConfig holds the object storage the chart mirror syncs from.
type StorageConfig struct {
	Type       string      `mapstructure:"type"` // none, local, s3, azure, http
	MirrorPath string      `mapstructure:"mirror_path"`
	LocalPath  string      `mapstructure:"local_path"`
	S3         S3Config    `mapstructure:"s3"`
	Azure      AzureConfig `mapstructure:"azure"`
	HTTP       HTTPConfig  `mapstructure:"http"`
}

// Enabled returns true if a chart mirror is configured.
func (c *StorageConfig) Enabled() bool {
	return c.Type != "" && c.Type != "none"
}

// S3Config holds AWS S3 configuration.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Prefix          string `mapstructure:"prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// AzureConfig holds Azure Blob Storage configuration.
type AzureConfig struct {
	Container        string `mapstructure:"container"`
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	ConnectionString string `mapstructure:"connection_string"`
	Prefix           string `mapstructure:"prefix"`
}

// HTTPConfig holds HTTP download configuration.
type HTTPConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	IndexFile string        `mapstructure:"index_file"` // default: index.txt
	Timeout   time.Duration `mapstructure:"timeout"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
}

// SyncConfig holds the mirror sync schedule.
type SyncConfig struct {
	Interval time.Duration `mapstructure:"interval"` // 0 disables scheduled syncs
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// SeedConfig holds cache seeding configuration.
type SeedConfig struct {
	Workers int `mapstructure:"workers"` // 0 uses the CPU count
}

// TLSConfig holds TLS/CertMagic configuration.
type TLSConfig struct {
	Enabled  bool         `mapstructure:"enabled"`
	Domains  []string     `mapstructure:"domains"`
	Email    string       `mapstructure:"email"`
	CacheDir string       `mapstructure:"cache_dir"`
	Staging  bool         `mapstructure:"staging"` // Use Let's Encrypt staging
	DNS      TLSDNSConfig `mapstructure:"dns"`
}

// TLSDNSConfig holds the Azure DNS zone used for DNS-01 challenges.
type TLSDNSConfig struct {
	SubscriptionID    string `mapstructure:"subscription_id"`
	ResourceGroupName string `mapstructure:"resource_group_name"`
	ClientID          string `mapstructure:"client_id"` // empty uses the system assigned identity
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

// Defaults sets the default configuration values.
func Defaults() {
	// Server defaults
	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 60*time.Second)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)
	viper.SetDefault("server.cors.allowed_origins", []string{})
	viper.SetDefault("server.viewer_enabled", true)

	// Chart defaults
	viper.SetDefault("charts.directories", []string{})
	viper.SetDefault("charts.watch", true)
	viper.SetDefault("charts.watch_debounce", 2*time.Second)
	viper.SetDefault("charts.visibility_file", "./cache/visible-charts.yaml")

	// Cache defaults
	viper.SetDefault("cache.backend", "fs")
	viper.SetDefault("cache.dir", "./cache")
	viper.SetDefault("cache.move_out_edges", true)

	// Decrypt defaults
	viper.SetDefault("decrypt.enabled", false)
	viper.SetDefault("decrypt.socket", "/tmp/OCPN_PIPEX")
	viper.SetDefault("decrypt.key_length", 256)
	viper.SetDefault("decrypt.idle_timeout", 10*time.Second)
	viper.SetDefault("decrypt.strict_streams", false)

	// Storage defaults
	viper.SetDefault("storage.type", "none")
	viper.SetDefault("storage.mirror_path", "./charts/mirror")
	viper.SetDefault("storage.http.index_file", "index.txt")
	viper.SetDefault("storage.http.timeout", 5*time.Minute)

	// Sync defaults
	viper.SetDefault("sync.interval", time.Hour)
	viper.SetDefault("sync.cooldown", 30*time.Second)

	// Seed defaults
	viper.SetDefault("seed.workers", 0)

	// TLS defaults
	viper.SetDefault("tls.enabled", false)
	viper.SetDefault("tls.cache_dir", "./.certmagic")
	viper.SetDefault("tls.staging", false)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// Load loads configuration from environment and config file.
func Load(configPath string) (*Config, error) {
	Defaults()

	// Environment variable binding
	viper.SetEnvPrefix("CHARTTILER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Config file
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/charttiler")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return &ConfigError{Key: "server.port", Message: fmt.Sprintf("invalid port %d", c.Server.Port)}
	}

	switch c.Cache.Backend {
	case "fs", "sqlite":
	default:
		return &ConfigError{Key: "cache.backend", Message: fmt.Sprintf("unknown backend %q", c.Cache.Backend)}
	}
	if c.Cache.Dir == "" {
		return &ConfigError{Key: "cache.dir", Message: "cache directory is required"}
	}

	if c.Decrypt.Enabled {
		if c.Decrypt.Socket == "" {
			return &ConfigError{Key: "decrypt.socket", Message: "socket path is required"}
		}
		if c.Decrypt.KeyLength <= 0 {
			return &ConfigError{Key: "decrypt.key_length", Message: "must be positive"}
		}
	}

	if c.TLS.Enabled {
		if len(c.TLS.Domains) == 0 {
			return &ConfigError{Key: "tls.domains", Message: "TLS enabled but no domains specified"}
		}
		if c.TLS.Email == "" {
			return &ConfigError{Key: "tls.email", Message: "TLS enabled but no email specified"}
		}
	}

	if c.Sync.Interval < 0 {
		return &ConfigError{Key: "sync.interval", Message: "must not be negative"}
	}
	if c.Seed.Workers < 0 {
		return &ConfigError{Key: "seed.workers", Message: "must not be negative"}
	}

	return c.Storage.validate()
}

func (c *StorageConfig) validate() error {
	switch c.Type {
	case "", "none":
		return nil
	case "local":
		if c.LocalPath == "" {
			return &ConfigError{Key: "storage.local_path", Message: "local storage path is required"}
		}
	case "s3":
		if c.S3.Bucket == "" {
			return &ConfigError{Key: "storage.s3.bucket", Message: "S3 bucket is required"}
		}
		if c.S3.Region == "" {
			return &ConfigError{Key: "storage.s3.region", Message: "S3 region is required"}
		}
	case "azure":
		if c.Azure.Container == "" {
			return &ConfigError{Key: "storage.azure.container", Message: "azure container is required"}
		}
		if c.Azure.AccountName == "" && c.Azure.ConnectionString == "" {
			return &ConfigError{Key: "storage.azure", Message: "azure account name or connection string is required"}
		}
	case "http":
		if c.HTTP.BaseURL == "" {
			return &ConfigError{Key: "storage.http.base_url", Message: "HTTP base URL is required"}
		}
	default:
		return &ConfigError{Key: "storage.type", Message: fmt.Sprintf("unknown storage type %q", c.Type)}
	}

	if c.MirrorPath == "" {
		return &ConfigError{Key: "storage.mirror_path", Message: "mirror path is required"}
	}
	return nil
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
