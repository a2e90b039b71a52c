package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/axle/pkg/archive"
	"github.com/platinummonkey/axle/pkg/observability"
	"github.com/platinummonkey/axle/pkg/plugins"
)

// Config holds all host configuration
type Config struct {
	// Plugin manager configuration
	Plugins PluginsConfig

	// Watch mode and status server configuration
	Watch WatchConfig

	// Journal configuration
	Journal JournalConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// PluginsConfig holds plugin manager settings
type PluginsConfig struct {
	WorkDir        string
	EntryPoint     string
	Destructor     string
	AllowShadowing bool
	KeepExtracted  bool
	DenyRoot       bool

	// Package limits
	MaxArchiveBytes   int64
	MaxArchiveEntries int

	SymbolCacheSize int
	HookOutputBytes int
}

// WatchConfig holds watch mode settings
type WatchConfig struct {
	Dir             string
	Debounce        time.Duration
	ListenAddr      string
	ShutdownTimeout time.Duration
}

// JournalConfig holds load journal settings
type JournalConfig struct {
	// DSN selects the backend: postgres:// URLs use PostgreSQL, anything else
	// is a SQLite path. Empty keeps the journal in memory.
	DSN string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel  string
	LogFormat string

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Plugins:       loadPluginsConfig(),
		Watch:         loadWatchConfig(),
		Journal:       loadJournalConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadPluginsConfig loads plugin manager configuration from environment
func loadPluginsConfig() PluginsConfig {
	limits := archive.DefaultLimits()

	return PluginsConfig{
		WorkDir:           getEnv("AXLE_WORK_DIR", os.TempDir()),
		EntryPoint:        getEnv("AXLE_ENTRY_POINT", plugins.DefaultEntryPoint),
		Destructor:        getEnv("AXLE_DESTRUCTOR", plugins.DefaultDestructor),
		AllowShadowing:    getEnvBool("AXLE_ALLOW_SHADOWING", false),
		KeepExtracted:     getEnvBool("AXLE_KEEP_EXTRACTED", false),
		DenyRoot:          getEnvBool("AXLE_DENY_ROOT", false),
		MaxArchiveBytes:   getEnvInt64("AXLE_MAX_ARCHIVE_BYTES", limits.MaxTotalBytes),
		MaxArchiveEntries: getEnvInt("AXLE_MAX_ARCHIVE_ENTRIES", limits.MaxEntries),
		SymbolCacheSize:   getEnvInt("AXLE_SYMBOL_CACHE_SIZE", 128),
		HookOutputBytes:   getEnvInt("AXLE_HOOK_OUTPUT_BYTES", plugins.DefaultHookOutputSize),
	}
}

// loadWatchConfig loads watch mode configuration from environment
func loadWatchConfig() WatchConfig {
	return WatchConfig{
		Dir:             getEnv("AXLE_WATCH_DIR", ""),
		Debounce:        getEnvDuration("AXLE_WATCH_DEBOUNCE", 500*time.Millisecond),
		ListenAddr:      getEnv("AXLE_LISTEN_ADDR", "127.0.0.1:9090"),
		ShutdownTimeout: getEnvDuration("AXLE_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

// loadJournalConfig loads journal configuration from environment
func loadJournalConfig() JournalConfig {
	return JournalConfig{
		DSN: getEnv("AXLE_JOURNAL_DSN", ""),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           strings.ToLower(getEnv("AXLE_LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("AXLE_LOG_FORMAT", observability.FormatText)),
		MetricsEnabled:     getEnvBool("AXLE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("AXLE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("AXLE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("AXLE_OTEL_SERVICE_NAME", "axle"),
		OTelServiceVersion: getEnv("AXLE_OTEL_SERVICE_VERSION", "dev"),
		OTelInsecure:       getEnvBool("AXLE_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate plugin manager config
	if c.Plugins.WorkDir == "" {
		return fmt.Errorf("work directory is required")
	}
	if c.Plugins.EntryPoint == "" {
		return fmt.Errorf("entry point name is required")
	}
	if c.Plugins.Destructor == "" {
		return fmt.Errorf("destructor name is required")
	}
	if strings.ContainsAny(c.Plugins.EntryPoint+c.Plugins.Destructor, " \t\r\n\x00") {
		return fmt.Errorf("entry point and destructor names must not contain whitespace")
	}
	if c.Plugins.MaxArchiveBytes <= 0 {
		return fmt.Errorf("max archive bytes must be positive, got %d", c.Plugins.MaxArchiveBytes)
	}
	if c.Plugins.MaxArchiveEntries <= 0 {
		return fmt.Errorf("max archive entries must be positive, got %d", c.Plugins.MaxArchiveEntries)
	}
	if c.Plugins.SymbolCacheSize <= 0 {
		return fmt.Errorf("symbol cache size must be positive, got %d", c.Plugins.SymbolCacheSize)
	}
	if c.Plugins.HookOutputBytes <= 0 {
		return fmt.Errorf("hook output bytes must be positive, got %d", c.Plugins.HookOutputBytes)
	}

	// Validate watch config
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch debounce must not be negative")
	}
	if c.Watch.ListenAddr == "" {
		return fmt.Errorf("listen address is required")
	}

	// Validate observability config
	switch c.Observability.LogLevel {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic":
	default:
		return fmt.Errorf("invalid log level: %s", c.Observability.LogLevel)
	}
	switch c.Observability.LogFormat {
	case observability.FormatText, observability.FormatJSON:
	default:
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Observability.LogFormat)
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// ManagerOptions converts the plugin settings to manager options. Logger,
// metrics and journal are left for the caller to attach.
func (c *Config) ManagerOptions() plugins.Options {
	return plugins.Options{
		WorkDir:        c.Plugins.WorkDir,
		EntryPoint:     c.Plugins.EntryPoint,
		Destructor:     c.Plugins.Destructor,
		AllowShadowing: c.Plugins.AllowShadowing,
		KeepExtracted:  c.Plugins.KeepExtracted,
		DenyRoot:       c.Plugins.DenyRoot,
		ArchiveLimits: archive.Limits{
			MaxEntries:    c.Plugins.MaxArchiveEntries,
			MaxTotalBytes: c.Plugins.MaxArchiveBytes,
		},
		SymbolCacheSize: c.Plugins.SymbolCacheSize,
		HookOutputSize:  c.Plugins.HookOutputBytes,
	}
}

// OTelConfig returns the OpenTelemetry exporter settings
func (c *Config) OTelConfig() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        c.Observability.OTelEnabled,
		Endpoint:       c.Observability.OTelEndpoint,
		ServiceName:    c.Observability.OTelServiceName,
		ServiceVersion: c.Observability.OTelServiceVersion,
		Insecure:       c.Observability.OTelInsecure,
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
