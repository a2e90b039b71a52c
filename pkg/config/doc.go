// Package config provides host configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Plugin manager settings:
//
//	AXLE_WORK_DIR="/var/lib/axle"
//	AXLE_ENTRY_POINT="axle_init"
//	AXLE_DESTRUCTOR="axle_exit"
//	AXLE_ALLOW_SHADOWING="false"
//	AXLE_KEEP_EXTRACTED="false"
//	AXLE_DENY_ROOT="true"
//	AXLE_MAX_ARCHIVE_BYTES="536870912"
//	AXLE_MAX_ARCHIVE_ENTRIES="4096"
//	AXLE_SYMBOL_CACHE_SIZE="128"
//	AXLE_HOOK_OUTPUT_BYTES="65536"
//
// Watch mode settings:
//
//	AXLE_WATCH_DIR="/etc/axle/plugins"
//	AXLE_WATCH_DEBOUNCE="500ms"
//	AXLE_LISTEN_ADDR="127.0.0.1:9090"
//	AXLE_SHUTDOWN_TIMEOUT="30s"
//
// Journal settings:
//
//	AXLE_JOURNAL_DSN="postgres://localhost/axle"  # or a SQLite path
//
// Observability settings:
//
//	AXLE_LOG_LEVEL="info"  # debug, info, warn, error
//	AXLE_LOG_FORMAT="text" # text, json
//	AXLE_METRICS_ENABLED="true"
//	AXLE_OTEL_ENABLED="true"
//	AXLE_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
// Load configuration and build a manager:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	opts := cfg.ManagerOptions()
//	opts.Logger = observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, nil)
//	mgr, err := plugins.NewManager(opts)
//
// # Related Packages
//
//   - pkg/plugins: Uses plugin manager configuration
//   - pkg/observability: Uses observability configuration
package config
