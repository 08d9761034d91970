// Package config provides the storyflow service configuration: defaults,
// YAML file loading, and environment variable overrides, in that priority
// order (defaults < file < env).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Credits     CreditsConfig     `yaml:"credits"`
	Generation  GenerationConfig  `yaml:"generation"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

// ServerConfig configures the metrics/health HTTP listener.
type ServerConfig struct {
	MetricsPort     int           `yaml:"metrics_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// PersistenceConfig selects and configures the storage backend.
type PersistenceConfig struct {
	// Backend: memory, file, redis, sqlite
	Backend string `yaml:"backend"`

	// FileDir is the base directory for the file backend.
	FileDir string `yaml:"file_dir"`

	// SQLitePath is the database path for the sqlite backend.
	SQLitePath string `yaml:"sqlite_path"`

	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"pool_size"`
	KeyPrefix string `yaml:"key_prefix"`
}

// CreditsConfig configures the credit ledger and per-operation costs, all in
// canonical cents.
type CreditsConfig struct {
	StartingBalance int64   `yaml:"starting_balance"`
	DisplayCurrency string  `yaml:"display_currency"`
	ConversionRate  float64 `yaml:"conversion_rate"`

	ImageCost int64 `yaml:"image_cost"`
	VideoCost int64 `yaml:"video_cost"`
	EditCost  int64 `yaml:"edit_cost"`
	AngleCost int64 `yaml:"angle_cost"`
}

// GenerationConfig configures the caller loop.
type GenerationConfig struct {
	// MaxScenes caps the number of scenes in one storyboard request.
	MaxScenes int `yaml:"max_scenes"`

	// ThrottleInterval is the fixed delay between successive service calls
	// within one batch, respecting the collaborator's rate limits.
	ThrottleInterval time.Duration `yaml:"throttle_interval"`

	// BookmarkTTL is how long a saved item lives before it is garbage
	// collected on load.
	BookmarkTTL time.Duration `yaml:"bookmark_ttl"`

	DefaultImageModel string `yaml:"default_image_model"`
	DefaultVideoModel string `yaml:"default_video_model"`
}

// TelemetryConfig configures the OTel SDK.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			MetricsPort:     9090,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Persistence: PersistenceConfig{
			Backend:    "file",
			FileDir:    "./data/storyflow",
			SQLitePath: "./data/storyflow.db",
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				PoolSize:  10,
				KeyPrefix: "storyflow:",
			},
		},
		Credits: CreditsConfig{
			StartingBalance: 10_000,
			DisplayCurrency: "USD",
			ConversionRate:  1,
			ImageCost:       20,
			VideoCost:       150,
			EditCost:        20,
			AngleCost:       20,
		},
		Generation: GenerationConfig{
			MaxScenes:         12,
			ThrottleInterval:  2 * time.Second,
			BookmarkTTL:       30 * 24 * time.Hour,
			DefaultImageModel: "imagen-4",
			DefaultVideoModel: "veo-3",
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			ServiceName:  "storyflow",
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment overrides, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from STORYFLOW_* environment variables.
func (c *Config) applyEnv() {
	envString("STORYFLOW_LOG_LEVEL", &c.Log.Level)
	envString("STORYFLOW_LOG_FORMAT", &c.Log.Format)
	envInt("STORYFLOW_METRICS_PORT", &c.Server.MetricsPort)

	envString("STORYFLOW_PERSISTENCE_BACKEND", &c.Persistence.Backend)
	envString("STORYFLOW_PERSISTENCE_FILE_DIR", &c.Persistence.FileDir)
	envString("STORYFLOW_PERSISTENCE_SQLITE_PATH", &c.Persistence.SQLitePath)
	envString("STORYFLOW_REDIS_ADDR", &c.Persistence.Redis.Addr)
	envString("STORYFLOW_REDIS_PASSWORD", &c.Persistence.Redis.Password)
	envInt("STORYFLOW_REDIS_DB", &c.Persistence.Redis.DB)

	envInt64("STORYFLOW_CREDITS_STARTING_BALANCE", &c.Credits.StartingBalance)
	envString("STORYFLOW_CREDITS_DISPLAY_CURRENCY", &c.Credits.DisplayCurrency)

	envDuration("STORYFLOW_GENERATION_THROTTLE_INTERVAL", &c.Generation.ThrottleInterval)
	envInt("STORYFLOW_GENERATION_MAX_SCENES", &c.Generation.MaxScenes)

	envBool("STORYFLOW_TELEMETRY_ENABLED", &c.Telemetry.Enabled)
	envString("STORYFLOW_TELEMETRY_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	switch c.Persistence.Backend {
	case "memory", "file", "redis", "sqlite":
	default:
		return fmt.Errorf("unknown persistence backend %q", c.Persistence.Backend)
	}
	if c.Generation.MaxScenes < 1 {
		return fmt.Errorf("generation.max_scenes must be at least 1, got %d", c.Generation.MaxScenes)
	}
	if c.Generation.ThrottleInterval < 0 {
		return fmt.Errorf("generation.throttle_interval must not be negative")
	}
	if c.Credits.StartingBalance < 0 {
		return fmt.Errorf("credits.starting_balance must not be negative")
	}
	if c.Credits.ConversionRate <= 0 {
		return fmt.Errorf("credits.conversion_rate must be positive")
	}
	if c.Telemetry.Enabled && c.Telemetry.OTLPEndpoint == "" {
		return fmt.Errorf("telemetry.otlp_endpoint required when telemetry is enabled")
	}
	return nil
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envInt64(key string, dst *int64) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
