package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the Vector ad player service.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	ClickHouse  ClickHouseConfig
	Redis       RedisConfig
	RateLimit   RateLimitConfig
	Log         LogConfig
	Metrics     MetricsConfig
	Manifest    ManifestConfig
	Beacon      BeaconConfig
	Playback    PlaybackConfig
	DeliveryLog DeliveryLogConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
	MaxSessions     int
	// AllowedOrigins applies to CORS and websocket upgrades; "*" allows any.
	AllowedOrigins []string
	// StreamInterval is the snapshot push period on session streams.
	StreamInterval time.Duration
	// SessionIdleTTL closes sessions this long after their ad ended.
	// Zero keeps them until deleted.
	SessionIdleTTL time.Duration
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// ClickHouseConfig configures the analytics sink for beacon deliveries.
type ClickHouseConfig struct {
	Enabled  bool
	Addr     []string
	Database string
	Username string
	Password string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	// CounterTTL bounds how long per-cycle beacon counters are kept.
	CounterTTL time.Duration
}

type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool
	Path      string
	Namespace string
}

// ManifestConfig bounds VAST manifest fetches.
type ManifestConfig struct {
	FetchTimeout time.Duration
	MaxBytes     int64
}

// BeaconConfig configures tracking beacon delivery.
type BeaconConfig struct {
	Timeout time.Duration
}

// PlaybackConfig holds dual-surface playback settings.
type PlaybackConfig struct {
	// HandoffSkewSeconds is added to the copied position on every handoff.
	HandoffSkewSeconds float64
	// SyncToleranceSeconds is the max drift allowed for the inactive surface
	SyncToleranceSeconds float64
	// TickInterval drives simulated surfaces in headless sessions
	TickInterval time.Duration
	// DefaultAdDuration is used when the manifest carries no Linear duration
	DefaultAdDuration time.Duration
}

// DeliveryLogConfig selects where beacon delivery outcomes are recorded.
type DeliveryLogConfig struct {
	// Sinks is any combination of "memory", "postgres", "clickhouse", "redis".
	Sinks []string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("VECTOR_ADPLAYER_HTTP_ADDR", ":8080"),
			Env:             getEnv("VECTOR_ADPLAYER_ENV", "development"),
			ShutdownTimeout: getDurationEnv("VECTOR_ADPLAYER_SHUTDOWN_TIMEOUT", 30*time.Second),
			MaxSessions:     getIntEnv("VECTOR_ADPLAYER_MAX_SESSIONS", 100),
			AllowedOrigins:  getSliceEnv("VECTOR_ADPLAYER_ALLOWED_ORIGINS", []string{"*"}),
			StreamInterval:  getDurationEnv("VECTOR_ADPLAYER_STREAM_INTERVAL", time.Second),
			SessionIdleTTL:  getDurationEnv("VECTOR_ADPLAYER_SESSION_IDLE_TTL", 10*time.Minute),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolEnv("VECTOR_ADPLAYER_DB_ENABLED", false),
			Host:     getEnv("VECTOR_ADPLAYER_DB_HOST", "localhost"),
			Port:     getIntEnv("VECTOR_ADPLAYER_DB_PORT", 5432),
			User:     getEnv("VECTOR_ADPLAYER_DB_USER", "adplayer"),
			Password: getEnv("VECTOR_ADPLAYER_DB_PASSWORD", "adplayer_secret"),
			DBName:   getEnv("VECTOR_ADPLAYER_DB_NAME", "adplayer"),
			SSLMode:  getEnv("VECTOR_ADPLAYER_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("VECTOR_ADPLAYER_DB_MAX_CONNS", 10),
			MinConns: getIntEnv("VECTOR_ADPLAYER_DB_MIN_CONNS", 2),
		},
		ClickHouse: ClickHouseConfig{
			Enabled:  getBoolEnv("VECTOR_ADPLAYER_CLICKHOUSE_ENABLED", false),
			Addr:     getSliceEnv("VECTOR_ADPLAYER_CLICKHOUSE_ADDR", []string{"localhost:9000"}),
			Database: getEnv("VECTOR_ADPLAYER_CLICKHOUSE_DB", "adplayer"),
			Username: getEnv("VECTOR_ADPLAYER_CLICKHOUSE_USER", "default"),
			Password: getEnv("VECTOR_ADPLAYER_CLICKHOUSE_PASSWORD", ""),
		},
		Redis: RedisConfig{
			Enabled:    getBoolEnv("VECTOR_ADPLAYER_REDIS_ENABLED", false),
			Addr:       getEnv("VECTOR_ADPLAYER_REDIS_ADDR", "localhost:6379"),
			Password:   getEnv("VECTOR_ADPLAYER_REDIS_PASSWORD", ""),
			DB:         getIntEnv("VECTOR_ADPLAYER_REDIS_DB", 0),
			CounterTTL: getDurationEnv("VECTOR_ADPLAYER_REDIS_COUNTER_TTL", 25*time.Hour),
		},
		RateLimit: RateLimitConfig{
			Enabled: getBoolEnv("VECTOR_ADPLAYER_RATE_LIMIT_ENABLED", true),
			RPS:     getFloatEnv("VECTOR_ADPLAYER_RATE_LIMIT_RPS", 100),
			Burst:   getIntEnv("VECTOR_ADPLAYER_RATE_LIMIT_BURST", 20),
		},
		Log: LogConfig{
			Level:  getEnv("VECTOR_ADPLAYER_LOG_LEVEL", "info"),
			Format: getEnv("VECTOR_ADPLAYER_LOG_FORMAT", "auto"),
		},
		Metrics: MetricsConfig{
			Enabled:   getBoolEnv("VECTOR_ADPLAYER_METRICS_ENABLED", true),
			Path:      getEnv("VECTOR_ADPLAYER_METRICS_PATH", "/metrics"),
			Namespace: getEnv("VECTOR_ADPLAYER_METRICS_NAMESPACE", "vector_adplayer"),
		},
		Manifest: ManifestConfig{
			FetchTimeout: getDurationEnv("VECTOR_ADPLAYER_MANIFEST_TIMEOUT", 10*time.Second),
			MaxBytes:     int64(getIntEnv("VECTOR_ADPLAYER_MANIFEST_MAX_BYTES", 1<<20)),
		},
		Beacon: BeaconConfig{
			Timeout: getDurationEnv("VECTOR_ADPLAYER_BEACON_TIMEOUT", 5*time.Second),
		},
		Playback: PlaybackConfig{
			HandoffSkewSeconds:   getFloatEnv("VECTOR_ADPLAYER_HANDOFF_SKEW", 0),
			SyncToleranceSeconds: getFloatEnv("VECTOR_ADPLAYER_SYNC_TOLERANCE", 0.1),
			TickInterval:         getDurationEnv("VECTOR_ADPLAYER_TICK_INTERVAL", 250*time.Millisecond),
			DefaultAdDuration:    getDurationEnv("VECTOR_ADPLAYER_DEFAULT_AD_DURATION", 30*time.Second),
		},
		DeliveryLog: DeliveryLogConfig{
			Sinks: getSliceEnv("VECTOR_ADPLAYER_DELIVERY_SINKS", []string{"memory"}),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Manifest.FetchTimeout <= 0 {
		return fmt.Errorf("VECTOR_ADPLAYER_MANIFEST_TIMEOUT must be positive")
	}
	if c.Manifest.MaxBytes <= 0 {
		return fmt.Errorf("VECTOR_ADPLAYER_MANIFEST_MAX_BYTES must be positive")
	}
	if c.Beacon.Timeout <= 0 {
		return fmt.Errorf("VECTOR_ADPLAYER_BEACON_TIMEOUT must be positive")
	}
	if c.Playback.HandoffSkewSeconds < 0 {
		return fmt.Errorf("VECTOR_ADPLAYER_HANDOFF_SKEW must not be negative")
	}
	if c.Playback.SyncToleranceSeconds <= 0 {
		return fmt.Errorf("VECTOR_ADPLAYER_SYNC_TOLERANCE must be positive")
	}
	if c.Playback.TickInterval <= 0 {
		return fmt.Errorf("VECTOR_ADPLAYER_TICK_INTERVAL must be positive")
	}
	for _, sink := range c.DeliveryLog.Sinks {
		switch sink {
		case "memory":
		case "postgres":
			if !c.Database.Enabled {
				return fmt.Errorf("delivery sink %q requires VECTOR_ADPLAYER_DB_ENABLED", sink)
			}
		case "clickhouse":
			if !c.ClickHouse.Enabled {
				return fmt.Errorf("delivery sink %q requires VECTOR_ADPLAYER_CLICKHOUSE_ENABLED", sink)
			}
		case "redis":
			if !c.Redis.Enabled {
				return fmt.Errorf("delivery sink %q requires VECTOR_ADPLAYER_REDIS_ENABLED", sink)
			}
		default:
			return fmt.Errorf("unknown delivery sink %q", sink)
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// HasSink reports whether the named delivery sink is configured.
func (c *Config) HasSink(name string) bool {
	for _, s := range c.DeliveryLog.Sinks {
		if s == name {
			return true
		}
	}
	return false
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}
