package domain

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete Tradeproof configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server" yaml:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier" yaml:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository" yaml:"repository"`
	Cache      CacheConfig      `json:"cache" yaml:"cache"`
	EventBus   EventBusConfig   `json:"eventBus" yaml:"eventBus"`
	RateLimit  RateLimitConfig  `json:"rateLimit" yaml:"rateLimit"`

	// AsyncWorker starts the bus-driven cross-check pipeline.
	AsyncWorker bool `json:"asyncWorker" yaml:"asyncWorker"`

	// Tenants the async worker subscribes for.
	Tenants []string `json:"tenants" yaml:"tenants"`

	// Observability
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host" yaml:"host"`
	Port         int    `json:"port" yaml:"port"`
	ReadTimeout  int    `json:"readTimeout" yaml:"readTimeout"`   // seconds
	WriteTimeout int    `json:"writeTimeout" yaml:"writeTimeout"` // seconds
}

// RateLimitConfig configures the per-caller request limiter.
type RateLimitConfig struct {
	Enabled    bool `json:"enabled" yaml:"enabled"`
	Requests   int  `json:"requests" yaml:"requests"`     // per window
	WindowSecs int  `json:"windowSecs" yaml:"windowSecs"` // seconds
	MaxKeys    int  `json:"maxKeys" yaml:"maxKeys"`

	// Distributed counts in the shared cache instead of process memory.
	Distributed bool `json:"distributed" yaml:"distributed"`
}

// Window returns the limiter window as a duration.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSecs) * time.Second
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	ServiceName  string `json:"serviceName" yaml:"serviceName"`
	ExporterType string `json:"exporterType" yaml:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"

	// TierEnterprise includes multi-node, SSO, etc.
	TierEnterprise Tier = "enterprise"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./tradeproof.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		RateLimit: RateLimitConfig{
			Enabled:    true,
			Requests:   120,
			WindowSecs: 60,
			MaxKeys:    10000,
		},
		AsyncWorker: true,
		Tenants:     []string{"default"},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "tradeproof",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "tradeproof",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.RateLimit.Distributed = true
	cfg.Tracing.Enabled = true
	return cfg
}

// LoadConfig builds the configuration for the tier named by TRADEPROOF_TIER,
// overlays the YAML file at path (if any) and then environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	switch Tier(os.Getenv("TRADEPROOF_TIER")) {
	case TierPro, TierEnterprise:
		cfg = ProConfig()
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}
	flag := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	if v := os.Getenv("TRADEPROOF_TIER"); v != "" {
		cfg.Tier = Tier(v)
	}
	if err := num("TRADEPROOF_PORT", &cfg.Server.Port); err != nil {
		return err
	}

	str("TRADEPROOF_DB_DRIVER", &cfg.Repository.Driver)
	str("TRADEPROOF_SQLITE_PATH", &cfg.Repository.SQLitePath)
	str("TRADEPROOF_POSTGRES_HOST", &cfg.Repository.PostgresHost)
	if err := num("TRADEPROOF_POSTGRES_PORT", &cfg.Repository.PostgresPort); err != nil {
		return err
	}
	str("TRADEPROOF_POSTGRES_USER", &cfg.Repository.PostgresUser)
	str("TRADEPROOF_POSTGRES_PASSWORD", &cfg.Repository.PostgresPassword)
	str("TRADEPROOF_POSTGRES_DB", &cfg.Repository.PostgresDB)
	str("TRADEPROOF_POSTGRES_SSLMODE", &cfg.Repository.PostgresSSLMode)

	str("TRADEPROOF_REDIS_ADDR", &cfg.Cache.RedisAddr)
	str("TRADEPROOF_REDIS_PASSWORD", &cfg.Cache.RedisPassword)
	str("TRADEPROOF_NATS_URL", &cfg.EventBus.NATSUrl)
	str("TRADEPROOF_NATS_TOKEN", &cfg.EventBus.NATSToken)

	flag("TRADEPROOF_ASYNC_WORKER", &cfg.AsyncWorker)
	flag("TRADEPROOF_RATE_LIMIT", &cfg.RateLimit.Enabled)
	if v := os.Getenv("TRADEPROOF_TENANTS"); v != "" {
		cfg.Tenants = nil
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				cfg.Tenants = append(cfg.Tenants, t)
			}
		}
	}

	if os.Getenv("TRADEPROOF_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}
	return nil
}
