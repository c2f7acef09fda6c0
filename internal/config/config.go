package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/utafrali/agricoventas/pkg/config"
)

// Catalog sources.
const (
	CatalogPostgres = "postgres"
	CatalogHTTP     = "http"
)

// Config holds all configuration for the cart service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`

	// HTTP server
	HTTPPort              int `env:"CART_HTTP_PORT" envDefault:"8003"`
	RequestTimeoutSeconds int `env:"CART_REQUEST_TIMEOUT_SECONDS" envDefault:"30"`

	// Per-user request rate limit on /api/v1; RATE_LIMIT_RPS=0 disables it
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"40"`

	// Redis
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Cart TTL in hours (default: 7 days)
	CartTTL int `env:"CART_TTL_HOURS" envDefault:"168"`

	// Session TTL in hours; 0 keeps sessions until logout
	SessionTTL int `env:"SESSION_TTL_HOURS" envDefault:"24"`

	// How often carts of lapsed sessions are released from memory
	CartSweepIntervalSeconds int `env:"CART_SWEEP_INTERVAL_SECONDS" envDefault:"60"`

	// Product catalog: "postgres" reads the products table, "http" calls the
	// product service API
	CatalogSource  string `env:"CATALOG_SOURCE" envDefault:"postgres"`
	CatalogAPIURL  string `env:"CATALOG_API_URL" envDefault:"http://localhost:8001"`
	CatalogTimeout int    `env:"CATALOG_TIMEOUT_SECONDS" envDefault:"5"`

	// PostgreSQL product catalog
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"agricoventas"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"agricoventas"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"agricoventas"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`

	// Kafka
	KafkaBrokers     []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaLogoutGroup string   `env:"KAFKA_LOGOUT_GROUP" envDefault:"cart-service-user-logged-out"`

	// Auth
	JWTSecret string `env:"JWT_SECRET" envDefault:""`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	return load(nil)
}

func load(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadWithEnv(cfg, environ); err != nil {
		return nil, fmt.Errorf("load cart config: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration invariants. It runs as part of Load.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.RedisAddr == "" {
		return errors.New("REDIS_ADDR is required")
	}
	if c.PostgresHost == "" {
		return errors.New("POSTGRES_HOST is required")
	}
	if c.PostgresUser == "" {
		return errors.New("POSTGRES_USER is required")
	}
	switch c.CatalogSource {
	case CatalogPostgres:
	case CatalogHTTP:
		u, err := url.Parse(c.CatalogAPIURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("CATALOG_API_URL must be an http(s) URL, got %q", c.CatalogAPIURL)
		}
		if c.CatalogTimeout <= 0 {
			return fmt.Errorf("CATALOG_TIMEOUT_SECONDS must be > 0, got %d", c.CatalogTimeout)
		}
	default:
		return fmt.Errorf("CATALOG_SOURCE must be %q or %q, got %q", CatalogPostgres, CatalogHTTP, c.CatalogSource)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	if c.JWTSecret == "" && c.Environment != "development" {
		return errors.New("JWT_SECRET is required outside development")
	}
	if c.CartTTL <= 0 {
		return fmt.Errorf("CART_TTL_HOURS must be > 0, got %d", c.CartTTL)
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("SESSION_TTL_HOURS must be >= 0, got %d", c.SessionTTL)
	}
	if c.CartSweepIntervalSeconds <= 0 {
		return fmt.Errorf("CART_SWEEP_INTERVAL_SECONDS must be > 0, got %d", c.CartSweepIntervalSeconds)
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0, got %f", c.RateLimitRPS)
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 1, got %d", c.RateLimitBurst)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

// CartTTLDuration returns the persisted cart lifetime.
func (c *Config) CartTTLDuration() time.Duration {
	return time.Duration(c.CartTTL) * time.Hour
}

// SessionTTLDuration returns the session lifetime.
func (c *Config) SessionTTLDuration() time.Duration {
	return time.Duration(c.SessionTTL) * time.Hour
}

// CartSweepInterval returns the period between expired-cart sweeps.
func (c *Config) CartSweepInterval() time.Duration {
	return time.Duration(c.CartSweepIntervalSeconds) * time.Second
}

// RequestTimeout returns the per-request handler deadline.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// CatalogTimeoutDuration returns the per-call timeout for the product API.
func (c *Config) CatalogTimeoutDuration() time.Duration {
	return time.Duration(c.CatalogTimeout) * time.Second
}
