// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables (optionally backed by a
// YAML file) with sensible defaults and validates all settings on startup to
// fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Upload    UploadConfig    `yaml:"upload"`
	Staging   StagingConfig   `yaml:"staging"`
	Numbering NumberingConfig `yaml:"numbering"`
	Billing   BillingConfig   `yaml:"billing"`
	Rate      RateLimitConfig `yaml:"rate_limit"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" yaml:"host" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" envAlt:"PORT" yaml:"port" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" yaml:"read_timeout" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" yaml:"write_timeout" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" yaml:"idle_timeout" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" yaml:"shutdown_timeout" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" yaml:"request_timeout" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" yaml:"url" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" yaml:"max_conns" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" yaml:"min_conns" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" yaml:"max_conn_lifetime" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" yaml:"max_conn_idle_time" default:"30m"`

	// AutoMigrate applies embedded schema migrations on startup (default: true)
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" yaml:"auto_migrate" default:"true"`
}

// UploadConfig holds file upload settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 5MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" yaml:"max_file_size" default:"5242880"`

	// MaxConcurrent is the maximum number of parallel uploads (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" yaml:"max_concurrent" default:"5"`

	// MaxWaitTime is how long to wait for an upload slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" yaml:"max_wait_time" default:"30s"`

	// Timeout is the maximum duration for a single import (default: 5m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" yaml:"timeout" default:"5m"`

	// AllowedExtensions lists accepted upload file extensions (default: .csv,.xlsx)
	AllowedExtensions []string `env:"UPLOAD_ALLOWED_EXTENSIONS" yaml:"allowed_extensions" default:".csv,.xlsx"`

	// StrictQuotes rejects malformed CSV quoting instead of reading it leniently.
	// A badly quoted row then fails the whole import, not just that row.
	StrictQuotes bool `env:"UPLOAD_STRICT_QUOTES" yaml:"strict_quotes" default:"false"`
}

// StagingConfig selects where uploads are held while they are imported.
type StagingConfig struct {
	// Backend is local or s3 (default: local)
	Backend string `env:"STAGING_BACKEND" yaml:"backend" default:"local"`

	// Dir is the local staging directory (default: uploads)
	Dir string `env:"STAGING_DIR" yaml:"dir" default:"uploads"`

	Bucket  string `env:"STAGING_S3_BUCKET" yaml:"s3_bucket"`
	Prefix  string `env:"STAGING_S3_PREFIX" yaml:"s3_prefix" default:"uploads/"`
	Region  string `env:"STAGING_S3_REGION" envAlt:"AWS_REGION" yaml:"s3_region"`
	Profile string `env:"STAGING_AWS_PROFILE" envAlt:"AWS_PROFILE" yaml:"aws_profile"`
}

// NumberingConfig selects the invoice number sequence.
type NumberingConfig struct {
	// Backend is postgres or redis (default: postgres)
	Backend string `env:"NUMBERING_BACKEND" yaml:"backend" default:"postgres"`

	// RedisURL is the Redis connection URL for the redis backend
	RedisURL string `env:"REDIS_URL" yaml:"redis_url"`

	// Key names the counter row or Redis key (default: invoice_number)
	Key string `env:"NUMBERING_KEY" yaml:"key" default:"invoice_number"`
}

// BillingConfig holds invoice lifecycle settings.
type BillingConfig struct {
	// DefaultDueDays is the payment term for imported rows without a due date (default: 30)
	DefaultDueDays int `env:"BILLING_DEFAULT_DUE_DAYS" yaml:"default_due_days" default:"30"`

	// SweepInterval runs the overdue sweep in the background; 0 disables (default: 0)
	SweepInterval time.Duration `env:"BILLING_SWEEP_INTERVAL" yaml:"sweep_interval" default:"0s"`

	// NumberRetries bounds invoice number allocation attempts (default: 5)
	NumberRetries int `env:"BILLING_NUMBER_RETRIES" yaml:"number_retries" default:"5"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" yaml:"enabled" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" yaml:"requests_per_minute" default:"100"`

	// UploadLimit is requests per minute for upload endpoints (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" yaml:"upload" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES" yaml:"trusted_proxies"`

	// RequireAPIKey enforces X-API-Key on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" yaml:"require_api_key" default:"false"`

	// APIKeys is a comma-separated list of accepted gateway keys
	APIKeys []string `env:"API_KEYS" yaml:"api_keys"`

	// CORSOrigins is a comma-separated list of allowed browser origins
	CORSOrigins []string `env:"CORS_ORIGINS" yaml:"cors_origins" default:"http://localhost:3000"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" yaml:"level" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" yaml:"format" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// PaymentTerm returns DefaultDueDays as a duration.
func (c *BillingConfig) PaymentTerm() time.Duration {
	return time.Duration(c.DefaultDueDays) * 24 * time.Hour
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
