package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var durationType = reflect.TypeOf(time.Duration(0))

// Load reads configuration from environment variables, falling back to the
// YAML file named by CONFIG_FILE when it is set, then to defaults.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile is Load with an explicit YAML file. An empty path reads the
// environment only. Environment variables take precedence over the file.
func LoadFile(path string) (*Config, error) {
	file, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	cfg := &Config{}
	if err := file.fill(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// MustLoad loads configuration and panics on error. Only main should call it.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// fileValues holds YAML settings flattened to "section.key" strings so they
// go through the same parsing as environment variables.
type fileValues map[string]string

// readFile parses a two-level YAML document:
//
//	server:
//	  port: 9090
//	security:
//	  cors_origins: [https://app.example.com]
func readFile(path string) (fileValues, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var doc map[string]map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	values := make(fileValues)
	for section, fields := range doc {
		for key, raw := range fields {
			values[section+"."+key] = scalarString(raw)
		}
	}
	return values, nil
}

// scalarString renders a decoded YAML value the way it would be written in
// an environment variable. Sequences become comma-separated lists.
func scalarString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = scalarString(item)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(x)
	}
}

// lookup returns the first non-empty value among env, envAlt and the file.
func (f fileValues) lookup(tag reflect.StructTag, section string) string {
	for _, name := range []string{tag.Get("env"), tag.Get("envAlt")} {
		if name == "" {
			continue
		}
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	if key := tag.Get("yaml"); key != "" {
		return f[section+"."+key]
	}
	return ""
}

// fill walks the struct and assigns every field carrying an env tag. Nested
// structs are sections named by their yaml tag.
func (f fileValues) fill(v reflect.Value, section string) error {
	t := v.Type()
	for i := range t.NumField() {
		sf, fv := t.Field(i), v.Field(i)
		if !fv.CanSet() {
			continue
		}
		if sf.Type.Kind() == reflect.Struct {
			if err := f.fill(fv, sf.Tag.Get("yaml")); err != nil {
				return err
			}
			continue
		}

		env := sf.Tag.Get("env")
		if env == "" {
			continue
		}
		raw := f.lookup(sf.Tag, section)
		if raw == "" {
			if sf.Tag.Get("required") == "true" {
				return fmt.Errorf("required environment variable %s is not set", env)
			}
			raw = sf.Tag.Get("default")
		}
		if raw == "" {
			continue
		}
		if err := parseInto(fv, raw); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", env, raw, err)
		}
	}
	return nil
}

// parseInto converts raw to the field's type.
func parseInto(fv reflect.Value, raw string) error {
	if fv.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		fv.SetInt(int64(d))
		return nil
	}

	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		fv.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		fv.SetBool(b)
	case reflect.Slice:
		if fv.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", fv.Type().Elem().Kind())
		}
		var list []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				list = append(list, p)
			}
		}
		fv.Set(reflect.ValueOf(list))
	default:
		return fmt.Errorf("unsupported field type: %s", fv.Kind())
	}
	return nil
}

// problems collects validation failures.
type problems []string

func (p *problems) check(ok bool, format string, args ...any) {
	if !ok {
		*p = append(*p, fmt.Sprintf(format, args...))
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var p problems

	db := c.Database
	p.check(db.URL != "", "DATABASE_URL is required")
	p.check(db.MaxConns > 0, "DB_MAX_CONNS must be positive")
	p.check(db.MinConns >= 0, "DB_MIN_CONNS must be non-negative")
	p.check(db.MaxConns >= db.MinConns, "DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", db.MaxConns, db.MinConns)

	p.check(c.Server.Port > 0 && c.Server.Port <= 65535, "SERVER_PORT (%d) must be 1-65535", c.Server.Port)
	p.check(c.Server.ReadTimeout >= 0, "SERVER_READ_TIMEOUT must be non-negative")
	p.check(c.Server.ShutdownTimeout > 0, "SERVER_SHUTDOWN_TIMEOUT must be positive")

	up := c.Upload
	p.check(up.MaxFileSize > 0, "UPLOAD_MAX_FILE_SIZE must be positive")
	p.check(up.MaxConcurrent > 0, "UPLOAD_MAX_CONCURRENT must be positive")
	p.check(up.MaxWaitTime > 0, "UPLOAD_MAX_WAIT_TIME must be positive")
	p.check(up.Timeout > 0, "UPLOAD_TIMEOUT must be positive")
	p.check(len(up.AllowedExtensions) > 0, "UPLOAD_ALLOWED_EXTENSIONS must list at least one extension")

	switch strings.ToLower(c.Staging.Backend) {
	case "local":
		p.check(c.Staging.Dir != "", "STAGING_DIR is required for the local backend")
	case "s3":
		p.check(c.Staging.Bucket != "", "STAGING_S3_BUCKET is required for the s3 backend")
	default:
		p.check(false, "STAGING_BACKEND (%q) must be one of: local, s3", c.Staging.Backend)
	}

	switch strings.ToLower(c.Numbering.Backend) {
	case "postgres":
	case "redis":
		p.check(c.Numbering.RedisURL != "", "REDIS_URL is required for the redis numbering backend")
	default:
		p.check(false, "NUMBERING_BACKEND (%q) must be one of: postgres, redis", c.Numbering.Backend)
	}
	p.check(c.Numbering.Key != "", "NUMBERING_KEY must not be empty")

	p.check(c.Billing.DefaultDueDays > 0, "BILLING_DEFAULT_DUE_DAYS must be positive")
	p.check(c.Billing.SweepInterval >= 0, "BILLING_SWEEP_INTERVAL must be non-negative")
	p.check(c.Billing.NumberRetries > 0, "BILLING_NUMBER_RETRIES must be positive")

	if c.Rate.Enabled {
		p.check(c.Rate.RequestsPerMinute > 0, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
		p.check(c.Rate.UploadLimit > 0, "RATE_LIMIT_UPLOAD must be positive when rate limiting is enabled")
	}

	p.check(!c.Security.RequireAPIKey || len(c.Security.APIKeys) > 0,
		"REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		p.check(false, "LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		p.check(false, "LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format)
	}

	if len(p) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(p, "\n  - "))
	}
	return nil
}

// String returns the config for logging with the database and Redis URLs
// masked.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Server: {Host: %q, Port: %d}, "+
		"Database: {URL: [MASKED], MaxConns: %d, MinConns: %d, AutoMigrate: %v}, "+
		"Upload: {MaxFileSize: %d, MaxConcurrent: %d, Timeout: %s}, "+
		"Staging: {Backend: %q}, Numbering: {Backend: %q, RedisURL: [MASKED]}, "+
		"Billing: {DefaultDueDays: %d, SweepInterval: %s}, "+
		"Rate: {Enabled: %v, RequestsPerMinute: %d}, "+
		"Security: {RequireAPIKey: %v, APIKeys: %d configured}, "+
		"Logging: {Level: %q, Format: %q}}",
		c.Server.Host, c.Server.Port,
		c.Database.MaxConns, c.Database.MinConns, c.Database.AutoMigrate,
		c.Upload.MaxFileSize, c.Upload.MaxConcurrent, c.Upload.Timeout,
		c.Staging.Backend, c.Numbering.Backend,
		c.Billing.DefaultDueDays, c.Billing.SweepInterval,
		c.Rate.Enabled, c.Rate.RequestsPerMinute,
		c.Security.RequireAPIKey, len(c.Security.APIKeys),
		c.Logging.Level, c.Logging.Format)
}
