// Package config loads the process configuration from a YAML file with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment overrides.
const (
	EnvConfigPath = "ADMISSION_CONFIG"
	EnvDSN        = "ADMISSION_DSN"
	EnvRedisAddr  = "ADMISSION_REDIS_ADDR"
	EnvJWTSecret  = "ADMISSION_JWT_SECRET"
	EnvAuditKey   = "ADMISSION_AUDIT_HASH_KEY"
)

// DefaultConfigPath is used when neither a flag nor EnvConfigPath names a file.
const DefaultConfigPath = "config.yaml"

// AppConfig holds the command-line inputs of the process.
type AppConfig struct {
	ConfigPath string
}

// Config is the full process configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Audit     AuditConfig     `yaml:"audit"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Quota     QuotaConfig     `yaml:"quota"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatabaseConfig configures the relational store.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig configures the shared key-value store. An empty Addr runs without it.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig holds the secret used to verify operator tokens on the admin API.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// AuditConfig configures the audit sink.
type AuditConfig struct {
	HashKey       string        `yaml:"hash_key"`
	QueueSize     int           `yaml:"queue_size"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// LimitConfig is one token-bucket policy. A zero MaxRequests disables the policy.
type LimitConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// Enabled reports whether the policy limits anything.
func (l LimitConfig) Enabled() bool {
	return l.MaxRequests > 0 && l.Window > 0
}

// RateLimitConfig configures the rate limiter and its default policies.
type RateLimitConfig struct {
	StoreTimeout  time.Duration          `yaml:"store_timeout"`
	LocalFallback *bool                  `yaml:"local_fallback"`
	Tenant        LimitConfig            `yaml:"tenant"`
	IP            LimitConfig            `yaml:"ip"`
	Tools         map[string]LimitConfig `yaml:"tools"`
}

// FallbackEnabled reports whether the in-process bucket answers when the shared store fails.
func (r RateLimitConfig) FallbackEnabled() bool {
	return r.LocalFallback == nil || *r.LocalFallback
}

// QuotaConfig configures the quota manager and tenant lookups.
type QuotaConfig struct {
	StoreTimeout   time.Duration `yaml:"store_timeout"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	TenantCacheTTL time.Duration `yaml:"tenant_cache_ttl"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
	TrialDays      int           `yaml:"trial_days"`
}

// LoggingConfig configures logrus output.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// ResolveConfigPath returns path, or the environment override, or DefaultConfigPath.
func ResolveConfigPath(path string) string {
	if p := strings.TrimSpace(path); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p
	}
	return DefaultConfigPath
}

// Load reads path and applies defaults and environment overrides.
// A missing file is tolerated so the process can run from the environment alone.
func Load(path string) (*Config, error) {
	var cfg Config
	data, errRead := os.ReadFile(path)
	switch {
	case errRead == nil:
		if errParse := yaml.Unmarshal(data, &cfg); errParse != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, errParse)
		}
	case errors.Is(errRead, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, errRead)
	}

	applyEnv(&cfg)
	setDefaults(&cfg)
	if errValidate := cfg.Validate(); errValidate != nil {
		return nil, errValidate
	}
	return &cfg, nil
}

// LoadDatabaseDSN returns only the database DSN from path.
func LoadDatabaseDSN(path string) (string, error) {
	cfg, err := Load(path)
	if err != nil {
		return "", err
	}
	return cfg.Database.DSN, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvDSN)); v != "" {
		cfg.Database.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvRedisAddr)); v != "" {
		cfg.Redis.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvJWTSecret)); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAuditKey)); v != "" {
		cfg.Audit.HashKey = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = time.Second
	}
	if cfg.Redis.ReadTimeout == 0 {
		cfg.Redis.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.Redis.WriteTimeout == 0 {
		cfg.Redis.WriteTimeout = 500 * time.Millisecond
	}

	if cfg.RateLimit.StoreTimeout == 0 {
		cfg.RateLimit.StoreTimeout = 50 * time.Millisecond
	}
	if cfg.RateLimit.Tenant.MaxRequests == 0 && cfg.RateLimit.Tenant.Window == 0 {
		cfg.RateLimit.Tenant = LimitConfig{MaxRequests: 60, Window: time.Minute}
	}

	if cfg.Quota.StoreTimeout == 0 {
		cfg.Quota.StoreTimeout = 2 * time.Second
	}
	if cfg.Quota.CacheTTL == 0 {
		cfg.Quota.CacheTTL = time.Minute
	}
	if cfg.Quota.TenantCacheTTL == 0 {
		cfg.Quota.TenantCacheTTL = 30 * time.Second
	}
	if cfg.Quota.SessionTTL == 0 {
		cfg.Quota.SessionTTL = 30 * time.Minute
	}
	if cfg.Quota.TrialDays == 0 {
		cfg.Quota.TrialDays = 14
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 100
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 5
	}
}

// Validate reports configuration errors that would make the process unsafe to start.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("config: database.dsn is required (or set %s)", EnvDSN)
	}
	if c.Quota.TrialDays < 0 {
		return fmt.Errorf("config: quota.trial_days must not be negative")
	}
	for name, policy := range c.RateLimit.Tools {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("config: ratelimit.tools has an empty tool name")
		}
		if policy.MaxRequests < 0 || policy.Window < 0 {
			return fmt.Errorf("config: ratelimit.tools.%s must not be negative", name)
		}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("config: logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}
