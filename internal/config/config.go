// Package config loads the broker configuration from flags, environment and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	DefaultAddr = ":3001"

	BackendRedis  = "redis"
	BackendMemory = "memory"

	redactedValue = "********"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Upstream  UpstreamConfig  `mapstructure:"upstream" yaml:"upstream"`
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache"`
	CORS      CORSConfig      `mapstructure:"cors" yaml:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	Audit     AuditConfig     `mapstructure:"audit" yaml:"audit"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	Addr        string `mapstructure:"addr" yaml:"addr"`
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr"`

	// TrustProxy takes the client address from X-Forwarded-For.
	TrustProxy bool `mapstructure:"trust_proxy" yaml:"trust_proxy"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
}

// UpstreamConfig holds the analytics platform connection and administrator identity.
type UpstreamConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Provider string `mapstructure:"provider" yaml:"provider"`

	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	HealthTimeout time.Duration `mapstructure:"health_timeout" yaml:"health_timeout"`

	// MaxRPS caps outbound calls per second, 0 disables the cap.
	MaxRPS float64 `mapstructure:"max_rps" yaml:"max_rps"`
	Burst  int     `mapstructure:"burst" yaml:"burst"`

	// RLSField is the column restricted by the requester row level security clause.
	RLSField string `mapstructure:"rls_field" yaml:"rls_field"`
}

type CacheConfig struct {
	Backend       string `mapstructure:"backend" yaml:"backend"`
	RedisURL      string `mapstructure:"redis_url" yaml:"redis_url"`
	MemoryEntries int    `mapstructure:"memory_entries" yaml:"memory_entries"`

	CredentialLifetime time.Duration `mapstructure:"credential_lifetime" yaml:"credential_lifetime"`
	CredentialBuffer   time.Duration `mapstructure:"credential_buffer" yaml:"credential_buffer"`
	DashboardTTL       time.Duration `mapstructure:"dashboard_ttl" yaml:"dashboard_ttl"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

type PolicyConfig struct {
	Limit  int           `mapstructure:"limit" yaml:"limit"`
	Window time.Duration `mapstructure:"window" yaml:"window"`
}

type RateLimitConfig struct {
	Enabled    bool         `mapstructure:"enabled" yaml:"enabled"`
	General    PolicyConfig `mapstructure:"general" yaml:"general"`
	GuestToken PolicyConfig `mapstructure:"guest_token" yaml:"guest_token"`
	MaxKeys    int          `mapstructure:"max_keys" yaml:"max_keys"`
}

// AuditConfig holds configuration for auditing.
type AuditConfig struct {
	Backend    string `mapstructure:"backend" yaml:"backend"` // e.g., "file", "memory", "none"
	Path       string `mapstructure:"path" yaml:"path"`
	MaxEntries int    `mapstructure:"max_entries" yaml:"max_entries"`
}

type LogConfig struct {
	Level   string `mapstructure:"level" yaml:"level"`
	Format  string `mapstructure:"format" yaml:"format"`
	NoColor bool   `mapstructure:"no_color" yaml:"no_color"`
}

// envNames lists the environment variables accepted per key, plain names first.
var envNames = map[string][]string{
	"upstream.url":          {"SUPERSET_URL", "EMBEDGATE_UPSTREAM_URL"},
	"upstream.username":     {"ADMIN_USERNAME", "EMBEDGATE_UPSTREAM_USERNAME"},
	"upstream.password":     {"ADMIN_PASSWORD", "EMBEDGATE_UPSTREAM_PASSWORD"},
	"cache.redis_url":       {"REDIS_URL", "EMBEDGATE_CACHE_REDIS_URL"},
	"cors.allowed_origins":  {"ALLOWED_ORIGINS", "EMBEDGATE_CORS_ALLOWED_ORIGINS"},
	"server.addr":           {"EMBEDGATE_SERVER_ADDR"},
	"server.port":           {"PORT"},
	"server.metrics_addr":   {"EMBEDGATE_SERVER_METRICS_ADDR"},
	"server.trust_proxy":    {"TRUST_PROXY", "EMBEDGATE_SERVER_TRUST_PROXY"},
	"cache.backend":         {"CACHE_BACKEND", "EMBEDGATE_CACHE_BACKEND"},
	"audit.backend":         {"EMBEDGATE_AUDIT_BACKEND"},
	"audit.path":            {"EMBEDGATE_AUDIT_PATH"},
	"upstream.max_rps":      {"EMBEDGATE_UPSTREAM_MAX_RPS"},
	"rate_limit.enabled":    {"EMBEDGATE_RATE_LIMIT_ENABLED"},
	"upstream.rls_field":    {"EMBEDGATE_UPSTREAM_RLS_FIELD"},
	"cache.dashboard_ttl":   {"EMBEDGATE_CACHE_DASHBOARD_TTL"},
	"upstream.timeout":      {"EMBEDGATE_UPSTREAM_TIMEOUT"},
	"log.level":             {"LOG_LEVEL", "EMBEDGATE_LOG_LEVEL"},
	"log.format":            {"EMBEDGATE_LOG_FORMAT"},
	"server.max_body_bytes": {"EMBEDGATE_SERVER_MAX_BODY_BYTES"},
}

// SetDefaults registers default values and environment bindings on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", DefaultAddr)
	v.SetDefault("server.metrics_addr", "")
	v.SetDefault("server.trust_proxy", false)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_body_bytes", 64<<10)

	v.SetDefault("upstream.provider", "db")
	v.SetDefault("upstream.timeout", 10*time.Second)
	v.SetDefault("upstream.health_timeout", 5*time.Second)
	v.SetDefault("upstream.max_rps", 0)
	v.SetDefault("upstream.burst", 5)
	v.SetDefault("upstream.rls_field", "user_id")

	v.SetDefault("cache.backend", BackendRedis)
	v.SetDefault("cache.memory_entries", 1024)
	v.SetDefault("cache.credential_lifetime", 14*time.Minute)
	v.SetDefault("cache.credential_buffer", 60*time.Second)
	v.SetDefault("cache.dashboard_ttl", 5*time.Minute)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.general.limit", 100)
	v.SetDefault("rate_limit.general.window", 15*time.Minute)
	v.SetDefault("rate_limit.guest_token.limit", 50)
	v.SetDefault("rate_limit.guest_token.window", time.Hour)
	v.SetDefault("rate_limit.max_keys", 10000)

	v.SetDefault("audit.backend", "none")
	v.SetDefault("audit.max_entries", 1000)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.no_color", false)

	for key, names := range envNames {
		_ = v.BindEnv(append([]string{key}, names...)...)
	}
}

// Load decodes the settings of v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg, err := Decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode decodes the settings of v without validating them.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return nil, fmt.Errorf("creating config decoder: %w", err)
	}
	if err := dec.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	// a bare PORT applies unless the listen address was changed
	if port := strings.TrimSpace(v.GetString("server.port")); port != "" && cfg.Server.Addr == DefaultAddr {
		cfg.Server.Addr = ":" + port
	}

	cfg.CORS.AllowedOrigins = cleanList(cfg.CORS.AllowedOrigins)
	cfg.Upstream.URL = strings.TrimRight(strings.TrimSpace(cfg.Upstream.URL), "/")
	cfg.Cache.Backend = strings.ToLower(strings.TrimSpace(cfg.Cache.Backend))
	return &cfg, nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// MissingError lists the environment variables of required settings that are unset.
type MissingError struct {
	Names []string
}

func (e *MissingError) Error() string {
	return "missing required configuration: " + strings.Join(e.Names, ", ")
}

// Validate fails fast on missing or malformed settings.
func (c *Config) Validate() error {
	var missing []string
	if c.Upstream.URL == "" {
		missing = append(missing, "SUPERSET_URL")
	}
	if c.Upstream.Username == "" {
		missing = append(missing, "ADMIN_USERNAME")
	}
	if c.Upstream.Password == "" {
		missing = append(missing, "ADMIN_PASSWORD")
	}
	if c.Cache.Backend == BackendRedis && c.Cache.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		missing = append(missing, "ALLOWED_ORIGINS")
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, &MissingError{Names: missing})
	}

	if c.Upstream.URL != "" {
		if u, err := url.Parse(c.Upstream.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("upstream url %q is not an absolute URL", c.Upstream.URL))
		}
	}
	switch c.Cache.Backend {
	case BackendRedis, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown cache backend %q (use %q or %q)", c.Cache.Backend, BackendRedis, BackendMemory))
	}
	if c.Upstream.Timeout <= 0 || c.Upstream.HealthTimeout <= 0 {
		errs = append(errs, errors.New("upstream timeouts must be positive"))
	}
	if c.Cache.DashboardTTL <= 0 || c.Cache.CredentialLifetime <= 0 {
		errs = append(errs, errors.New("cache lifetimes must be positive"))
	}
	if c.Cache.CredentialBuffer < 0 {
		errs = append(errs, errors.New("cache credential_buffer cannot be negative"))
	}
	if c.RateLimit.Enabled {
		for name, p := range map[string]PolicyConfig{"general": c.RateLimit.General, "guest_token": c.RateLimit.GuestToken} {
			if p.Limit <= 0 || p.Window <= 0 {
				errs = append(errs, fmt.Errorf("rate limit policy %s needs a positive limit and window", name))
			}
		}
	}
	switch c.Audit.Backend {
	case "", "none", "memory":
	case "file":
		if c.Audit.Path == "" {
			errs = append(errs, errors.New("audit backend file requires audit.path"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown audit backend %q", c.Audit.Backend))
	}

	return errors.Join(errs...)
}

// Redacted returns a copy with secrets masked, suitable for printing.
func (c Config) Redacted() Config {
	if c.Upstream.Password != "" {
		c.Upstream.Password = redactedValue
	}
	if c.Cache.RedisURL != "" {
		if u, err := url.Parse(c.Cache.RedisURL); err == nil {
			c.Cache.RedisURL = u.Redacted()
		} else {
			c.Cache.RedisURL = redactedValue
		}
	}
	c.CORS.AllowedOrigins = append([]string(nil), c.CORS.AllowedOrigins...)
	return c
}
