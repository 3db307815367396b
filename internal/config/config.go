// Package config defines all configuration structures for the gateway.  No
// I/O or parsing logic lives here, only plain data types and validation.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/gatewarden/gatewarden/internal/defense/breaker"
	"github.com/gatewarden/gatewarden/internal/defense/guard"
	"github.com/gatewarden/gatewarden/internal/defense/ratelimit"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// UpstreamURL is the protected backend traffic is proxied to.  Empty
	// serves a stub responder, useful for smoke tests.
	UpstreamURL string `mapstructure:"upstream_url"`
}

// RedisConfig holds the optional remote rate-limit store.  An empty Addr
// selects the in-memory store instead.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// Enabled reports whether a remote store is configured.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// DatabaseConfig holds the optional PostgreSQL security-event archive.  An
// empty Host disables the archive; events then go to the log sink only.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrationPath   string        `mapstructure:"migration_path"`
}

// Enabled reports whether the event archive is configured.
func (c DatabaseConfig) Enabled() bool { return c.Host != "" }

// KafkaConfig holds the optional security-event stream.  No brokers means
// no stream sink.
type KafkaConfig struct {
	Brokers         []string      `mapstructure:"brokers"`
	Topic           string        `mapstructure:"topic"`
	ProducerRetries int           `mapstructure:"producer_retries"`
	BatchTimeout    time.Duration `mapstructure:"batch_timeout"`
	RequiredAcks    int           `mapstructure:"required_acks"`
}

// Enabled reports whether the event stream is configured.
func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

// CORSConfig holds the origin policy and the security-header knobs.
type CORSConfig struct {
	AllowedOrigins        []string      `mapstructure:"allowed_origins"`
	AllowedMethods        []string      `mapstructure:"allowed_methods"`
	AllowedHeaders        []string      `mapstructure:"allowed_headers"`
	AllowCredentials      bool          `mapstructure:"allow_credentials"`
	MaxAge                time.Duration `mapstructure:"max_age"`
	EnableHSTS            bool          `mapstructure:"enable_hsts"`
	ContentSecurityPolicy string        `mapstructure:"content_security_policy"`
}

// AdminConfig guards the operational API.
type AdminConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
}

// DefenseConfig groups the request-defense tunables.  The sub-structs are
// the defense packages' own config types so hot-reloaded values apply
// without translation.
type DefenseConfig struct {
	RateLimit         ratelimit.Config `mapstructure:"rate_limit"`
	Breaker           breaker.Config   `mapstructure:"breaker"`
	Guard             guard.Config     `mapstructure:"guard"`
	FingerprintWindow time.Duration    `mapstructure:"fingerprint_window"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level            string   `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format           string   `mapstructure:"format"` // "json" | "text"
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration for the gateway process.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Defense  DefenseConfig  `mapstructure:"defense"`
	Log      LogConfig      `mapstructure:"log"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config.  It
// returns the first error encountered; callers should treat any error as
// fatal and refuse to start.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	if c.Server.UpstreamURL != "" {
		u, err := url.Parse(c.Server.UpstreamURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config: server.upstream_url %q is not a valid http(s) URL", c.Server.UpstreamURL)
		}
	}

	if c.Redis.Enabled() && c.Redis.DB < 0 {
		return fmt.Errorf("config: redis.db must be ≥ 0, got %d", c.Redis.DB)
	}

	if c.Database.Enabled() {
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
		}
		if c.Database.User == "" {
			return fmt.Errorf("config: database.user is required when database.host is set")
		}
		if c.Database.DBName == "" {
			return fmt.Errorf("config: database.db_name is required when database.host is set")
		}
	}

	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		return fmt.Errorf("config: kafka.topic is required when brokers are configured")
	}

	if c.Admin.Enabled && c.Admin.Token == "" {
		return fmt.Errorf("config: admin.token is required when the admin API is enabled")
	}

	for _, tier := range []struct {
		name string
		cfg  ratelimit.TierConfig
	}{
		{"ip", c.Defense.RateLimit.IP},
		{"user", c.Defense.RateLimit.User},
		{"endpoint", c.Defense.RateLimit.Endpoint},
	} {
		if tier.cfg.MaxRequests > 0 && tier.cfg.Window <= 0 {
			return fmt.Errorf("config: defense.rate_limit.%s.window must be positive when max_requests is set", tier.name)
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|text", c.Log.Format)
	}

	return nil
}
