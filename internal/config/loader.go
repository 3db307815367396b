package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix for all gateway settings.
const envPrefix = "GATEWARDEN"

// newViper builds a pre-configured Viper instance: YAML file type,
// GATEWARDEN_ env prefix, automatic env binding, and a key replacer mapping
// "." → "_" so nested keys like "redis.addr" resolve to GATEWARDEN_REDIS_ADDR.
// envKeys are the settings recognised from the environment.  Viper only
// surfaces env-bound keys through Unmarshal when they are explicitly bound,
// so every supported override is listed here.
var envKeys = []string{
	"server.port", "server.mode", "server.read_timeout", "server.write_timeout",
	"server.idle_timeout", "server.shutdown_timeout", "server.upstream_url",
	"redis.addr", "redis.password", "redis.db", "redis.pool_size", "redis.key_prefix",
	"database.host", "database.port", "database.user", "database.password",
	"database.db_name", "database.ssl_mode", "database.migration_path",
	"kafka.brokers", "kafka.topic",
	"cors.allowed_origins", "cors.enable_hsts", "cors.content_security_policy",
	"admin.enabled", "admin.token",
	"defense.rate_limit.ip.max_requests", "defense.rate_limit.ip.window",
	"defense.rate_limit.user.max_requests", "defense.rate_limit.user.window",
	"defense.rate_limit.endpoint.max_requests", "defense.rate_limit.endpoint.window",
	"defense.breaker.failure_threshold", "defense.breaker.success_threshold",
	"defense.breaker.timeout", "defense.guard.max_body_size",
	"defense.fingerprint_window",
	"log.level", "log.format",
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}
	return v
}

// Load reads the YAML file at configPath, merges GATEWARDEN_* environment
// overrides, applies defaults for unset fields and validates the result.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config entirely from GATEWARDEN_* environment
// variables with no config file.  Preferred for containerised deployments.
//
// Naming convention:
//
//	GATEWARDEN_<SECTION>_<FIELD>   e.g.  GATEWARDEN_REDIS_ADDR, GATEWARDEN_ADMIN_TOKEN
func LoadFromEnv() (*Config, error) {
	v := newViper()
	return unmarshalAndFinalize(v)
}

// unmarshalAndFinalize unmarshals viper state into a Config, applies
// defaults and validates.
func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// Watch monitors configPath and invokes onChange with the newly parsed
// Config whenever the file changes on disk.  Intended for hot-reloading the
// safe subset of settings (log level, rate-limit tiers); callers decide
// which changed fields to apply at runtime.
//
// Watch is non-blocking; viper manages the background watcher.  A changed
// file that fails to parse or validate is skipped and onChange is not
// called, so the process never adopts a broken config.
func Watch(configPath string, onChange func(*Config)) {
	v := newViper()
	v.SetConfigFile(configPath)

	// Initial read primes viper's state; callers should have called Load
	// already, so errors here are not actionable.
	_ = v.ReadInConfig()

	v.WatchConfig()
	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			return
		}
		onChange(cfg)
	})
}

// MustLoad panics on any load error.  For use in main() where a config
// failure is always fatal.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}
