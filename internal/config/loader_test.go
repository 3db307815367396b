package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gatewarden.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9090
  mode: debug
redis:
  addr: localhost:6379
defense:
  rate_limit:
    ip:
      max_requests: 50
      window: 30s
  guard:
    max_body_size: 1048576
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.Mode)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 50, cfg.Defense.RateLimit.IP.MaxRequests)
	assert.Equal(t, 30*time.Second, cfg.Defense.RateLimit.IP.Window)
	assert.Equal(t, int64(1<<20), cfg.Defense.Guard.MaxBodySize)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Unset sections still get defaults.
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadInvalidConfigFailsValidation(t *testing.T) {
	path := writeConfigFile(t, `
server:
  mode: staging
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GATEWARDEN_SERVER_PORT", "7070")
	t.Setenv("GATEWARDEN_REDIS_ADDR", "redis.internal:6379")
	t.Setenv("GATEWARDEN_LOG_LEVEL", "warn")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestMustLoadPanicsOnError(t *testing.T) {
	assert.Panics(t, func() { MustLoad("/does/not/exist.yaml") })
}

func TestWatchAppliesValidChanges(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 8080
`)

	changed := make(chan *Config, 1)
	Watch(path, func(cfg *Config) {
		select {
		case changed <- cfg:
		default:
		}
	})

	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 8081
`), 0o600))

	select {
	case cfg := <-changed:
		assert.Equal(t, 8081, cfg.Server.Port)
	case <-time.After(3 * time.Second):
		t.Fatal("config change was not observed")
	}
}
