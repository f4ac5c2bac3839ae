package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestApplyDefaults_FillsOptionalSections(t *testing.T) {
	cfg := &Config{}
	cfg.Env.ServiceName = "gatekeeper"

	applyDefaults(cfg)

	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, StorageMemory, cfg.SessionStore.Driver)
	assert.Equal(t, defaultOperationTimeout, cfg.Auth.OperationTimeout)
	assert.Equal(t, "gatekeeper", cfg.Auth.Issuer)
	assert.Equal(t, defaultCookieName, cfg.Auth.Cookie.Name)
	assert.Equal(t, 30, cfg.TokenPolicy.AccessTokenExpiryMinutes)
	assert.Equal(t, "noop", cfg.PubSub.Provider)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid memory config", mutate: func(*Config) {}},
		{name: "short secret", mutate: func(c *Config) { c.SecretKey.Access = "short" }, wantErr: "secretKey.access"},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "mongo" }, wantErr: "unknown storage driver"},
		{name: "redis for users", mutate: func(c *Config) { c.Storage.Driver = StorageRedis }, wantErr: "session store"},
		{name: "postgres without section", mutate: func(c *Config) { c.Storage.Driver = StoragePostgres }, wantErr: "postgres section"},
		{name: "redis without addr", mutate: func(c *Config) { c.SessionStore.Driver = StorageRedis }, wantErr: "redis.addr"},
		{name: "redis sessions", mutate: func(c *Config) {
			c.SessionStore.Driver = StorageRedis
			c.Redis = &RedisConfig{Addr: "localhost:6379"}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.SecretKey.Access = testSecret
			applyDefaults(cfg)
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)

				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadWithEnv_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
env:
  serviceName: gatekeeper
secretKey:
  access: from-yaml
auth:
  operationTimeout: 2s
tokenPolicy:
  accessTokenExpiryMinutes: 15
  refreshTokenExpiryDays: 0.5
  rememberMeTokenExpiryDays: 30
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.yaml"), content, 0o600))

	pwd, err := os.Getwd()
	require.NoError(t, err)
	rel, err := filepath.Rel(pwd, dir)
	require.NoError(t, err)

	t.Setenv("SECRETKEY_ACCESS", testSecret)

	cfg, err := LoadWithEnv[Config]("test", rel)
	require.NoError(t, err)

	assert.Equal(t, testSecret, cfg.SecretKey.Access)
	assert.Equal(t, 2*time.Second, cfg.Auth.OperationTimeout)
	assert.Equal(t, 15, cfg.TokenPolicy.AccessTokenExpiryMinutes)
	assert.InDelta(t, 0.5, cfg.TokenPolicy.RefreshTokenExpiryDays, 1e-9)
}

func TestLoadWithEnv_MissingFile(t *testing.T) {
	_, err := LoadWithEnv[Config]("does-not-exist")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
