package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/consult/internal/config"
	"github.com/aretw0/consult/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "consult.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000/api", cfg.Service.URL)
	assert.Equal(t, 10*time.Second, cfg.Service.Timeout)
	assert.Equal(t, config.DriverMemory, cfg.Store.Driver)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Session.LockTTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Targets)
	assert.Equal(t, []domain.Target{"E", "L", "B"}, cfg.Catalog().Targets())
	assert.Equal(t, config.Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, `
service:
  url: https://expert.example.com/api
  timeout: 3s
targets:
  - E
  - id: L
    title: L visa
store:
  driver: redis
  redis:
    addr: redis:6379
    ttl: 1h
server:
  port: 9000
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://expert.example.com/api", cfg.Service.URL)
	assert.Equal(t, 3*time.Second, cfg.Service.Timeout)
	assert.Equal(t, []domain.TargetInfo{{ID: "E"}, {ID: "L", Title: "L visa"}}, cfg.Targets)
	assert.Equal(t, config.DriverRedis, cfg.Store.Driver)
	assert.Equal(t, "redis:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, "consult:session:", cfg.Store.Redis.Prefix, "unset keys keep defaults")
	assert.Equal(t, time.Hour, cfg.Store.Redis.TTL)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 9090, cfg.Server.MetricsPort)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeFile(t, "server:\n  port: 9000\n")
	t.Setenv("CONSULT_SERVER_PORT", "7000")
	t.Setenv("CONSULT_TARGETS", "E, B")
	t.Setenv("CONSULT_SERVICE_TIMEOUT", "250ms")
	t.Setenv("CONSULT_AUTO_TRACE", "true")
	t.Setenv("CONSULT_REDIS_DB", "2")
	t.Setenv("CONSULT_LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, []domain.Target{"E", "B"}, cfg.Catalog().Targets())
	assert.Equal(t, 250*time.Millisecond, cfg.Service.Timeout)
	assert.True(t, cfg.Session.AutoTrace)
	assert.Equal(t, 2, cfg.Store.Redis.DB)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "Relative URL", yaml: "service:\n  url: /api\n"},
		{name: "FTP URL", yaml: "service:\n  url: ftp://host/api\n"},
		{name: "Unknown Driver", yaml: "store:\n  driver: etcd\n"},
		{name: "Bad Duration", env: map[string]string{"CONSULT_SERVICE_TIMEOUT": "soon"}},
		{name: "Bad Port", env: map[string]string{"CONSULT_SERVER_PORT": "0"}},
		{name: "Reserved Target", yaml: "targets: [E, ALL]\n"},
		{name: "Malformed YAML", yaml: "service: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.yaml != "" {
				path = writeFile(t, tt.yaml)
			}
			_, err := config.Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_FileDriver(t *testing.T) {
	t.Setenv("CONSULT_STORE_DRIVER", "file")
	t.Setenv("CONSULT_STORE_DIR", "/var/lib/consult")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.DriverFile, cfg.Store.Driver)
	assert.Equal(t, "/var/lib/consult", cfg.Store.Dir)

	t.Setenv("CONSULT_STORE_DIR", "")
	_, err = config.Load("")
	assert.Error(t, err)
}
