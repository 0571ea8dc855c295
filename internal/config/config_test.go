package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "walstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
node:
  http_address: "127.0.0.1:18080"
wal:
  path: /var/lib/walstore/wal.log
  checksums: true
logger:
  level: debug
  json: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:18080", cfg.Node.HTTPAddress)
	assert.Equal(t, ":9090", cfg.Node.GRPCAddress, "unset keys keep their defaults")
	assert.Equal(t, "/var/lib/walstore/wal.log", cfg.WAL.Path)
	assert.True(t, cfg.WAL.Checksums)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.True(t, cfg.Logger.JSON)
	assert.Equal(t, "walstore", cfg.Tracing.ServiceName)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "wal: [not, a, map"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "logger:\n  level: chatty\n"))
	assert.ErrorContains(t, err, "logger.level")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "empty wal path", mutate: func(c *Config) { c.WAL.Path = " " }, wantErr: "wal.path"},
		{name: "no listeners", mutate: func(c *Config) { c.Node = NodeConfig{} }, wantErr: "address"},
		{name: "grpc only", mutate: func(c *Config) { c.Node.HTTPAddress = "" }},
		{name: "no service name", mutate: func(c *Config) { c.Tracing.ServiceName = "" }, wantErr: "service_name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
