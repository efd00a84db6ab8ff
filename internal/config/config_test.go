package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8730, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "bilidash.db", cfg.Database.DSN)
	assert.Equal(t, "recordings", cfg.Storage.RecordingsDir)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 5*time.Second, cfg.Recorder.RestartBackoff)
	assert.Equal(t, 0, cfg.Recorder.MaxRestartAttempts)
	assert.Equal(t, 10*time.Second, cfg.Recorder.StopTimeout)
	assert.Equal(t, 10000, cfg.Recorder.Quality)
	assert.Equal(t, 10, cfg.Sync.PageSize)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9000
storage:
  recordings_dir: /tmp/captures
recorder:
  restart_backoff: 2s
  max_restart_attempts: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/tmp/captures", cfg.Storage.RecordingsDir)
	assert.Equal(t, 2*time.Second, cfg.Recorder.RestartBackoff)
	assert.Equal(t, 5, cfg.Recorder.MaxRestartAttempts)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("BILIDASH_SERVER_PORT", "9999")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		v := viper.New()
		SetDefaults(v)
		var cfg Config
		require.NoError(t, v.Unmarshal(&cfg))
		return &cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad driver", func(c *Config) { c.Database.Driver = "oracle" }, "database.driver"},
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }, "database.dsn"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"empty recordings dir", func(c *Config) { c.Storage.RecordingsDir = "" }, "storage.recordings_dir"},
		{"zero backoff", func(c *Config) { c.Recorder.RestartBackoff = 0 }, "recorder.restart_backoff"},
		{"negative restart bound", func(c *Config) { c.Recorder.MaxRestartAttempts = -1 }, "recorder.max_restart_attempts"},
		{"zero stop timeout", func(c *Config) { c.Recorder.StopTimeout = 0 }, "recorder.stop_timeout"},
		{"zero watch interval", func(c *Config) { c.Recorder.WatchInterval = 0 }, "recorder.watch_interval"},
		{"zero page size", func(c *Config) { c.Sync.PageSize = 0 }, "sync.page_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestServerConfig_Address(t *testing.T) {
	c := ServerConfig{Host: "0.0.0.0", Port: 8730}
	assert.Equal(t, "0.0.0.0:8730", c.Address())
}
