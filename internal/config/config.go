// Package config provides configuration management for bilidash using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 8730
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 10
	defaultConnMaxIdleTime = 30 * time.Minute
	defaultHTTPTimeout     = 30 * time.Second
	defaultRetryAttempts   = 3
	defaultRetryDelay      = 1 * time.Second
	defaultSettleDelay     = 1 * time.Second
	defaultRestartBackoff  = 5 * time.Second
	defaultStopTimeout     = 10 * time.Second
	defaultWatchInterval   = 30 * time.Second
	defaultQuality         = 10000
	defaultPageDelay       = 10 * time.Second
	defaultPageSize        = 10
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Platform PlatformConfig `mapstructure:"platform"`
	Recorder RecorderConfig `mapstructure:"recorder"`
	Sync     SyncConfig     `mapstructure:"sync"`
	FFmpeg   FFmpegConfig   `mapstructure:"ffmpeg"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds file storage configuration.
type StorageConfig struct {
	// RecordingsDir is the directory where raw and finalized capture
	// segments are written. Created on demand.
	RecordingsDir string `mapstructure:"recordings_dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// PlatformConfig holds creator-platform API configuration.
type PlatformConfig struct {
	// Cookie is the session cookie used to authenticate API calls that
	// require a logged-in creator account. Never logged.
	Cookie string `mapstructure:"cookie"`

	// UserAgent is sent on every platform request.
	UserAgent string `mapstructure:"user_agent"`

	// APIBaseURL is the general platform API endpoint.
	APIBaseURL string `mapstructure:"api_base_url"`

	// LiveBaseURL is the live-broadcast API endpoint.
	LiveBaseURL string `mapstructure:"live_base_url"`

	// PayBaseURL is the earnings/billing API endpoint.
	PayBaseURL string `mapstructure:"pay_base_url"`

	// MemberBaseURL is the creator-center API endpoint.
	MemberBaseURL string `mapstructure:"member_base_url"`

	// MessageBaseURL is the message-feed API endpoint.
	MessageBaseURL string `mapstructure:"message_base_url"`

	// Timeout is the per-request timeout.
	Timeout time.Duration `mapstructure:"timeout"`

	// RetryAttempts is the number of retries for failed requests.
	RetryAttempts int `mapstructure:"retry_attempts"`

	// RetryDelay is the initial delay between retries.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// RecorderConfig holds live-capture recorder configuration.
type RecorderConfig struct {
	// SettleDelay is how long to wait after killing an expired capture
	// before resolving a fresh playlist URL.
	SettleDelay time.Duration `mapstructure:"settle_delay"`

	// RestartBackoff is the fixed delay between playlist re-resolution
	// attempts during a restart.
	RestartBackoff time.Duration `mapstructure:"restart_backoff"`

	// MaxRestartAttempts bounds the re-resolution retry loop during a
	// restart. 0 means retry indefinitely.
	MaxRestartAttempts int `mapstructure:"max_restart_attempts"`

	// StopTimeout bounds the graceful-stop handshake before the process
	// is killed outright.
	StopTimeout time.Duration `mapstructure:"stop_timeout"`

	// WatchInterval is the liveness polling interval while waiting for an
	// offline room to go live.
	WatchInterval time.Duration `mapstructure:"watch_interval"`

	// Quality is the requested stream quality (platform qn value).
	Quality int `mapstructure:"quality"`
}

// SyncConfig holds platform data synchronisation configuration.
type SyncConfig struct {
	// Cron is a standard 5-field cron expression for scheduled refreshes.
	// Empty disables scheduled sync.
	Cron string `mapstructure:"cron"`

	// PageDelay is the fixed delay between paginated platform requests.
	PageDelay time.Duration `mapstructure:"page_delay"`

	// PageSize is the page size for paginated platform requests.
	PageSize int `mapstructure:"page_size"`
}

// FFmpegConfig holds FFmpeg binary configuration.
type FFmpegConfig struct {
	// BinaryPath is the path to the ffmpeg binary (empty = auto-detect).
	BinaryPath string `mapstructure:"binary_path"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with BILIDASH_ and use underscores for
// nesting. Example: BILIDASH_SERVER_PORT=8730.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/bilidash")
		v.AddConfigPath("$HOME/.bilidash")
	}

	v.SetEnvPrefix("BILIDASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file so that defaults are
// in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "bilidash.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Storage defaults
	v.SetDefault("storage.recordings_dir", "recordings")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)

	// Platform defaults
	v.SetDefault("platform.user_agent", "Mozilla/5.0")
	v.SetDefault("platform.api_base_url", "https://api.bilibili.com")
	v.SetDefault("platform.live_base_url", "https://api.live.bilibili.com")
	v.SetDefault("platform.pay_base_url", "https://pay.bilibili.com")
	v.SetDefault("platform.member_base_url", "https://member.bilibili.com")
	v.SetDefault("platform.message_base_url", "https://api.vc.bilibili.com")
	v.SetDefault("platform.timeout", defaultHTTPTimeout)
	v.SetDefault("platform.retry_attempts", defaultRetryAttempts)
	v.SetDefault("platform.retry_delay", defaultRetryDelay)

	// Recorder defaults
	v.SetDefault("recorder.settle_delay", defaultSettleDelay)
	v.SetDefault("recorder.restart_backoff", defaultRestartBackoff)
	v.SetDefault("recorder.max_restart_attempts", 0)
	v.SetDefault("recorder.stop_timeout", defaultStopTimeout)
	v.SetDefault("recorder.watch_interval", defaultWatchInterval)
	v.SetDefault("recorder.quality", defaultQuality)

	// Sync defaults
	v.SetDefault("sync.cron", "")
	v.SetDefault("sync.page_delay", defaultPageDelay)
	v.SetDefault("sync.page_size", defaultPageSize)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn must not be empty")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Storage.RecordingsDir == "" {
		return fmt.Errorf("storage.recordings_dir must not be empty")
	}

	if c.Recorder.SettleDelay < 0 {
		return fmt.Errorf("recorder.settle_delay must not be negative")
	}
	if c.Recorder.RestartBackoff <= 0 {
		return fmt.Errorf("recorder.restart_backoff must be positive")
	}
	if c.Recorder.MaxRestartAttempts < 0 {
		return fmt.Errorf("recorder.max_restart_attempts must not be negative")
	}
	if c.Recorder.StopTimeout <= 0 {
		return fmt.Errorf("recorder.stop_timeout must be positive")
	}
	if c.Recorder.WatchInterval <= 0 {
		return fmt.Errorf("recorder.watch_interval must be positive")
	}

	if c.Sync.PageSize < 1 {
		return fmt.Errorf("sync.page_size must be at least 1")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
