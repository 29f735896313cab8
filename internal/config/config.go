// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Gateway GatewayConfig `mapstructure:"gateway" yaml:"gateway"`
}

// LoggerConfig controls the zap setup.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"` // "console" or "json"
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"` // days
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig maps log levels to console colors.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
}

// BrowserConfig controls the chromedp session.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	AttemptTimeout    time.Duration `mapstructure:"attempt_timeout" yaml:"attempt_timeout"`
}

// StoreConfig selects and parameterizes the locator store backing.
type StoreConfig struct {
	Type     string         `mapstructure:"type" yaml:"type"` // "file" or "postgres"
	Path     string         `mapstructure:"path" yaml:"path"` // file backing; empty means the default under $HOME
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// PostgresConfig are the shared-store connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
	SSLMode  string `mapstructure:"ssl_mode" yaml:"ssl_mode"`
}

// DSN renders the pgx connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// GatewayConfig parameterizes the Gemini suggestion gateway.
type GatewayConfig struct {
	Enabled           bool          `mapstructure:"enabled" yaml:"enabled"`
	Model             string        `mapstructure:"model" yaml:"model"`
	Endpoint          string        `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey            string        `mapstructure:"api_key" yaml:"api_key"`
	APITimeout        time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature       float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxOutputTokens   int           `mapstructure:"max_output_tokens" yaml:"max_output_tokens"`
	RequestsPerMinute float64       `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	DigestBytes       int           `mapstructure:"digest_bytes" yaml:"digest_bytes"`
}

// globalConfig allows commands and deep call sites to share one loaded
// configuration without threading it through every constructor.
var globalConfig atomic.Pointer[Config]

// Set stores the active configuration.
func Set(cfg *Config) { globalConfig.Store(cfg) }

// Get returns the active configuration, or defaults if none was loaded.
func Get() *Config {
	if cfg := globalConfig.Load(); cfg != nil {
		return cfg
	}
	cfg := Defaults()
	return &cfg
}

// SetDefaults registers every default with viper so partial config files and
// bare environments still produce a workable setup.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "relock")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigation_timeout", 30*time.Second)
	v.SetDefault("browser.attempt_timeout", 5*time.Second)

	v.SetDefault("store.type", "file")

	v.SetDefault("gateway.enabled", true)
	v.SetDefault("gateway.model", "gemini-2.0-flash")
	v.SetDefault("gateway.api_timeout", 60*time.Second)
	v.SetDefault("gateway.temperature", 0.7)
	v.SetDefault("gateway.max_output_tokens", 1024)
	v.SetDefault("gateway.requests_per_minute", 6)
	v.SetDefault("gateway.digest_bytes", 8192)
}

// Defaults returns the configuration produced by an empty environment.
func Defaults() Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// Defaults are static and well typed; Unmarshal cannot fail on them.
	_ = v.Unmarshal(&cfg)
	return cfg
}

// Load reads the config file (explicit path, or ./config.yaml) and RELOCK_*
// environment overrides into a Config. A missing file is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.GetViper()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("RELOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}
