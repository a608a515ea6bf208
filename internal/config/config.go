// Package config manages the geosync configuration file. Values come from
// geosync.toml, are overridden by GEOSYNC_* environment variables and an
// optional .env file next to the configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/models"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/upsert"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
)

const (
	ConfigFile   = "geosync.toml"
	EnvFile      = ".env"
	EnvPrefix    = "GEOSYNC"
	DatabaseFile = "geosync.db"
)

// Config represents the geosync configuration
type Config struct {
	Database DatabaseConfig `toml:"database" envconfig:"DATABASE"`
	Server   ServerConfig   `toml:"server" envconfig:"SERVER"`
	Log      LogConfig      `toml:"log" envconfig:"LOG"`
	Redis    RedisConfig    `toml:"redis" envconfig:"REDIS"`
	Webhook  WebhookConfig  `toml:"webhook" envconfig:"WEBHOOK"`
	S3       S3Config       `toml:"s3" envconfig:"S3"`
	Weaviate WeaviateConfig `toml:"weaviate" envconfig:"WEAVIATE"`
	Engine   EngineConfig   `toml:"engine" envconfig:"ENGINE"`
	Rules    RulesConfig    `toml:"rules" envconfig:"RULES"`

	path string // path to geosync.toml
}

type DatabaseConfig struct {
	Driver string `toml:"driver" envconfig:"DRIVER"` // sqlite or postgres
	DSN    string `toml:"dsn" envconfig:"DSN"`
}

type ServerConfig struct {
	Addr                   string `toml:"addr" envconfig:"ADDR"`
	JWTSecret              string `toml:"jwt_secret,omitempty" envconfig:"JWT_SECRET"`
	ShutdownTimeoutSeconds int    `toml:"shutdown_timeout_seconds" envconfig:"SHUTDOWN_TIMEOUT_SECONDS"`
}

type LogConfig struct {
	Level  string `toml:"level" envconfig:"LEVEL"`
	Format string `toml:"format" envconfig:"FORMAT"` // text or json
}

type RedisConfig struct {
	Addr          string `toml:"addr,omitempty" envconfig:"ADDR"`
	Password      string `toml:"password,omitempty" envconfig:"PASSWORD"`
	DB            int    `toml:"db" envconfig:"DB"`
	ChannelPrefix string `toml:"channel_prefix" envconfig:"CHANNEL_PREFIX"`
}

type WebhookConfig struct {
	URLs           []string `toml:"urls" envconfig:"URLS"`
	TimeoutSeconds int      `toml:"timeout_seconds" envconfig:"TIMEOUT_SECONDS"`
	MaxRetries     int      `toml:"max_retries" envconfig:"MAX_RETRIES"`
}

type S3Config struct {
	Bucket          string `toml:"bucket,omitempty" envconfig:"BUCKET"`
	Region          string `toml:"region,omitempty" envconfig:"REGION"`
	Endpoint        string `toml:"endpoint,omitempty" envconfig:"ENDPOINT"`
	Prefix          string `toml:"prefix,omitempty" envconfig:"PREFIX"`
	AccessKeyID     string `toml:"access_key_id,omitempty" envconfig:"ACCESS_KEY_ID"`
	SecretAccessKey string `toml:"secret_access_key,omitempty" envconfig:"SECRET_ACCESS_KEY"`
	PathStyle       bool   `toml:"path_style" envconfig:"PATH_STYLE"`
}

type WeaviateConfig struct {
	URL string `toml:"url,omitempty" envconfig:"URL"`
}

type EngineConfig struct {
	MaxUpdateHistory int      `toml:"max_update_history" envconfig:"MAX_UPDATE_HISTORY"`
	UpdateRetries    int      `toml:"update_retries" envconfig:"UPDATE_RETRIES"`
	RetryBackoffMs   int      `toml:"retry_backoff_ms" envconfig:"RETRY_BACKOFF_MS"`
	CompareIgnore    []string `toml:"compare_ignore" envconfig:"COMPARE_IGNORE"`
}

type RulesConfig struct {
	SourceAliases     map[string]string `toml:"source_aliases" envconfig:"SOURCE_ALIASES"`
	OpenAccessRoles   []string          `toml:"open_access_roles" envconfig:"OPEN_ACCESS_ROLES"`
	ClosedAccessRoles []string          `toml:"closed_access_roles" envconfig:"CLOSED_ACCESS_ROLES"`
}

// Default returns the built-in configuration
func Default() *Config {
	rules := models.DefaultRulesConfig()
	return &Config{
		Database: DatabaseConfig{Driver: "sqlite", DSN: DatabaseFile},
		Server:   ServerConfig{Addr: ":8080", ShutdownTimeoutSeconds: 10},
		Log:      LogConfig{Level: "info", Format: "text"},
		Redis:    RedisConfig{ChannelPrefix: "geosync"},
		Webhook:  WebhookConfig{TimeoutSeconds: 10, MaxRetries: 3},
		S3:       S3Config{Region: "us-east-1"},
		Engine: EngineConfig{
			MaxUpdateHistory: rules.MaxUpdateHistory,
			RetryBackoffMs:   50,
		},
		Rules: RulesConfig{
			SourceAliases:     rules.SourceAliases,
			OpenAccessRoles:   rules.OpenAccessRoles,
			ClosedAccessRoles: rules.ClosedAccessRoles,
		},
	}
}

// FindConfig finds geosync.toml by walking up from the current directory
func FindConfig() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		p := filepath.Join(dir, ConfigFile)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%s not found (run geosync init)", ConfigFile)
		}
		dir = parent
	}
}

// Load reads the configuration at path, or the nearest geosync.toml when
// path is empty, and applies environment overrides
func Load(path string) (*Config, error) {
	if path == "" {
		found, err := FindConfig()
		if err != nil {
			return nil, err
		}
		path = found
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.path = path

	if err := cfg.applyEnv(filepath.Join(filepath.Dir(path), EnvFile)); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnv builds a configuration from defaults and the environment only
func LoadEnv() (*Config, error) {
	cfg := Default()
	if err := cfg.applyEnv(EnvFile); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(envFile string) error {
	// .env never overrides variables already set in the process
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return fmt.Errorf("failed to apply environment: %w", err)
	}
	return nil
}

// Validate checks values that cannot be defaulted
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn required")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unsupported log format %q", c.Log.Format)
	}
	if c.Engine.UpdateRetries < 0 {
		return fmt.Errorf("engine.update_retries must not be negative")
	}
	return nil
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(c.path, data, 0644)
}

// Path returns the path of the configuration file
func (c *Config) Path() string {
	return c.path
}

// DatabaseDSN returns the DSN with relative sqlite paths resolved against
// the configuration directory
func (c *Config) DatabaseDSN() string {
	dsn := c.Database.DSN
	if c.Database.Driver != "sqlite" || c.path == "" || filepath.IsAbs(dsn) ||
		strings.HasPrefix(dsn, "file:") || strings.HasPrefix(dsn, ":memory:") {
		return dsn
	}
	return filepath.Join(filepath.Dir(c.path), dsn)
}

// Initialize writes a default geosync.toml into dir
func Initialize(dir, driver, dsn string) (*Config, error) {
	path := filepath.Join(dir, ConfigFile)

	// Check if already initialized
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%s already exists", path)
	}

	cfg := Default()
	if driver != "" {
		cfg.Database.Driver = driver
	}
	if dsn != "" {
		cfg.Database.DSN = dsn
	}
	cfg.path = path
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := cfg.Save(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Logger builds the process logger from the log section
func (c *Config) Logger() *logrus.Logger {
	l := logrus.New()
	if lvl, err := logrus.ParseLevel(c.Log.Level); err == nil {
		l.SetLevel(lvl)
	}
	if c.Log.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l
}

// EngineRules builds the immutable engine rules
func (c *Config) EngineRules() models.Rules {
	return models.NewRules(models.RulesConfig{
		SourceAliases:     c.Rules.SourceAliases,
		OpenAccessRoles:   c.Rules.OpenAccessRoles,
		ClosedAccessRoles: c.Rules.ClosedAccessRoles,
		MaxUpdateHistory:  c.Engine.MaxUpdateHistory,
	})
}

// RetryPolicy builds the write retry policy
func (c *Config) RetryPolicy() upsert.RetryPolicy {
	p := upsert.DefaultRetryPolicy()
	p.MaxRetries = c.Engine.UpdateRetries
	if c.Engine.RetryBackoffMs > 0 {
		p.InitialBackoff = time.Duration(c.Engine.RetryBackoffMs) * time.Millisecond
	}
	return p
}

// ShutdownTimeout returns the graceful shutdown budget of the server
func (c *Config) ShutdownTimeout() time.Duration {
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// WebhookTimeout returns the per-request webhook timeout
func (c *Config) WebhookTimeout() time.Duration {
	if c.Webhook.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Webhook.TimeoutSeconds) * time.Second
}
