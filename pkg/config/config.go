// Package config loads the server configuration from the environment, an
// optional .env file and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is accepted in front of every environment variable. The
// unprefixed name is used when the prefixed one is not set.
const EnvPrefix = "REPOLENS"

// Configuration errors.
var (
	ErrInvalidPort    = errors.New("invalid port")
	ErrInvalidBackend = errors.New("invalid database backend")
	ErrInvalidValue   = errors.New("invalid value")
)

// Config holds all application configuration.
type Config struct {
	// Server
	AppName     string   `mapstructure:"app_name"`
	Port        string   `mapstructure:"port"`
	APIPrefix   string   `mapstructure:"api_prefix"`
	CORSOrigins []string `mapstructure:"cors_origins"`

	// Database
	DBBackend   string `mapstructure:"db_backend"`
	DatabaseURL string `mapstructure:"database_url"`

	// Jobs
	ReportsDir         string        `mapstructure:"reports_dir"` // empty disables report files
	Workers            int           `mapstructure:"workers"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	JobTimeout         time.Duration `mapstructure:"job_timeout"`
	GitTimeout         time.Duration `mapstructure:"git_timeout"`
	ExtractParallelism int           `mapstructure:"extract_parallelism"`
	DiscoveryDepth     int           `mapstructure:"discovery_depth"`

	// MCP
	MCPEnabled bool   `mapstructure:"mcp_enabled"`
	MCPPort    string `mapstructure:"mcp_port"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

var defaults = map[string]any{
	"app_name":            "repolens",
	"port":                "8000",
	"api_prefix":          "",
	"cors_origins":        []string{"*"},
	"db_backend":          "sqlite",
	"database_url":        "file:repolens.db",
	"reports_dir":         "./reports",
	"workers":             2,
	"poll_interval":       "2s",
	"job_timeout":         "30m",
	"git_timeout":         "5m",
	"extract_parallelism": 4,
	"discovery_depth":     2,
	"mcp_enabled":         false,
	"mcp_port":            "8090",
	"log_level":           "info",
	"log_format":          "text",
}

// Load reads the configuration. configPath names a YAML file; when empty,
// repolens.yaml is looked up in the working directory and ignored if
// missing. A .env file in the working directory is loaded first and never
// overrides variables already set.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
		upper := strings.ToUpper(key)
		if err := v.BindEnv(key, EnvPrefix+"_"+upper, upper); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("repolens")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	cfg.APIPrefix = normalizePrefix(cfg.APIPrefix)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	for name, p := range map[string]string{"port": c.Port, "mcp_port": c.MCPPort} {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 65535 {
			return fmt.Errorf("%w: %s=%q", ErrInvalidPort, name, p)
		}
	}
	switch strings.ToLower(c.DBBackend) {
	case "sqlite", "postgres", "postgresql", "mysql":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBackend, c.DBBackend)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidValue, c.Workers)
	}
	if c.ExtractParallelism <= 0 {
		return fmt.Errorf("%w: extract_parallelism must be positive, got %d", ErrInvalidValue, c.ExtractParallelism)
	}
	if c.DiscoveryDepth < 0 {
		return fmt.Errorf("%w: discovery_depth must not be negative, got %d", ErrInvalidValue, c.DiscoveryDepth)
	}
	if c.PollInterval <= 0 || c.JobTimeout <= 0 {
		return fmt.Errorf("%w: poll_interval and job_timeout must be positive", ErrInvalidValue)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidValue, c.LogFormat)
	}
	return nil
}

// splitList flattens comma separated entries and drops blanks.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// normalizePrefix returns "" or a path starting with "/" and without a
// trailing slash.
func normalizePrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}
