package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/imkarma/taskhive/internal/masterlist"
	"github.com/imkarma/taskhive/internal/pathguard"
)

// EnvPrefix is the prefix of environment variables that override the file.
const EnvPrefix = "TASKHIVE"

// Config is the root configuration for a taskhive workspace.
type Config struct {
	Version int `yaml:"version" mapstructure:"version"`

	// Import settings.
	AllowedRoots      []string      `yaml:"allowed_roots" mapstructure:"allowed_roots"`
	AllowedExtensions []string      `yaml:"allowed_extensions" mapstructure:"allowed_extensions"`
	EnforceExtension  bool          `yaml:"enforce_extension" mapstructure:"enforce_extension"`
	MaxFileSize       int64         `yaml:"max_file_size" mapstructure:"max_file_size"`
	FallbackPhase     string        `yaml:"fallback_phase" mapstructure:"fallback_phase"`
	ImportTimeout     time.Duration `yaml:"import_timeout" mapstructure:"import_timeout"`
	ImportWorkers     int           `yaml:"import_workers" mapstructure:"import_workers"`

	// Runtime.
	DBPath    string `yaml:"db_path" mapstructure:"db_path"`
	HTTPAddr  string `yaml:"http_addr" mapstructure:"http_addr"`
	LogLevel  string `yaml:"log_level" mapstructure:"log_level"`
	LogFormat string `yaml:"log_format" mapstructure:"log_format"`
	Agent     string `yaml:"agent,omitempty" mapstructure:"agent"` // default agent id for claim/release
}

// Load reads the config file at the given path and applies TASKHIVE_*
// environment overrides on top of it.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return decode(v)
}

// LoadOrDefault behaves like Load but falls back to defaults plus
// environment overrides when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return decode(newViper())
}

// Save writes the config to the given path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns a starter config. The workspace directory "." is the
// only allowed import root.
func DefaultConfig() *Config {
	return &Config{
		Version:           1,
		AllowedRoots:      []string{"."},
		AllowedExtensions: append([]string(nil), pathguard.DefaultExtensions...),
		EnforceExtension:  true,
		MaxFileSize:       pathguard.DefaultMaxFileSize,
		FallbackPhase:     masterlist.FallbackPhase,
		ImportTimeout:     30 * time.Second,
		ImportWorkers:     4,
		DBPath:            ".taskhive/taskhive.db",
		HTTPAddr:          "127.0.0.1:8420",
		LogLevel:          "info",
		LogFormat:         "text",
	}
}

// PathOptions converts the import settings into validator options.
func (c *Config) PathOptions() pathguard.Options {
	return pathguard.Options{
		AllowedRoots:      c.AllowedRoots,
		AllowedExtensions: c.AllowedExtensions,
		EnforceExtension:  c.EnforceExtension,
		MaxFileSize:       c.MaxFileSize,
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	def := DefaultConfig()
	v.SetDefault("version", def.Version)
	v.SetDefault("allowed_roots", def.AllowedRoots)
	v.SetDefault("allowed_extensions", def.AllowedExtensions)
	v.SetDefault("enforce_extension", def.EnforceExtension)
	v.SetDefault("max_file_size", def.MaxFileSize)
	v.SetDefault("fallback_phase", def.FallbackPhase)
	v.SetDefault("import_timeout", def.ImportTimeout)
	v.SetDefault("import_workers", def.ImportWorkers)
	v.SetDefault("db_path", def.DBPath)
	v.SetDefault("http_addr", def.HTTPAddr)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_format", def.LogFormat)
	v.SetDefault("agent", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.AllowedRoots) == 0 {
		return fmt.Errorf("allowed_roots: at least one directory is required")
	}
	for i, root := range c.AllowedRoots {
		if strings.TrimSpace(root) == "" {
			return fmt.Errorf("allowed_roots[%d]: empty path", i)
		}
	}
	for i, ext := range c.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("allowed_extensions[%d]: %q must start with a dot", i, ext)
		}
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max_file_size must be positive, got %d", c.MaxFileSize)
	}
	if c.ImportTimeout <= 0 {
		return fmt.Errorf("import_timeout must be positive, got %s", c.ImportTimeout)
	}
	if c.ImportWorkers < 1 {
		return fmt.Errorf("import_workers must be at least 1, got %d", c.ImportWorkers)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}
