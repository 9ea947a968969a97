package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"

	EnvEnvironment = "GIBLETS_ENV"
	EnvCacheDir    = "GIBLETS_CACHE_DIR"
	EnvOutputDir   = "GIBLETS_OUTPUT_DIR"
	EnvRedisURL    = "GIBLETS_REDIS_URL"
	EnvAdapt       = "GIBLETS_ADAPT"
	EnvToken       = "GITHUB_TOKEN"

	DefaultEnvironment      = "development"
	DefaultManifestFileName = "giblets.json"
	DefaultCacheDirName     = ".giblets"
	DefaultOutputDir        = "giblets"
	DefaultRawBaseURL       = "https://raw.githubusercontent.com/"
	DefaultUserAgent        = "giblets/dev"
	DefaultTimeout          = 30 * time.Second
	DefaultWorkers          = 8
	DefaultReportFileName   = "giblets.html"
)

type LogLevel string

type FetchConfig struct {
	RawBaseURL string        `yaml:"raw_base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	UserAgent  string        `yaml:"user_agent"`
	Token      string        `yaml:"token"`
}

type ReportConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FileName         string `yaml:"filename"`
	TemplateFileName string `yaml:"template_filename"`
}

type Config struct {
	Environment      string       `yaml:"environment"`
	Env              string       `yaml:"env"`
	Adapt            *bool        `yaml:"adapt"`
	CacheDir         string       `yaml:"cache_dir"`
	OutputDir        string       `yaml:"output_dir"`
	ManifestFileName string       `yaml:"manifest"`
	Workers          int          `yaml:"workers"`
	LogLevel         LogLevel     `yaml:"log_level"`
	RedisURL         string       `yaml:"redis_url"`
	Fetch            FetchConfig  `yaml:"fetch"`
	Report           ReportConfig `yaml:"report"`
}

func (c *Config) SetDefaults() {
	if c.CacheDir == "" {
		if wd, err := os.Getwd(); err == nil {
			c.CacheDir = filepath.Join(wd, DefaultCacheDirName)
		} else {
			c.CacheDir = DefaultCacheDirName
		}
	}

	if c.OutputDir == "" {
		c.OutputDir = DefaultOutputDir
	}

	if c.ManifestFileName == "" {
		c.ManifestFileName = DefaultManifestFileName
	}

	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}

	if c.LogLevel == "" {
		c.LogLevel = LogLevelInfo
	}

	if c.Fetch.RawBaseURL == "" {
		c.Fetch.RawBaseURL = DefaultRawBaseURL
	}

	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = DefaultTimeout
	}

	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = DefaultUserAgent
	}

	if c.Report.FileName == "" {
		c.Report.FileName = DefaultReportFileName
	}
}

// EnvironmentName returns the active environment; "env" is accepted as an alias.
func (c *Config) EnvironmentName() string {
	switch {
	case c.Environment != "":
		return c.Environment
	case c.Env != "":
		return c.Env
	}

	return DefaultEnvironment
}

// AdaptDefault is the run-level adapt flag, true unless configured otherwise.
func (c *Config) AdaptDefault() bool {
	if c.Adapt == nil {
		return true
	}

	return *c.Adapt
}

func (c *Config) Validate() error {
	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
	default:
		return fmt.Errorf("unknown log level: %s", c.LogLevel)
	}

	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative: %d", c.Workers)
	}

	if c.Fetch.Timeout < 0 {
		return fmt.Errorf("fetch timeout must not be negative: %s", c.Fetch.Timeout)
	}

	return nil
}

// Load reads the config file, the .env file next to the working directory and
// environment overrides. A missing config file yields the defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("cannot load .env file: %w", err)
	}

	return LoadWith(path, os.Getenv)
}

// LoadWith is Load without touching .env, with the environment read through getenv.
func LoadWith(path string, getenv func(string) string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv(EnvEnvironment); v != "" {
		c.Environment = v
	}

	if v := getenv(EnvCacheDir); v != "" {
		c.CacheDir = v
	}

	if v := getenv(EnvOutputDir); v != "" {
		c.OutputDir = v
	}

	if v := getenv(EnvRedisURL); v != "" {
		c.RedisURL = v
	}

	if v := getenv(EnvToken); v != "" && c.Fetch.Token == "" {
		c.Fetch.Token = v
	}

	if v := getenv(EnvAdapt); v != "" {
		adapt, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("cannot parse %s: %w", EnvAdapt, err)
		}
		c.Adapt = &adapt
	}

	return nil
}
