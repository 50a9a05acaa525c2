package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Validation errors returned by Validate.
var (
	ErrMissingHost        = errors.New("host is not configured")
	ErrMissingSpace       = errors.New("space_key is not configured")
	ErrMissingRoot        = errors.New("root_page_on_confluence is not configured")
	ErrMissingCredentials = errors.New("username and password must both be configured")
)

// Duration is a time.Duration that decodes from a Go duration string
// ("90s") or a bare number of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := parseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return v, nil
}

// Config represents the application configuration
type Config struct {
	Host           string   `yaml:"host"`
	SpaceKey       string   `yaml:"space_key"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	DBPath         string   `yaml:"db"`
	CacheBackend   string   `yaml:"cache_backend"`
	RootPage       string   `yaml:"root_page_on_confluence"`
	LogPath        string   `yaml:"log_path"`
	LogLevel       string   `yaml:"log_level"`
	LogFormat      string   `yaml:"log_format"`
	MaxRetries     int      `yaml:"max_retries"`
	RetryInterval  Duration `yaml:"retry_interval"`
	RequestTimeout Duration `yaml:"request_timeout"`
	DryRun         bool     `yaml:"dry_run"`
	MetricsPushURL string   `yaml:"metrics_push_url"`
	MetricsJob     string   `yaml:"metrics_job"`

	// Source is the config file that was read, if any.
	Source string `yaml:"-"`
}

// Defaults returns a Config populated with default values.
func Defaults() *Config {
	return &Config{
		DBPath:         "visited.db",
		CacheBackend:   "sqlite",
		LogPath:        "labelsync.log",
		LogLevel:       "info",
		LogFormat:      "console",
		MaxRetries:     300,
		RetryInterval:  Duration(time.Minute),
		RequestTimeout: Duration(time.Minute),
		MetricsJob:     "labelsync",
	}
}

// Load loads configuration from multiple sources with precedence:
// 1. Environment variables
// 2. ./.env.local (dotenv) - walks up parent directories to find it
// 3. The config file: path if given, else LABELSYNC_CONFIG, else the
// first of ./constants.json, ./labelsync.yaml, ~/.config/labelsync/config.yaml
func Load(path string) (*Config, error) {
	cfg := Defaults()

	// Load .env.local if it exists (walking up parent directories)
	if envPath := findEnvLocal(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	if path == "" {
		path = os.Getenv("LABELSYNC_CONFIG")
	}
	explicit := path != ""
	if !explicit {
		path = findConfigFile()
	}
	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		} else {
			cfg.Source = path
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if cfg.Host != "" && !strings.HasSuffix(cfg.Host, "/") {
		cfg.Host += "/"
	}
	return cfg, nil
}

// loadFile reads a YAML or JSON config file into cfg.
func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	// JSON is a subset of YAML, so constants.json parses the same way.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// findConfigFile returns the first existing default config file.
func findConfigFile() string {
	candidates := []string{"constants.json", "labelsync.yaml"}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".config", "labelsync", "config.yaml"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("LABELSYNC_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("LABELSYNC_SPACE_KEY"); v != "" {
		cfg.SpaceKey = v
	}
	if v := os.Getenv("LABELSYNC_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := getEnvOrFile("LABELSYNC_PASSWORD", "LABELSYNC_PASSWORD_FILE"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("LABELSYNC_DB"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("LABELSYNC_CACHE_BACKEND"); v != "" {
		cfg.CacheBackend = v
	}
	if v := os.Getenv("LABELSYNC_ROOT_PAGE"); v != "" {
		cfg.RootPage = v
	}
	if v := os.Getenv("LABELSYNC_LOG_PATH"); v != "" {
		cfg.LogPath = v
	}
	if v := os.Getenv("LABELSYNC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LABELSYNC_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("LABELSYNC_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LABELSYNC_MAX_RETRIES: %w", err)
		}
		cfg.MaxRetries = n
	}
	if v := os.Getenv("LABELSYNC_RETRY_INTERVAL"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("LABELSYNC_RETRY_INTERVAL: %w", err)
		}
		cfg.RetryInterval = Duration(d)
	}
	if v := os.Getenv("LABELSYNC_REQUEST_TIMEOUT"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("LABELSYNC_REQUEST_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = Duration(d)
	}
	if v := os.Getenv("LABELSYNC_DRY_RUN"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LABELSYNC_DRY_RUN: %w", err)
		}
		cfg.DryRun = b
	}
	if v := os.Getenv("LABELSYNC_METRICS_PUSH_URL"); v != "" {
		cfg.MetricsPushURL = v
	}
	if v := os.Getenv("LABELSYNC_METRICS_JOB"); v != "" {
		cfg.MetricsJob = v
	}
	return nil
}

// Validate reports the first missing setting required for a run.
func (c *Config) Validate() error {
	switch {
	case c.Host == "":
		return ErrMissingHost
	case c.SpaceKey == "":
		return ErrMissingSpace
	case c.RootPage == "":
		return ErrMissingRoot
	case c.Username == "" || c.Password == "":
		return ErrMissingCredentials
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1, got %d", c.MaxRetries)
	}
	return nil
}

// getEnvOrFile gets an environment variable value, or reads it from a file
// if the _FILE variant is set
func getEnvOrFile(envVar, fileVar string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}

	if filePath := os.Getenv(fileVar); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimRight(string(data), "\r\n")
		}
	}

	return ""
}

// findEnvLocal searches for .env.local starting from cwd and walking up
// parent directories. Stops at the user's home directory.
// Returns the path to .env.local if found, empty string otherwise.
func findEnvLocal() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// If we can't get home dir, just check cwd
		if _, err := os.Stat(".env.local"); err == nil {
			return ".env.local"
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	homeDir = filepath.Clean(homeDir)
	dir := filepath.Clean(cwd)

	for {
		envPath := filepath.Join(dir, ".env.local")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}

		if dir == homeDir {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}

		dir = parent
	}

	return ""
}

// Duration returns d as a time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
