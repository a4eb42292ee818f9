package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dl-alexandre/memora/internal/types"
	"github.com/dl-alexandre/memora/internal/utils"
)

const (
	// ConfigFileName is the name of the config file
	ConfigFileName = "config.json"
	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "MEMORA_"
)

// Config holds agent configuration
type Config struct {
	// DefaultProfile selects the stored credential to use
	DefaultProfile string `json:"defaultProfile"`

	// DefaultOutputFormat is the default output format (json, table)
	DefaultOutputFormat types.OutputFormat `json:"defaultOutputFormat"`

	// ServerURL is the metadata service base URL, including the version prefix
	ServerURL string `json:"serverURL"`

	// ScanInterval is the time between scan ticks in seconds
	ScanInterval int `json:"scanInterval"`

	// Workers is the number of file pipelines allowed in flight
	Workers int `json:"workers"`

	// MaxRetries is the maximum number of retries for remote calls
	MaxRetries int `json:"maxRetries"`

	// RetryBaseDelay is the base delay for exponential backoff in milliseconds
	RetryBaseDelay int `json:"retryBaseDelay"`

	// RequestTimeout is the per-request timeout in seconds
	RequestTimeout int `json:"requestTimeout"`

	// IndexPath is the SQLite file backing the local index; empty means <config dir>/index.db
	IndexPath string `json:"indexPath,omitempty"`

	// LogLevel sets the logging verbosity (quiet, normal, verbose, debug)
	LogLevel string `json:"logLevel"`

	// LogFile receives JSON log lines in addition to the console
	LogFile string `json:"logFile,omitempty"`

	// ExcludePatterns are gitignore-style patterns skipped by the walker
	ExcludePatterns []string `json:"excludePatterns,omitempty"`

	// MetricsAddr serves Prometheus metrics when set, e.g. ":9464"
	MetricsAddr string `json:"metricsAddr,omitempty"`

	// ColorOutput enables color in console logs and tables
	ColorOutput bool `json:"colorOutput"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		DefaultProfile:      "default",
		DefaultOutputFormat: types.OutputFormatJSON,
		ServerURL:           utils.DefaultServerURL,
		ScanInterval:        int(utils.DefaultScanInterval / time.Second),
		Workers:             utils.DefaultWorkers,
		MaxRetries:          utils.DefaultMaxRetries,
		RetryBaseDelay:      utils.DefaultRetryDelayMs,
		RequestTimeout:      60,
		LogLevel:            "normal",
		ColorOutput:         true,
	}
}

// Load loads configuration with precedence: CLI flags > env vars > config file > defaults
func Load() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom is Load with an explicit config file path
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromFile(path); err != nil {
		// Config file not existing is not an error
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv(EnvPrefix + "DEFAULT_PROFILE"); v != "" {
		c.DefaultProfile = v
	}
	if v := os.Getenv(EnvPrefix + "OUTPUT_FORMAT"); v != "" {
		c.DefaultOutputFormat = types.OutputFormat(v)
	}
	if v := os.Getenv(EnvPrefix + "SERVER_URL"); v != "" {
		c.ServerURL = v
	}
	if v := os.Getenv(EnvPrefix + "SCAN_INTERVAL"); v != "" {
		if interval, err := strconv.Atoi(v); err == nil {
			c.ScanInterval = interval
		}
	}
	if v := os.Getenv(EnvPrefix + "WORKERS"); v != "" {
		if workers, err := strconv.Atoi(v); err == nil {
			c.Workers = workers
		}
	}
	if v := os.Getenv(EnvPrefix + "MAX_RETRIES"); v != "" {
		if retries, err := strconv.Atoi(v); err == nil {
			c.MaxRetries = retries
		}
	}
	if v := os.Getenv(EnvPrefix + "RETRY_BASE_DELAY"); v != "" {
		if delay, err := strconv.Atoi(v); err == nil {
			c.RetryBaseDelay = delay
		}
	}
	if v := os.Getenv(EnvPrefix + "REQUEST_TIMEOUT"); v != "" {
		if timeout, err := strconv.Atoi(v); err == nil {
			c.RequestTimeout = timeout
		}
	}
	if v := os.Getenv(EnvPrefix + "INDEX_PATH"); v != "" {
		c.IndexPath = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_FILE"); v != "" {
		c.LogFile = v
	}
	if v := os.Getenv(EnvPrefix + "EXCLUDE"); v != "" {
		c.ExcludePatterns = splitList(v)
	}
	if v := os.Getenv(EnvPrefix + "METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv(EnvPrefix + "COLOR_OUTPUT"); v != "" {
		c.ColorOutput = parseBool(v)
	}
}

// Save saves the configuration to the default config file
func (c *Config) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(configPath)
}

// SaveTo writes the configuration to path
func (c *Config) SaveTo(configPath string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to file with restricted permissions
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DefaultOutputFormat != types.OutputFormatJSON &&
		c.DefaultOutputFormat != types.OutputFormatTable {
		return fmt.Errorf("invalid output format: %s (must be 'json' or 'table')", c.DefaultOutputFormat)
	}

	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid server URL: %q (must be an absolute http or https URL)", c.ServerURL)
	}

	if c.ScanInterval < 1 || c.ScanInterval > 86400 {
		return fmt.Errorf("scan interval must be between 1 and 86400 seconds, got: %d", c.ScanInterval)
	}

	if c.Workers < 1 || c.Workers > 256 {
		return fmt.Errorf("workers must be between 1 and 256, got: %d", c.Workers)
	}

	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("max retries must be between 0 and 10, got: %d", c.MaxRetries)
	}

	if c.RetryBaseDelay < 100 || c.RetryBaseDelay > 60000 {
		return fmt.Errorf("retry base delay must be between 100ms and 60000ms, got: %d", c.RetryBaseDelay)
	}

	if c.RequestTimeout < 1 || c.RequestTimeout > 3600 {
		return fmt.Errorf("request timeout must be between 1 and 3600 seconds, got: %d", c.RequestTimeout)
	}

	validLogLevels := []string{"quiet", "normal", "verbose", "debug"}
	isValid := false
	for _, level := range validLogLevels {
		if c.LogLevel == level {
			isValid = true
			break
		}
	}
	if !isValid {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	return nil
}

// GetScanInterval returns the scan interval as a duration
func (c *Config) GetScanInterval() time.Duration {
	return time.Duration(c.ScanInterval) * time.Second
}

// GetRetryBaseDelay returns the retry base delay as a duration
func (c *Config) GetRetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelay) * time.Millisecond
}

// GetRequestTimeout returns the request timeout as a duration
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// GetIndexPath returns the configured index location or the default one
// inside the config directory
func (c *Config) GetIndexPath() (string, error) {
	if c.IndexPath != "" {
		return c.IndexPath, nil
	}
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, utils.DefaultIndexFileName), nil
}

// Set assigns a single field by its JSON name, as used by `config set`
func (c *Config) Set(key, value string) error {
	atoi := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer, got %q", key, value)
		}
		return n, nil
	}

	var err error
	switch key {
	case "defaultProfile":
		c.DefaultProfile = value
	case "defaultOutputFormat":
		c.DefaultOutputFormat = types.OutputFormat(value)
	case "serverURL":
		c.ServerURL = value
	case "scanInterval":
		c.ScanInterval, err = atoi()
	case "workers":
		c.Workers, err = atoi()
	case "maxRetries":
		c.MaxRetries, err = atoi()
	case "retryBaseDelay":
		c.RetryBaseDelay, err = atoi()
	case "requestTimeout":
		c.RequestTimeout, err = atoi()
	case "indexPath":
		c.IndexPath = value
	case "logLevel":
		c.LogLevel = value
	case "logFile":
		c.LogFile = value
	case "excludePatterns":
		c.ExcludePatterns = splitList(value)
	case "metricsAddr":
		c.MetricsAddr = value
	case "colorOutput":
		c.ColorOutput = parseBool(value)
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	if err != nil {
		return err
	}
	return c.Validate()
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, ConfigFileName), nil
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "memora"), nil
}

// parseBool parses a boolean value from a string
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
