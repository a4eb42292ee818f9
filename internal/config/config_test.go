package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dl-alexandre/memora/internal/types"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.DefaultProfile != "default" {
		t.Errorf("Expected default profile 'default', got '%s'", cfg.DefaultProfile)
	}

	if cfg.DefaultOutputFormat != types.OutputFormatJSON {
		t.Errorf("Expected default output format 'json', got '%s'", cfg.DefaultOutputFormat)
	}

	if cfg.ServerURL != "http://localhost:8000/v1" {
		t.Errorf("Expected server URL 'http://localhost:8000/v1', got '%s'", cfg.ServerURL)
	}

	if cfg.ScanInterval != 5 {
		t.Errorf("Expected scan interval 5, got %d", cfg.ScanInterval)
	}

	if cfg.Workers != 4 {
		t.Errorf("Expected workers 4, got %d", cfg.Workers)
	}

	if cfg.MaxRetries != 2 {
		t.Errorf("Expected max retries 2, got %d", cfg.MaxRetries)
	}

	if cfg.LogLevel != "normal" {
		t.Errorf("Expected log level 'normal', got '%s'", cfg.LogLevel)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate, got: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{
			name:     "invalid output format",
			mutate:   func(c *Config) { c.DefaultOutputFormat = types.OutputFormat("invalid") },
			errorMsg: "invalid output format",
		},
		{
			name:     "relative server URL",
			mutate:   func(c *Config) { c.ServerURL = "/v1" },
			errorMsg: "invalid server URL",
		},
		{
			name:     "unsupported scheme",
			mutate:   func(c *Config) { c.ServerURL = "ftp://example.com/v1" },
			errorMsg: "invalid server URL",
		},
		{
			name:     "zero scan interval",
			mutate:   func(c *Config) { c.ScanInterval = 0 },
			errorMsg: "scan interval must be between",
		},
		{
			name:     "zero workers",
			mutate:   func(c *Config) { c.Workers = 0 },
			errorMsg: "workers must be between 1 and 256",
		},
		{
			name:     "max retries too high",
			mutate:   func(c *Config) { c.MaxRetries = 11 },
			errorMsg: "max retries must be between 0 and 10",
		},
		{
			name:     "retry base delay too low",
			mutate:   func(c *Config) { c.RetryBaseDelay = 50 },
			errorMsg: "retry base delay must be between 100ms and 60000ms",
		},
		{
			name:     "request timeout out of range",
			mutate:   func(c *Config) { c.RequestTimeout = 3700 },
			errorMsg: "request timeout must be between 1 and 3600 seconds",
		},
		{
			name:     "invalid log level",
			mutate:   func(c *Config) { c.LogLevel = "invalid" },
			errorMsg: "invalid log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Expected error containing '%s', got nil", tt.errorMsg)
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error containing '%s', got '%s'", tt.errorMsg, err.Error())
			}
		})
	}
}

func TestConfigDurationGetters(t *testing.T) {
	cfg := &Config{
		ScanInterval:   5,
		RetryBaseDelay: 1000,
		RequestTimeout: 60,
	}

	if d := cfg.GetScanInterval(); d != 5*time.Second {
		t.Errorf("Expected scan interval 5s, got %v", d)
	}

	if d := cfg.GetRetryBaseDelay(); d != 1000*time.Millisecond {
		t.Errorf("Expected retry base delay 1000ms, got %v", d)
	}

	if d := cfg.GetRequestTimeout(); d != 60*time.Second {
		t.Errorf("Expected request timeout 60s, got %v", d)
	}
}

func TestGetIndexPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MEMORA_CONFIG_DIR", dir)

	cfg := DefaultConfig()
	got, err := cfg.GetIndexPath()
	if err != nil {
		t.Fatalf("GetIndexPath() error = %v", err)
	}
	if want := filepath.Join(dir, "index.db"); got != want {
		t.Errorf("GetIndexPath() = %s, want %s", got, want)
	}

	cfg.IndexPath = "/var/lib/memora/index.db"
	got, err = cfg.GetIndexPath()
	if err != nil {
		t.Fatalf("GetIndexPath() error = %v", err)
	}
	if got != "/var/lib/memora/index.db" {
		t.Errorf("GetIndexPath() = %s, want explicit path", got)
	}
}

func TestConfigSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MEMORA_CONFIG_DIR", dir)

	cfg := DefaultConfig()
	cfg.DefaultProfile = "test-profile"
	cfg.DefaultOutputFormat = types.OutputFormatTable
	cfg.ServerURL = "https://sync.example.com/v1"
	cfg.ScanInterval = 30
	cfg.Workers = 8
	cfg.ExcludePatterns = []string{"*.tmp", "node_modules/"}
	cfg.LogLevel = "verbose"

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, ConfigFileName))
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config file mode = %o, want 600", perm)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loaded.DefaultProfile != cfg.DefaultProfile {
		t.Errorf("Expected profile '%s', got '%s'", cfg.DefaultProfile, loaded.DefaultProfile)
	}
	if loaded.ServerURL != cfg.ServerURL {
		t.Errorf("Expected server URL '%s', got '%s'", cfg.ServerURL, loaded.ServerURL)
	}
	if loaded.ScanInterval != 30 || loaded.Workers != 8 {
		t.Errorf("Expected interval 30 and workers 8, got %d and %d", loaded.ScanInterval, loaded.Workers)
	}
	if len(loaded.ExcludePatterns) != 2 || loaded.ExcludePatterns[1] != "node_modules/" {
		t.Errorf("Unexpected exclude patterns: %v", loaded.ExcludePatterns)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Workers != 4 {
		t.Errorf("Expected default workers, got %d", cfg.Workers)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"workers": 0}`), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Error("Expected validation error for workers=0")
	}

	if err := os.WriteFile(path, []byte(`{not json`), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Error("Expected parse error for malformed file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MEMORA_DEFAULT_PROFILE", "env-profile")
	t.Setenv("MEMORA_OUTPUT_FORMAT", "table")
	t.Setenv("MEMORA_SERVER_URL", "http://10.0.0.5:8000/v1")
	t.Setenv("MEMORA_SCAN_INTERVAL", "15")
	t.Setenv("MEMORA_WORKERS", "2")
	t.Setenv("MEMORA_MAX_RETRIES", "7")
	t.Setenv("MEMORA_EXCLUDE", "*.swp, .cache/ ,")
	t.Setenv("MEMORA_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	cfg.loadFromEnv()

	if cfg.DefaultProfile != "env-profile" {
		t.Errorf("Expected profile 'env-profile', got '%s'", cfg.DefaultProfile)
	}
	if cfg.DefaultOutputFormat != types.OutputFormatTable {
		t.Errorf("Expected output format 'table', got '%s'", cfg.DefaultOutputFormat)
	}
	if cfg.ServerURL != "http://10.0.0.5:8000/v1" {
		t.Errorf("Expected env server URL, got '%s'", cfg.ServerURL)
	}
	if cfg.ScanInterval != 15 {
		t.Errorf("Expected scan interval 15, got %d", cfg.ScanInterval)
	}
	if cfg.Workers != 2 {
		t.Errorf("Expected workers 2, got %d", cfg.Workers)
	}
	if cfg.MaxRetries != 7 {
		t.Errorf("Expected max retries 7, got %d", cfg.MaxRetries)
	}
	if len(cfg.ExcludePatterns) != 2 || cfg.ExcludePatterns[0] != "*.swp" || cfg.ExcludePatterns[1] != ".cache/" {
		t.Errorf("Unexpected exclude patterns: %q", cfg.ExcludePatterns)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level 'debug', got '%s'", cfg.LogLevel)
	}
}

func TestConfigSet(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Set("workers", "16"); err != nil {
		t.Fatalf("Set(workers) error = %v", err)
	}
	if cfg.Workers != 16 {
		t.Errorf("Workers = %d, want 16", cfg.Workers)
	}

	if err := cfg.Set("workers", "many"); err == nil {
		t.Error("Expected error for non-integer workers")
	}
	if err := cfg.Set("scanInterval", "0"); err == nil {
		t.Error("Expected validation error for scanInterval=0")
	}
	if err := cfg.Set("nope", "1"); err == nil {
		t.Error("Expected error for unknown key")
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"true", true},
		{"True", true},
		{"1", true},
		{"yes", true},
		{"on", true},
		{"false", false},
		{"0", false},
		{"off", false},
		{"", false},
		{"invalid", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseBool(tt.input)
			if got != tt.want {
				t.Errorf("parseBool(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
