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

	"gopkg.in/yaml.v3"
)

const (
	HistoryBackendFile  = "file"
	HistoryBackendRedis = "redis"
	HistoryBackendBlob  = "blob"
)

type Config struct {
	ServerURL             string        `json:"server_url" yaml:"server_url"`
	DownloadPath          string        `json:"download_path" yaml:"download_path"`
	Port                  int           `json:"port" yaml:"port"`
	DefaultSaveLocation   string        `json:"default_save_location" yaml:"default_save_location"`
	VerboseLogging        bool          `json:"verbose_logging" yaml:"verbose_logging"`
	RequestTimeoutSeconds int           `json:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	RetryAttempts         int           `json:"retry_attempts" yaml:"retry_attempts"`
	Polling               PollingConfig `json:"polling" yaml:"polling"`
	History               HistoryConfig `json:"history" yaml:"history"`
}

// PollingConfig controls the progress tracker cadence.
type PollingConfig struct {
	FastIntervalMs  int `json:"fast_interval_ms" yaml:"fast_interval_ms"`
	SlowIntervalMs  int `json:"slow_interval_ms" yaml:"slow_interval_ms"`
	FastTicks       int `json:"fast_ticks" yaml:"fast_ticks"`
	NavigateDelayMs int `json:"navigate_delay_ms" yaml:"navigate_delay_ms"`
}

// HistoryConfig selects where download history is kept.
type HistoryConfig struct {
	Backend       string `json:"backend" yaml:"backend"`
	Path          string `json:"path,omitempty" yaml:"path,omitempty"`
	Key           string `json:"key,omitempty" yaml:"key,omitempty"`
	RedisAddr     string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
	RedisPassword string `json:"redis_password,omitempty" yaml:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty" yaml:"redis_db,omitempty"`
	BlobURL       string `json:"blob_url,omitempty" yaml:"blob_url,omitempty"`
}

func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	downloadPath := filepath.Join(homeDir, "Downloads", "dydownloader")

	return &Config{
		ServerURL:             "http://localhost:5000",
		DownloadPath:          downloadPath,
		Port:                  8090,
		DefaultSaveLocation:   "default",
		VerboseLogging:        false,
		RequestTimeoutSeconds: 30,
		RetryAttempts:         3,
		Polling: PollingConfig{
			FastIntervalMs:  250,
			SlowIntervalMs:  1000,
			FastTicks:       20,
			NavigateDelayMs: 500,
		},
		History: HistoryConfig{
			Backend: HistoryBackendFile,
			Path:    filepath.Join(homeDir, ".dydownloader", "history.json"),
			Key:     "downloadHistory",
		},
	}
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (p PollingConfig) FastInterval() time.Duration {
	return time.Duration(p.FastIntervalMs) * time.Millisecond
}

func (p PollingConfig) SlowInterval() time.Duration {
	return time.Duration(p.SlowIntervalMs) * time.Millisecond
}

func (p PollingConfig) NavigateDelay() time.Duration {
	return time.Duration(p.NavigateDelayMs) * time.Millisecond
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads the config file, creating it with defaults when it does not
// exist. Files ending in .yaml or .yml are parsed as YAML, anything else as
// JSON. Fields missing from the file keep their default values.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if isYAML(configPath) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Redacted returns a copy without credentials, safe to hand to API clients.
func (c *Config) Redacted() *Config {
	cp := *c
	cp.History.RedisPassword = ""
	return &cp
}

// ApplyEnv overrides the server URL and port from DYDL_SERVER and DYDL_PORT.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("DYDL_SERVER"); v != "" {
		c.ServerURL = v
	}
	if v := os.Getenv("DYDL_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DYDL_PORT %q: %w", v, err)
		}
		c.Port = port
	}
	return nil
}

func (c *Config) Save(configPath string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(configPath) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url cannot be empty")
	}

	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server_url must be an absolute http(s) URL")
	}

	if c.DownloadPath == "" {
		return fmt.Errorf("download_path cannot be empty")
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}

	if c.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("request_timeout_seconds must be positive")
	}

	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts cannot be negative")
	}

	if c.Polling.FastIntervalMs <= 0 || c.Polling.SlowIntervalMs <= 0 {
		return fmt.Errorf("polling intervals must be positive")
	}

	if c.Polling.FastTicks <= 0 {
		return fmt.Errorf("polling.fast_ticks must be positive")
	}

	if c.Polling.NavigateDelayMs < 0 {
		return fmt.Errorf("polling.navigate_delay_ms cannot be negative")
	}

	switch c.History.Backend {
	case HistoryBackendFile:
		if c.History.Path == "" {
			return fmt.Errorf("history.path cannot be empty for the file backend")
		}
	case HistoryBackendRedis:
		if c.History.RedisAddr == "" {
			return fmt.Errorf("history.redis_addr cannot be empty for the redis backend")
		}
	case HistoryBackendBlob:
		if c.History.BlobURL == "" {
			return fmt.Errorf("history.blob_url cannot be empty for the blob backend")
		}
	default:
		return fmt.Errorf("history.backend must be one of file, redis, blob")
	}

	return nil
}
