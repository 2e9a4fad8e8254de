package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultDir            = "/var/tmp/"
	DefaultWorkerURL      = "http://localhost:8080/file/"
	DefaultMaxInFlight    = 64
	DefaultConnectTimeout = 10 * time.Second
	DefaultLogFormat      = LogFormatAuto

	// WorkerURLEnv overrides the worker base URL when set and non-empty.
	WorkerURLEnv = "WORKER_URL"
)

const (
	LogFormatAuto    = "auto"
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// Config holds everything the bridge needs at startup. It is built once and
// treated as read-only afterwards.
type Config struct {
	Dir            string        `yaml:"dir"`             // Directory to watch, non-recursively
	WorkerURL      string        `yaml:"worker_url"`      // Base URL; the file name is appended to it
	MaxInFlight    int           `yaml:"max_in_flight"`   // Upper bound on concurrent notifications
	ConnectTimeout time.Duration `yaml:"connect_timeout"` // Bound on establishing a connection to the worker
	RequestTimeout time.Duration `yaml:"request_timeout"` // Bound on a whole notification, 0 disables it
	LockPath       string        `yaml:"lock_path"`       // Optional single-instance lock file
	LogFormat      string        `yaml:"log_format"`
	Verbose        bool          `yaml:"verbose"`
}

// Default returns a Config populated with the built-in defaults.
func Default() Config {
	return Config{
		Dir:            DefaultDir,
		WorkerURL:      DefaultWorkerURL,
		MaxInFlight:    DefaultMaxInFlight,
		ConnectTimeout: DefaultConnectTimeout,
		LogFormat:      DefaultLogFormat,
	}
}

// Load builds a Config from the defaults, the optional YAML file at path, the
// environment and finally the overrides, in that order, and validates it.
// getenv is consulted exactly once, for WorkerURLEnv.
func Load(path string, getenv func(string) string, overrides ...func(*Config)) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if getenv != nil {
		if v := strings.TrimSpace(getenv(WorkerURLEnv)); v != "" {
			cfg.WorkerURL = v
		}
	}

	for _, override := range overrides {
		override(&cfg)
	}

	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) fillDefaults() {
	if c.Dir == "" {
		c.Dir = DefaultDir
	}
	if c.WorkerURL == "" {
		c.WorkerURL = DefaultWorkerURL
	}
	if c.MaxInFlight == 0 {
		c.MaxInFlight = DefaultMaxInFlight
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
}

// Validate reports the first problem found in c.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Dir) == "" {
		return errors.New("dir must not be empty")
	}

	u, err := url.Parse(c.WorkerURL)
	if err != nil {
		return fmt.Errorf("invalid worker url %q: %w", c.WorkerURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid worker url %q: want an absolute http(s) url", c.WorkerURL)
	}

	if c.MaxInFlight <= 0 {
		return fmt.Errorf("max_in_flight must be positive, got %d", c.MaxInFlight)
	}
	if c.ConnectTimeout < 0 {
		return fmt.Errorf("connect_timeout must not be negative, got %s", c.ConnectTimeout)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must not be negative, got %s", c.RequestTimeout)
	}

	switch c.LogFormat {
	case LogFormatAuto, LogFormatConsole, LogFormatJSON:
	default:
		return fmt.Errorf("unknown log_format %q", c.LogFormat)
	}
	return nil
}
