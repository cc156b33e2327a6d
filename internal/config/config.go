// Package config provides configuration loading for the roster-mirror daemon.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment variables read via viper.
const EnvPrefix = "ROSTER"

// DefaultDepartmentID is the organizational unit whose duty roster is
// mirrored when the config does not name one.
const DefaultDepartmentID = 332

// Config represents the root configuration structure. The file is
// read-only for the application; mutable state (credentials, known shift
// kinds) lives in the profile file under DataDir instead.
type Config struct {
	// Remote describes the duty-roster service to mirror.
	Remote RemoteConfig `yaml:"remote"`

	// DataDir is where the encrypted cache, the profile file and the
	// store lock live. Defaults to the XDG data directory.
	DataDir string `yaml:"dataDir,omitempty"`

	// MetricsAddress is the listen address for the /metrics endpoint.
	// Empty disables the endpoint.
	MetricsAddress string `yaml:"metricsAddress,omitempty"`
}

// RemoteConfig defines the remote duty-roster service.
type RemoteConfig struct {
	// Endpoint is the base URL of the service, e.g.
	// "https://dienstplan.malteser.org/".
	Endpoint string `yaml:"endpoint"`

	// DepartmentID filters duty entries to one organizational unit.
	DepartmentID int64 `yaml:"departmentId,omitempty"`

	// Timeout is the fixed per-request transport timeout.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// Option configures the loader.
type Option func(*loaderConfig) error

type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file.
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}
		cfg.path = filepath.Clean(path)
		return nil
	}
}

// Load reads, parses and validates the configuration, then applies
// defaults for everything left unset.
func Load(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}
	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Remote.DepartmentID == 0 {
		c.Remote.DepartmentID = DefaultDepartmentID
	}
	if c.Remote.Timeout == 0 {
		c.Remote.Timeout = 20 * time.Second
	}
	if c.DataDir == "" {
		c.DataDir = filepath.Join(xdg.DataHome, "roster-mirror")
	}
}

// Validate performs validation on the configuration.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if c.Remote.Endpoint == "" {
		return fmt.Errorf("remote.endpoint is required")
	}
	u, err := url.Parse(c.Remote.Endpoint)
	if err != nil {
		return fmt.Errorf("remote.endpoint must be a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("remote.endpoint must be an http(s) URL, got %q", c.Remote.Endpoint)
	}

	if c.Remote.DepartmentID <= 0 {
		return fmt.Errorf("remote.departmentId must be positive, got %d", c.Remote.DepartmentID)
	}
	if c.Remote.Timeout <= 0 {
		return fmt.Errorf("remote.timeout must be positive, got %s", c.Remote.Timeout)
	}
	if c.DataDir == "" {
		return fmt.Errorf("dataDir is required")
	}

	return nil
}

// StorePath returns the path of the encrypted shift/employee store.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, "data.db")
}

// ProfilePath returns the path of the plaintext profile file.
func (c *Config) ProfilePath() string {
	return filepath.Join(c.DataDir, "configuration.json")
}
