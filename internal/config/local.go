package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the default config file location.
const EnvConfigPath = "ADDIN_TEST_SERVER_CONFIG"

// DefaultPort is the port Office add-in test clients post to unless told otherwise.
const DefaultPort = 4201

// Config represents the root configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	TLS       TLSConfig       `yaml:"tls"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Results   ResultsConfig   `yaml:"results"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig configures the HTTPS listener
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
	// RelaxTLSValidation makes clients built by the server skip peer
	// verification. Only for local test runs.
	RelaxTLSValidation bool `yaml:"relax_tls_validation"`
}

// TLSConfig selects the certificate source. Empty paths mean an ephemeral
// self-signed certificate.
type TLSConfig struct {
	CertPath string        `yaml:"cert_path"`
	KeyPath  string        `yaml:"key_path"`
	ValidFor time.Duration `yaml:"valid_for"`
}

// TelemetryConfig configures usage-event recording
type TelemetryConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SQLitePath string `yaml:"sqlite_path"`
}

// ResultsConfig configures how the serve command waits for and judges results
type ResultsConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	PassCondition string        `yaml:"pass_condition"`
	OutputPath    string        `yaml:"output_path"`
}

// LogConfig configures pkg/logger
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const DefaultConfigTemplate = `server:
  port: 4201
  # Empty listens on all interfaces.
  host: ""
  relax_tls_validation: false
tls:
  # Leave empty to use an ephemeral self-signed certificate.
  cert_path: ""
  key_path: ""
  valid_for: 24h
telemetry:
  enabled: true
  sqlite_path: ""
results:
  timeout: 10m
  pass_condition: ""
  output_path: ""
log:
  level: "info"
  format: "text"
`

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: DefaultPort,
		},
		TLS: TLSConfig{
			ValidFor: 24 * time.Hour,
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
		},
		Results: ResultsConfig{
			Timeout: 10 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath returns ~/.config/addin-test-server/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".config", "addin-test-server", "config.yaml"), nil
}

// Load reads the configuration from path, then ADDIN_TEST_SERVER_CONFIG, then
// the default location. An explicitly named file must exist; a missing
// default file yields Default().
func Load(path string) (*Config, error) {
	explicit := true
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		explicit = false
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	f, err := os.Open(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	conf := Default()
	if err := yaml.Unmarshal(data, conf); err != nil {
		return nil, fmt.Errorf("failed to parse yaml config: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Validate checks value ranges that yaml decoding cannot.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got %d", c.Server.Port)
	}
	if (c.TLS.CertPath == "") != (c.TLS.KeyPath == "") {
		return fmt.Errorf("tls configuration requires both cert_path and key_path")
	}
	if c.Results.Timeout < 0 {
		return fmt.Errorf("results.timeout must not be negative")
	}
	return nil
}

// WriteTemplate writes DefaultConfigTemplate to path, creating parent
// directories. Existing files are left alone unless overwrite is set.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(DefaultConfigTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write default config template: %w", err)
	}
	return nil
}
