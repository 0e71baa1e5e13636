package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all schemadiag configuration.
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Proofs      ProofsConfig      `yaml:"proofs"`
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// DatabaseConfig selects the database and the tables to introspect.
type DatabaseConfig struct {
	URL           string   `yaml:"url"`
	Schemas       []string `yaml:"schemas,omitempty"`
	Tables        []string `yaml:"tables,omitempty"`
	ExcludeTables []string `yaml:"exclude_tables,omitempty"`
}

// DiagnosticsConfig tunes constraint checking.
type DiagnosticsConfig struct {
	Concurrency int  `yaml:"concurrency"`
	SampleLimit int  `yaml:"sample_limit"`
	NotNull     bool `yaml:"not_null"`
}

// ProofsConfig locates the proof library for verification.
type ProofsConfig struct {
	CorePath   string `yaml:"core_path"`
	LakeBinary string `yaml:"lake_binary"`
	Timeout    string `yaml:"timeout"`
}

// ServerConfig configures the HTTP bridge.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Diagnostics: DiagnosticsConfig{
			Concurrency: 1,
			SampleLimit: 5,
		},
		Proofs: ProofsConfig{
			CorePath:   "core",
			LakeBinary: "lake",
			Timeout:    "10m",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:7420",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads a YAML file over the defaults, then applies environment overrides.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("SCHEMADIAG_DB_URL"); url != "" {
		c.Database.URL = url
	}
	if level := os.Getenv("SCHEMADIAG_LOG_LEVEL"); level != "" {
		c.Logging.Level = strings.ToLower(level)
	}
	if path := os.Getenv("SCHEMADIAG_PROOF_CORE"); path != "" {
		c.Proofs.CorePath = path
	}
	if addr := os.Getenv("SCHEMADIAG_HTTP_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
}

// ProofTimeout parses the proof build timeout; empty means unbounded.
func (c *Config) ProofTimeout() (time.Duration, error) {
	if c.Proofs.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Proofs.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid proofs.timeout %q: %w", c.Proofs.Timeout, err)
	}
	return d, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Diagnostics.Concurrency < 1 {
		return fmt.Errorf("diagnostics.concurrency must be >= 1")
	}
	if c.Diagnostics.SampleLimit < 1 || c.Diagnostics.SampleLimit > 5 {
		return fmt.Errorf("diagnostics.sample_limit must be between 1 and 5")
	}
	if _, err := c.ProofTimeout(); err != nil {
		return err
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging.format: %s (valid: json, console)", c.Logging.Format)
	}
	return nil
}
