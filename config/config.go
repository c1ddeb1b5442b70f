// Package config defines the ACT server configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level ACT configuration.
type Config struct {
	Server   ServerConfig `json:"server" yaml:"server"`
	LogLevel string       `json:"log_level" yaml:"log_level"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"` // listen address, e.g., ":8080"
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		LogLevel: "info",
	}
}

// Load reads a YAML config file, applies environment overrides, and returns
// the parsed configuration. A missing file is not an error; defaults plus
// environment apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if addr := os.Getenv("ACT_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if level := os.Getenv("ACT_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	return cfg, nil
}
