// Package config loads supervisor settings from an optional YAML file.
// Command-line flags are applied on top by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full supervisor configuration.
type Config struct {
	// Socket is the filesystem path of the listening Unix socket.
	Socket string `yaml:"socket"`
	// RemoveStaleSocket unlinks a dead socket file left at Socket.
	RemoveStaleSocket bool `yaml:"remove_stale_socket"`
	// Command is the child executable; Args follow the program name.
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	// MaxConnections caps concurrently served clients; 0 means unlimited.
	MaxConnections int64     `yaml:"max_connections"`
	Log            LogConfig `yaml:"log"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path on top of Default. Unknown keys are rejected.
//
// Parameters:
//   - path: The YAML file to read
//
// Returns:
//   - The loaded Config, or an error if the file cannot be read or parsed
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate reports the first missing or invalid setting.
func (c *Config) Validate() error {
	if c.Socket == "" {
		return errors.New("socket path is required")
	}

	if c.Command == "" {
		return errors.New("child command is required")
	}

	if c.MaxConnections < 0 {
		return fmt.Errorf("max_connections must not be negative, got %d", c.MaxConnections)
	}

	return nil
}
