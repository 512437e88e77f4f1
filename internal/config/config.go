// Package config loads the daemon's YAML configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the complete daemon configuration.
type Config struct {
	Listener     ListenerConfig     `yaml:"listener"`
	Capture      CaptureConfig      `yaml:"capture"`
	Health       HealthConfig       `yaml:"health"`
	SecretStore  SecretStoreConfig  `yaml:"secret_store"`
	ShutdownTimeoutS int            `yaml:"shutdown_timeout_s"`
}

// ListenerConfig controls the TCP/WebSocket listener.
type ListenerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// CaptureConfig controls screen source selection.
type CaptureConfig struct {
	// Backend selects the capture implementation: "mock", "x11", or
	// "pipewire". Defaults to "mock" when empty, so the daemon runs
	// without a display server present.
	Backend    string `yaml:"backend"`
	DisplayNum int    `yaml:"display_num"`
}

// HealthConfig holds a port for the health/readiness/metrics endpoints.
// The listener does not read it: those endpoints are served on the
// listener's own address and port, alongside /ws.
type HealthConfig struct {
	Port string `yaml:"port"`
}

// SecretStoreConfig names the environment variable the AI-chat API key
// is read from. The credential store itself is an external
// collaborator; this just names where to find it.
type SecretStoreConfig struct {
	APIKeyEnvVar string `yaml:"api_key_env_var"`
}

// Default returns a config usable with no file present: mock capture
// backend, listener on localhost:3000, Health.Port "8080".
func Default() *Config {
	return &Config{
		Listener: ListenerConfig{Address: "localhost", Port: 3000},
		Capture:  CaptureConfig{Backend: "mock"},
		Health:   HealthConfig{Port: "8080"},
		SecretStore: SecretStoreConfig{
			APIKeyEnvVar: "SCREENSHARE_AI_API_KEY",
		},
		ShutdownTimeoutS: 5,
	}
}

// Load reads and parses a YAML configuration file, filling any unset
// field from Default.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	return cfg, nil
}

// ShutdownTimeout returns the configured graceful shutdown timeout, or
// 5 seconds if unset.
func (c *Config) ShutdownTimeout() int {
	if c.ShutdownTimeoutS == 0 {
		return 5
	}
	return c.ShutdownTimeoutS
}
