package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// TOMLConfig represents the structure of the TOML config file.
type TOMLConfig struct {
	Server TOMLServerConfig `toml:"server"`
	API    TOMLAPIConfig    `toml:"api"`
}

// TOMLServerConfig holds the relay listener settings.
type TOMLServerConfig struct {
	Host          string `toml:"host"`
	TCPPort       int    `toml:"tcp_port"`
	AcceptDelayMs int    `toml:"accept_delay_ms"`
	MetricsAddr   string `toml:"metrics_addr"`
}

// TOMLAPIConfig holds the persistence API settings.
type TOMLAPIConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// DefaultTOMLConfig returns the default configuration.
func DefaultTOMLConfig() TOMLConfig {
	return TOMLConfig{
		Server: TOMLServerConfig{
			Host:          "127.0.0.1",
			TCPPort:       12800,
			AcceptDelayMs: 100,
			MetricsAddr:   "",
		},
		API: TOMLAPIConfig{
			Host:           "127.0.0.1",
			Port:           8000,
			TimeoutSeconds: 10,
		},
	}
}

// LoadConfig loads configuration from a TOML file. If the file doesn't
// exist, it is created with default values so operators have something to
// edit.
func LoadConfig(configPath string) (*TOMLConfig, error) {
	configPath, err := ExpandPath(configPath)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := writeDefaultConfig(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	var config TOMLConfig
	if _, err := toml.DecodeFile(configPath, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	return path, nil
}

// writeDefaultConfig creates a commented default config file at path.
func writeDefaultConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	header := `# Relay Server Configuration
# This file was auto-generated with default values.
# Edit as needed and restart the server for changes to take effect.

`
	if _, err := f.WriteString(header); err != nil {
		return err
	}

	encoder := toml.NewEncoder(f)
	return encoder.Encode(DefaultTOMLConfig())
}

// ToServerConfig converts the TOML file settings into a runtime ServerConfig,
// falling back to defaults for anything left unset.
func (c *TOMLConfig) ToServerConfig() ServerConfig {
	config := DefaultConfig()

	if strings.TrimSpace(c.Server.Host) != "" {
		config.Host = c.Server.Host
	}
	if c.Server.TCPPort != 0 {
		config.TCPPort = c.Server.TCPPort
	}
	if c.Server.AcceptDelayMs != 0 {
		config.AcceptDelay = time.Duration(c.Server.AcceptDelayMs) * time.Millisecond
	}
	if strings.TrimSpace(c.Server.MetricsAddr) != "" {
		config.MetricsAddr = c.Server.MetricsAddr
	}

	return config
}

// APIBaseURL returns the persistence API root for the configured host and
// port, falling back to defaults for anything left unset.
func (c *TOMLConfig) APIBaseURL() string {
	defaults := DefaultTOMLConfig()

	host := c.API.Host
	if strings.TrimSpace(host) == "" {
		host = defaults.API.Host
	}
	port := c.API.Port
	if port == 0 {
		port = defaults.API.Port
	}

	return fmt.Sprintf("http://%s:%d", host, port)
}

// APITimeout returns the persistence API request timeout.
func (c *TOMLConfig) APITimeout() time.Duration {
	if c.API.TimeoutSeconds <= 0 {
		return time.Duration(DefaultTOMLConfig().API.TimeoutSeconds) * time.Second
	}
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}
