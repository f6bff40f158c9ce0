// Package config provides XML-based configuration management for the agent.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"DatasetAttachAgent"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Analytics backend configuration
	Backend BackendConfig `xml:"Backend"`

	// Storage configuration
	Storage StorageConfig `xml:"Storage"`

	// Timer tuning
	Timers TimerConfig `xml:"Timers"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	BodyLimit    string `xml:"BodyLimit"`
}

// BackendConfig contains settings for the remote analytics API
type BackendConfig struct {
	BaseURL              string `xml:"BaseURL"`
	SessionHeader        string `xml:"SessionHeader"`
	RequestTimeoutSec    int    `xml:"RequestTimeoutSeconds"`
	StartupProbeTimeoutS int    `xml:"StartupProbeTimeoutSeconds"`
}

// StorageConfig contains local persistence settings
type StorageConfig struct {
	DataDirectory string `xml:"DataDirectory"`
	RulesFile     string `xml:"RulesFile"`
}

// TimerConfig tunes the state-machine timers
type TimerConfig struct {
	NoticeDismissSec  int `xml:"NoticeDismissSeconds"`
	AutoDescribeDelay int `xml:"AutoDescribeDelaySeconds"`
	BannerSec         int `xml:"SuccessBannerSeconds"`
}

// envOverrides are applied on top of the XML file. Prefix: AGENT_.
type envOverrides struct {
	Port       int    `envconfig:"PORT"`
	BackendURL string `envconfig:"BACKEND_URL"`
	DataDir    string `envconfig:"DATA_DIR"`
	RulesFile  string `envconfig:"RULES_FILE"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8173,
			BindAddress:  "127.0.0.1",
			EnableCORS:   true,
			AllowOrigins: "*",
			BodyLimit:    "64M",
		},
		Backend: BackendConfig{
			BaseURL:              "http://localhost:8000",
			SessionHeader:        "X-Session-ID",
			RequestTimeoutSec:    120,
			StartupProbeTimeoutS: 30,
		},
		Storage: StorageConfig{
			DataDirectory: "./data",
			RulesFile:     "",
		},
		Timers: TimerConfig{
			NoticeDismissSec:  5,
			AutoDescribeDelay: 2,
			BannerSec:         3,
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		config.applyEnvironmentOverrides()
		config.resolvePaths(filepath.Dir(configPath))
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &AppConfig{}
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- Dataset Attach Agent Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows AGENT_* environment variables to
// override config values.
func (c *AppConfig) applyEnvironmentOverrides() {
	var env envOverrides
	if err := envconfig.Process("agent", &env); err != nil {
		fmt.Printf("[Config] Failed to read environment overrides: %v\n", err)
		return
	}

	if env.Port != 0 {
		c.Server.Port = env.Port
	}
	if env.BackendURL != "" {
		c.Backend.BaseURL = env.BackendURL
	}
	if env.DataDir != "" {
		c.Storage.DataDirectory = env.DataDir
	}
	if env.RulesFile != "" {
		c.Storage.RulesFile = env.RulesFile
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if c.Storage.RulesFile != "" && !filepath.IsAbs(c.Storage.RulesFile) {
		c.Storage.RulesFile = filepath.Join(configDir, c.Storage.RulesFile)
	}
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// RequestTimeout returns the backend request timeout as a duration.
func (c *AppConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Backend.RequestTimeoutSec) * time.Second
}

// StartupProbeTimeout returns the startup reachability window.
func (c *AppConfig) StartupProbeTimeout() time.Duration {
	return time.Duration(c.Backend.StartupProbeTimeoutS) * time.Second
}

// NoticeDismissAfter returns the error notice auto-dismiss window.
func (c *AppConfig) NoticeDismissAfter() time.Duration {
	return time.Duration(c.Timers.NoticeDismissSec) * time.Second
}

// AutoDescribeDelay returns the settle delay before auto-description.
func (c *AppConfig) AutoDescribeDelay() time.Duration {
	return time.Duration(c.Timers.AutoDescribeDelay) * time.Second
}

// BannerDelay returns how long the success banner stays up.
func (c *AppConfig) BannerDelay() time.Duration {
	return time.Duration(c.Timers.BannerSec) * time.Second
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	if err := os.MkdirAll(c.Storage.DataDirectory, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", c.Storage.DataDirectory, err)
	}
	return nil
}
