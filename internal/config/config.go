// Package config persists the settings the wscommon CLI starts with.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bryanchriswhite/wscommon/internal/logger"
	"gopkg.in/yaml.v3"
)

// WindowConfig describes the window the run command opens.
type WindowConfig struct {
	Width            int    `json:"width" yaml:"width"`
	Height           int    `json:"height" yaml:"height"`
	Title            string `json:"title" yaml:"title"`
	Background       string `json:"background" yaml:"background"`
	Border           string `json:"border" yaml:"border"`
	OverrideRedirect bool   `json:"override_redirect" yaml:"override_redirect"`
	NoContent        bool   `json:"no_content" yaml:"no_content"`
}

// InspectConfig controls the HTTP inspection API.
type InspectConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Port    int  `json:"port" yaml:"port"`
}

// Config represents the application configuration
type Config struct {
	Backend  string        `json:"backend" yaml:"backend"`
	Display  string        `json:"display" yaml:"display"`
	Screen   int           `json:"screen" yaml:"screen"`
	Window   WindowConfig  `json:"window" yaml:"window"`
	LogLevel string        `json:"log_level" yaml:"log_level"`
	Inspect  InspectConfig `json:"inspect" yaml:"inspect"`
}

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// DefaultPath returns $HOME/.config/wscommon/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "wscommon", "config.yaml"), nil
}

// NewManager loads configFile, or the default path when it is empty. A
// missing file is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	path := configFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{configPath: path}

	if err := m.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logger.WithComponent("config").Info().
			Str("path", m.configPath).
			Msg("Config file not found, creating new config")
		m.config = Defaults()
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Str("backend", m.config.Backend).
		Msg("Config loaded")
	return m, nil
}

// Defaults returns the configuration written on first run.
func Defaults() *Config {
	return &Config{
		Backend:  "auto",
		Screen:   -1,
		LogLevel: "info",
		Window: WindowConfig{
			Width:      640,
			Height:     480,
			Title:      "Test",
			Background: "black",
			Border:     "black",
		},
		Inspect: InspectConfig{
			Port: 8080,
		},
	}
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	// Keys missing from the file keep their defaults.
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", m.configPath, err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Validate checks the values that cannot be caught by YAML typing.
func (c *Config) Validate() error {
	if !validBackend(c.Backend) {
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Window.Width <= 0 || c.Window.Width > 0xffff || c.Window.Height <= 0 || c.Window.Height > 0xffff {
		return fmt.Errorf("window size %dx%d out of range", c.Window.Width, c.Window.Height)
	}
	if _, err := ParseColor(c.Window.Background); err != nil {
		return fmt.Errorf("window.background: %w", err)
	}
	if _, err := ParseColor(c.Window.Border); err != nil {
		return fmt.Errorf("window.border: %w", err)
	}
	if c.Inspect.Port < 0 || c.Inspect.Port > 65535 {
		return fmt.Errorf("inspect port %d out of range", c.Inspect.Port)
	}
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return Defaults()
	}
	cfg := *m.config
	return &cfg
}

// Save writes the current configuration to disk.
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	if cfg == nil {
		cfg = Defaults()
	}

	log := logger.WithComponent("config")

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		log.Error().Err(err).Str("config_dir", configDir).Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal config")
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		log.Error().Err(err).Str("path", m.configPath).Msg("Failed to write config")
		return err
	}

	log.Debug().Str("path", m.configPath).Msg("Config saved")
	return nil
}

// Update replaces the entire configuration
func (m *Manager) Update(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return m.Save()
}

// SetPort sets the inspection API port
func (m *Manager) SetPort(port int) error {
	return m.Set("inspect.port", fmt.Sprint(port))
}

// GetPort gets the inspection API port
func (m *Manager) GetPort() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Inspect.Port
}

// SetLogLevel sets the log level
func (m *Manager) SetLogLevel(level string) error {
	return m.Set("log_level", level)
}

// GetLogLevel gets the log level
func (m *Manager) GetLogLevel() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.LogLevel
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// GetConfigDir returns the config directory path
func (m *Manager) GetConfigDir() string {
	return filepath.Dir(m.configPath)
}
