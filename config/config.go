package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Probe describes one optional DOM element read by the check
type Probe struct {
	Label    string `json:"label" yaml:"label"`
	Selector string `json:"selector" yaml:"selector"`
	Attr     string `json:"attr,omitempty" yaml:"attr,omitempty"` // Empty means text content
}

// Viewport represents browser viewport dimensions
type Viewport struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Config represents the check configuration. Every field has a default, so a
// missing config file yields the fixed localhost login page check.
type Config struct {
	URL         string   `json:"url" yaml:"url"`
	Output      string   `json:"output" yaml:"output"`
	Engine      string   `json:"engine" yaml:"engine"`
	ChromeMode  string   `json:"chromeMode" yaml:"chrome_mode"`
	NavTimeout  int      `json:"navTimeout,omitempty" yaml:"nav_timeout_ms,omitempty"`   // Milliseconds
	IdleTimeout int      `json:"idleTimeout,omitempty" yaml:"idle_timeout_ms,omitempty"` // Milliseconds
	Grace       int      `json:"grace,omitempty" yaml:"grace_ms,omitempty"`              // Milliseconds
	StorageKey  string   `json:"storageKey" yaml:"storage_key"`
	Probes      []Probe  `json:"probes,omitempty" yaml:"probes,omitempty"`
	Viewport    Viewport `json:"viewport" yaml:"viewport"`
	LogLevel    string   `json:"logLevel" yaml:"log_level"`
	LogFile     string   `json:"logFile,omitempty" yaml:"log_file,omitempty"`
	Quality     int      `json:"quality,omitempty" yaml:"quality,omitempty"` // JPEG only
}

const (
	EngineChromedp = "chromedp"
	EngineRod      = "rod"

	ChromeModeAuto   = "auto"
	ChromeModeLocal  = "local"
	ChromeModeDocker = "docker"
)

// DefaultProbes are the login page elements inspected when none are configured
func DefaultProbes() []Probe {
	return []Probe{
		{Label: "Login title", Selector: ".login-form .title"},
		{Label: "Login container style", Selector: ".login", Attr: "style"},
	}
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	// Defaults on an empty config cannot fail validation
	_ = validateConfig(cfg)
	return cfg
}

// LoadConfig loads configuration from a JSON or YAML file. An empty path
// returns the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate re-checks the configuration after command line overrides
func (c *Config) Validate() error {
	return validateConfig(c)
}

// validateConfig validates configuration and sets defaults
func validateConfig(config *Config) error {
	if config.URL == "" {
		config.URL = "http://localhost:80"
	}
	u, err := url.Parse(config.URL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", config.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported url scheme %q (supported: http, https)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", config.URL)
	}

	if config.Output == "" {
		config.Output = "/tmp/login_page.png"
	}
	switch strings.ToLower(filepath.Ext(config.Output)) {
	case ".png", ".jpg", ".jpeg":
	default:
		return fmt.Errorf("unsupported output format: %s (supported: png, jpeg)", config.Output)
	}

	if config.Engine == "" {
		config.Engine = EngineChromedp
	} else if config.Engine != EngineChromedp && config.Engine != EngineRod {
		return fmt.Errorf("unsupported engine: %s (supported: chromedp, rod)", config.Engine)
	}

	if config.ChromeMode == "" {
		config.ChromeMode = ChromeModeAuto
	} else {
		switch config.ChromeMode {
		case ChromeModeAuto, ChromeModeLocal, ChromeModeDocker:
		default:
			if !IsRemoteMode(config.ChromeMode) {
				return fmt.Errorf("unsupported chrome mode: %s (supported: auto, local, docker, ws:// or http:// devtools url)", config.ChromeMode)
			}
		}
	}

	if config.NavTimeout < 0 || config.IdleTimeout < 0 || config.Grace < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if config.NavTimeout == 0 {
		config.NavTimeout = 30000
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = 30000
	}
	if config.Grace == 0 {
		config.Grace = 2000
	}

	if config.StorageKey == "" {
		config.StorageKey = "login_config"
	}

	if len(config.Probes) == 0 {
		config.Probes = DefaultProbes()
	}
	for i := range config.Probes {
		if config.Probes[i].Selector == "" {
			return fmt.Errorf("probe #%d is missing selector", i+1)
		}
		if config.Probes[i].Label == "" {
			config.Probes[i].Label = config.Probes[i].Selector
		}
	}

	if config.Viewport.Width == 0 && config.Viewport.Height == 0 {
		config.Viewport = Viewport{Width: 1280, Height: 720}
	} else if config.Viewport.Width <= 0 || config.Viewport.Height <= 0 {
		return fmt.Errorf("viewport must be positive, got %dx%d", config.Viewport.Width, config.Viewport.Height)
	}

	if config.LogLevel == "" {
		config.LogLevel = "INFO"
	}

	if config.Quality == 0 {
		config.Quality = 90
	} else if config.Quality < 1 || config.Quality > 100 {
		return fmt.Errorf("quality must be between 1 and 100")
	}

	return nil
}

// IsRemoteMode reports whether mode is a DevTools URL of an already running browser
func IsRemoteMode(mode string) bool {
	return strings.HasPrefix(mode, "ws://") || strings.HasPrefix(mode, "wss://") ||
		strings.HasPrefix(mode, "http://") || strings.HasPrefix(mode, "https://")
}

// Format returns the image format implied by the output path
func (c *Config) Format() string {
	switch strings.ToLower(filepath.Ext(c.Output)) {
	case ".jpg", ".jpeg":
		return "jpeg"
	default:
		return "png"
	}
}

func (c *Config) NavTimeoutDuration() time.Duration {
	return time.Duration(c.NavTimeout) * time.Millisecond
}

func (c *Config) IdleTimeoutDuration() time.Duration {
	return time.Duration(c.IdleTimeout) * time.Millisecond
}

func (c *Config) GraceDuration() time.Duration {
	return time.Duration(c.Grace) * time.Millisecond
}
