package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config models hustle.yml (or hustle.toml).
type Config struct {
	Marketplace   Marketplace     `yaml:"marketplace" toml:"marketplace"`
	Payments      Payments        `yaml:"payments" toml:"payments"`
	Notifications Notifications   `yaml:"notifications" toml:"notifications"`
	RateLimits    RateLimits      `yaml:"rate_limits" toml:"rate_limits"`
	Server        Server          `yaml:"server" toml:"server"`
	Webhooks      []WebhookConfig `yaml:"webhooks" toml:"webhooks"`
}

type Marketplace struct {
	Currency    string   `yaml:"currency" toml:"currency"`
	MaxBid      int      `yaml:"max_bid" toml:"max_bid"`
	CountryCode string   `yaml:"country_code" toml:"country_code"`
	Categories  []string `yaml:"categories" toml:"categories"`
}

type Payments struct {
	Method  string  `yaml:"method" toml:"method"`
	Gateway Gateway `yaml:"gateway" toml:"gateway"`
}

type Gateway struct {
	// Mode is "simulated" or "http".
	Mode           string `yaml:"mode" toml:"mode"`
	URL            string `yaml:"url" toml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds" toml:"timeout_seconds"`
}

func (g Gateway) Timeout() time.Duration {
	if g.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(g.TimeoutSeconds) * time.Second
}

type Notifications struct {
	Email struct {
		Enabled bool   `yaml:"enabled" toml:"enabled"`
		From    string `yaml:"from" toml:"from"`
		Subject string `yaml:"subject" toml:"subject"`
	} `yaml:"email" toml:"email"`
}

type RateLimits struct {
	ProfileUpdates Limit `yaml:"profile_updates" toml:"profile_updates"`
	AvatarUploads  Limit `yaml:"avatar_uploads" toml:"avatar_uploads"`
}

type Limit struct {
	Max           int `yaml:"max" toml:"max"`
	WindowSeconds int `yaml:"window_seconds" toml:"window_seconds"`
}

func (l Limit) Window() time.Duration {
	return time.Duration(l.WindowSeconds) * time.Second
}

type Server struct {
	CORSOrigins []string `yaml:"cors_origins" toml:"cors_origins"`
}

type WebhookConfig struct {
	ID             string   `yaml:"id" toml:"id"`
	URL            string   `yaml:"url" toml:"url"`
	Secret         string   `yaml:"secret" toml:"secret"`
	Events         []string `yaml:"events" toml:"events"`
	Enabled        *bool    `yaml:"enabled" toml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds" toml:"timeout_seconds"`
}

func (w WebhookConfig) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

// Default returns the built-in marketplace settings.
func Default() *Config {
	var cfg Config
	cfg.Marketplace.Currency = "KSh"
	cfg.Marketplace.MaxBid = 50
	cfg.Marketplace.CountryCode = "254"
	cfg.Marketplace.Categories = []string{"tech", "academic", "creative", "services", "other"}
	cfg.Payments.Method = "mpesa"
	cfg.Payments.Gateway.Mode = "simulated"
	cfg.Payments.Gateway.TimeoutSeconds = 10
	cfg.Notifications.Email.Enabled = true
	cfg.Notifications.Email.From = "notifications@campushustle.local"
	cfg.Notifications.Email.Subject = "New message on CampusHustle"
	cfg.RateLimits.ProfileUpdates = Limit{Max: 3, WindowSeconds: 300}
	cfg.RateLimits.AvatarUploads = Limit{Max: 5, WindowSeconds: 60}
	return &cfg
}

// Validate ensures the config is usable.
func (c *Config) Validate() error {
	if c.Marketplace.Currency == "" {
		return fmt.Errorf("config.marketplace.currency is required")
	}
	if c.Marketplace.MaxBid <= 0 {
		return fmt.Errorf("config.marketplace.max_bid must be positive")
	}
	if c.Marketplace.CountryCode == "" {
		return fmt.Errorf("config.marketplace.country_code is required")
	}
	for _, cat := range c.Marketplace.Categories {
		if strings.TrimSpace(cat) == "" {
			return fmt.Errorf("config.marketplace.categories contains an empty category")
		}
	}
	switch c.Payments.Gateway.Mode {
	case "simulated":
	case "http":
		if _, err := url.ParseRequestURI(c.Payments.Gateway.URL); err != nil {
			return fmt.Errorf("config.payments.gateway.url is invalid: %w", err)
		}
	default:
		return fmt.Errorf("config.payments.gateway.mode must be simulated or http")
	}
	for name, l := range map[string]Limit{"profile_updates": c.RateLimits.ProfileUpdates, "avatar_uploads": c.RateLimits.AvatarUploads} {
		if l.Max < 0 || l.WindowSeconds < 0 {
			return fmt.Errorf("config.rate_limits.%s must not be negative", name)
		}
	}
	seen := map[string]bool{}
	for i, wh := range c.Webhooks {
		if wh.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if _, err := url.ParseRequestURI(wh.URL); err != nil {
			return fmt.Errorf("config.webhooks[%d].url is invalid: %w", i, err)
		}
		if wh.ID != "" {
			if seen[wh.ID] {
				return fmt.Errorf("config.webhooks[%d].id %s is duplicated", i, wh.ID)
			}
			seen[wh.ID] = true
		}
	}
	return nil
}

// Path returns the YAML config path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "hustle.yml")
}

// TOMLPath returns the TOML config path for a workspace.
func TOMLPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "hustle.toml")
}

// Load reads the workspace config. hustle.yml wins over hustle.toml; with
// neither present the defaults are returned.
func Load(workspace string) (*Config, error) {
	for _, path := range []string{Path(workspace), TOMLPath(workspace)} {
		cfg, err := FromFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		return cfg, err
	}
	return Default(), nil
}

// FromFile parses a config file, picking the format from its extension.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FromTOML(data)
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes. Missing keys keep
// their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromTOML parses and validates config from raw TOML bytes.
func FromTOML(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config toml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GenerateDefault returns the default config as YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `marketplace:
  currency: KSh
  max_bid: 50
  country_code: "254"
  categories: [tech, academic, creative, services, other]

payments:
  method: mpesa
  gateway:
    mode: simulated
    timeout_seconds: 10

notifications:
  email:
    enabled: true
    from: notifications@campushustle.local
    subject: New message on CampusHustle

rate_limits:
  profile_updates:
    max: 3
    window_seconds: 300
  avatar_uploads:
    max: 5
    window_seconds: 60
`
