// Package config loads the client configuration from a YAML file and fills
// in defaults for anything the file leaves out.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pairprep/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

// Config is the top-level client configuration.
type Config struct {
	Platform Platform      `yaml:"platform"`
	Sandbox  Sandbox       `yaml:"sandbox"`
	Matching Matching      `yaml:"matching"`
	Auth     Auth          `yaml:"auth"`
	Logger   logger.Config `yaml:"logger"`
}

// Platform configures the REST and websocket endpoints of the backend.
type Platform struct {
	BaseURL     string        `yaml:"base_url"`
	WSBaseURL   string        `yaml:"ws_base_url"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

// Sandbox configures the code execution service.
type Sandbox struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Matching tunes the matchmaking poll cadence and search deadline.
type Matching struct {
	PollInterval        time.Duration `yaml:"poll_interval"`
	SearchTimeout       time.Duration `yaml:"search_timeout"`
	PartnerPollInterval time.Duration `yaml:"partner_poll_interval"`
}

// Auth locates the persisted token state.
type Auth struct {
	TokenPath string `yaml:"token_path"`
}

// Load reads configuration from path. A missing file yields pure defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file failed: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file failed: %w", err)
		}
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Platform.BaseURL == "" {
		cfg.Platform.BaseURL = "http://localhost:8080"
	}
	if cfg.Platform.WSBaseURL == "" {
		cfg.Platform.WSBaseURL = deriveWSBase(cfg.Platform.BaseURL)
	}
	if cfg.Platform.HTTPTimeout <= 0 {
		cfg.Platform.HTTPTimeout = 15 * time.Second
	}
	if cfg.Sandbox.BaseURL == "" {
		cfg.Sandbox.BaseURL = "https://emkc.org"
	}
	if cfg.Sandbox.Timeout <= 0 {
		cfg.Sandbox.Timeout = 30 * time.Second
	}
	if cfg.Matching.PollInterval <= 0 {
		cfg.Matching.PollInterval = 1500 * time.Millisecond
	}
	if cfg.Matching.SearchTimeout <= 0 {
		cfg.Matching.SearchTimeout = 60 * time.Second
	}
	if cfg.Matching.PartnerPollInterval <= 0 {
		cfg.Matching.PartnerPollInterval = 2 * time.Second
	}
	if cfg.Auth.TokenPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		cfg.Auth.TokenPath = filepath.Join(home, ".pairprep", "token.json")
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = "console"
	}
	if cfg.Logger.OutputPath == "" {
		cfg.Logger.OutputPath = "stderr"
	}
	if cfg.Logger.ErrorPath == "" {
		cfg.Logger.ErrorPath = "stderr"
	}
}

// deriveWSBase rewrites an http(s) base URL to its ws(s) counterpart.
func deriveWSBase(base string) string {
	switch {
	case len(base) >= 8 && base[:8] == "https://":
		return "wss://" + base[8:]
	case len(base) >= 7 && base[:7] == "http://":
		return "ws://" + base[7:]
	default:
		return base
	}
}
