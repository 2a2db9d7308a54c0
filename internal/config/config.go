// Package config loads scraper settings from YAML and the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the root configuration.
// Sources, highest priority first:
//  1. an explicit path passed to Load;
//  2. the CONFIG_PATH variable;
//  3. environment variables only.
//
// Environment variables always overlay values read from a file.
type Config struct {
	Mode    string        `yaml:"mode" env:"COLLECTOR_MODE" env-default:"public"`
	Reddit  RedditConfig  `yaml:"reddit"`
	Nitter  NitterConfig  `yaml:"nitter"`
	Retry   RetryConfig   `yaml:"retry"`
	Tree    TreeConfig    `yaml:"tree"`
	Batch   BatchConfig   `yaml:"batch"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// RedditConfig holds forum credentials. Only api mode needs the OAuth fields.
type RedditConfig struct {
	ClientID     string `yaml:"client_id"     env:"REDDIT_CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" env:"REDDIT_CLIENT_SECRET"`
	Username     string `yaml:"username"      env:"REDDIT_USERNAME"`
	Password     string `yaml:"password"      env:"REDDIT_PASSWORD"`
	UserAgent    string `yaml:"user_agent"    env:"REDDIT_USER_AGENT"`
}

type NitterConfig struct {
	URL string `yaml:"url" env:"NITTER_URL" env-default:"https://nitter.net"`
}

type RetryConfig struct {
	Attempts int           `yaml:"attempts" env:"RETRY_ATTEMPTS" env-default:"3"`
	Delay    time.Duration `yaml:"delay"    env:"RETRY_DELAY"    env-default:"2s"`
}

// TreeConfig bounds reply tree extraction.
type TreeConfig struct {
	Workers       int           `yaml:"workers"        env:"TREE_WORKERS"   env-default:"4"`
	Timeout       time.Duration `yaml:"timeout"        env:"TREE_TIMEOUT"   env-default:"60s"`
	MaxExpansions int           `yaml:"max_expansions" env:"MAX_EXPANSIONS" env-default:"32"`
}

type BatchConfig struct {
	Workers int `yaml:"workers" env:"BATCH_WORKERS" env-default:"3"`
}

type ServerConfig struct {
	Port string `yaml:"port" env:"PORT" env-default:"8080"`
}

type LoggingConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

// Addr returns the dashboard listen address.
func (s ServerConfig) Addr() string {
	return ":" + s.Port
}

// Load reads the configuration by the priority documented on Config.
func Load(path string) (*Config, error) {
	const op = "config/Load"

	var cfg Config

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%s: config file %q stat failed: %w", op, path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("%s: failed to read config: %w", op, err)
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("%s: failed to read env: %w", op, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Mode {
	case "api":
		if c.Reddit.ClientID == "" || c.Reddit.ClientSecret == "" {
			return fmt.Errorf("api mode requires REDDIT_CLIENT_ID and REDDIT_CLIENT_SECRET")
		}
		if c.Reddit.UserAgent == "" {
			return fmt.Errorf("REDDIT_USER_AGENT is required for api mode")
		}
	case "public":
		if c.Reddit.UserAgent == "" {
			return fmt.Errorf("REDDIT_USER_AGENT is required for public mode")
		}
	case "mock":
	default:
		return fmt.Errorf("unknown COLLECTOR_MODE: %s (use 'api', 'public', or 'mock')", c.Mode)
	}

	if _, err := url.ParseRequestURI(c.Nitter.URL); err != nil {
		return fmt.Errorf("nitter.url is invalid: %w", err)
	}
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry.attempts must be >= 1")
	}
	// A zero delay would read as unset to the retrier and fall back to its default.
	if c.Retry.Delay <= 0 {
		return fmt.Errorf("retry.delay must be > 0")
	}
	if c.Tree.Workers < 1 {
		return fmt.Errorf("tree.workers must be >= 1")
	}
	if c.Tree.Timeout <= 0 {
		return fmt.Errorf("tree.timeout must be > 0")
	}
	if c.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be >= 1")
	}
	return nil
}
