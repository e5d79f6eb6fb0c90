// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token    string `yaml:"token"`
	Username string `yaml:"username"`
	Mode     string `yaml:"mode"` // polling | webhook (future)
	Workers  int    `yaml:"workers"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type MatchingConfig struct {
	SearchCost       int           `yaml:"search_cost"`        // points charged per successful search
	MinSharedAnswers int           `yaml:"min_shared_answers"` // below this a pair is not comparable
	MaxCandidates    int           `yaml:"max_candidates"`
	SearchRateLimit  int           `yaml:"search_rate_limit"` // taps per window per user
	SearchRateWindow time.Duration `yaml:"search_rate_window"`
}

type HandoffConfig struct {
	RequestTTL     time.Duration `yaml:"request_ttl"`      // pending request expiry window
	SessionIdleTTL time.Duration `yaml:"session_idle_ttl"` // idle session end window
	SweepInterval  time.Duration `yaml:"sweep_interval"`
}

type RetryConfig struct {
	Attempts  int           `yaml:"attempts"`
	BaseDelay time.Duration `yaml:"base_delay"`
	MaxDelay  time.Duration `yaml:"max_delay"`
}

type OpsConfig struct {
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
}

type Config struct {
	Bot          BotConfig      `yaml:"bot"`
	Communicator BotConfig      `yaml:"communicator"`
	Log          LogConfig      `yaml:"log"`
	Database     DatabaseConfig `yaml:"database"`
	Redis        RedisConfig    `yaml:"redis"`
	Matching     MatchingConfig `yaml:"matching"`
	Handoff      HandoffConfig  `yaml:"handoff"`
	Retry        RetryConfig    `yaml:"retry"`
	Ops          OpsConfig      `yaml:"ops"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyDefaults()

	// Minimal validation. Dev mode runs on noop adapters and needs no tokens.
	if !dev {
		if cfg.Bot.Token == "" {
			return nil, errors.New("bot.token is required")
		}
		if cfg.Communicator.Token == "" {
			return nil, errors.New("communicator.token is required")
		}
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

// ApplyDefaults fills zero values in place. Exposed so tests can build a
// config without a YAML file.
func (cfg *Config) ApplyDefaults() {
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Communicator.Workers <= 0 {
		cfg.Communicator.Workers = 8
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = time.Hour
	}
	if cfg.Matching.SearchCost <= 0 {
		cfg.Matching.SearchCost = 1
	}
	if cfg.Matching.MinSharedAnswers <= 0 {
		cfg.Matching.MinSharedAnswers = 3
	}
	if cfg.Matching.MaxCandidates <= 0 {
		cfg.Matching.MaxCandidates = 5
	}
	if cfg.Matching.SearchRateLimit <= 0 {
		cfg.Matching.SearchRateLimit = 10
	}
	if cfg.Matching.SearchRateWindow <= 0 {
		cfg.Matching.SearchRateWindow = time.Minute
	}
	if cfg.Handoff.RequestTTL <= 0 {
		cfg.Handoff.RequestTTL = 72 * time.Hour
	}
	if cfg.Handoff.SessionIdleTTL <= 0 {
		cfg.Handoff.SessionIdleTTL = 14 * 24 * time.Hour
	}
	if cfg.Handoff.SweepInterval <= 0 {
		cfg.Handoff.SweepInterval = 15 * time.Minute
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry.Attempts = 3
	}
	if cfg.Retry.BaseDelay <= 0 {
		cfg.Retry.BaseDelay = 200 * time.Millisecond
	}
	if cfg.Retry.MaxDelay <= 0 {
		cfg.Retry.MaxDelay = 5 * time.Second
	}
	if cfg.Ops.Port == 0 {
		cfg.Ops.Port = 8081
	}
}
