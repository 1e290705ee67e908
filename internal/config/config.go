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
	Token   string `yaml:"token"`
	Mode    string `yaml:"mode"` // polling | webhook (future)
	Workers int    `yaml:"workers"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type BrokerConfig struct {
	Group        string        `yaml:"group"`
	StreamPrefix string        `yaml:"stream_prefix"`
	Batch        int64         `yaml:"batch"`
	Block        time.Duration `yaml:"block"`
	ClaimMinIdle time.Duration `yaml:"claim_min_idle"`
}

type AIConfig struct {
	OpenAIKey      string        `yaml:"openai_key"`
	OpenAIModel    string        `yaml:"openai_model"`
	GeminiKey      string        `yaml:"gemini_key"`
	GeminiURL      string        `yaml:"gemini_url"`
	GeminiModel    string        `yaml:"gemini_model"`
	PromptBudget   int           `yaml:"prompt_budget"` // max prompt tokens per call
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type PipelineConfig struct {
	InvalidMaxAttempts  int           `yaml:"invalid_max_attempts"`
	InvalidBackoffCap   time.Duration `yaml:"invalid_backoff_cap"`
	UnavailableInterval time.Duration `yaml:"unavailable_interval"`
	ExpiryHorizon       time.Duration `yaml:"expiry_horizon"`
	HandlerTimeout      time.Duration `yaml:"handler_timeout"`
	GateHorizon         time.Duration `yaml:"gate_horizon"`
	SweepInterval       time.Duration `yaml:"sweep_interval"`
}

type DispatchConfig struct {
	MinGap     time.Duration `yaml:"min_gap"`     // per-user inter-message delay
	StaleAfter time.Duration `yaml:"stale_after"` // add "earlier message" framing past this age
	QueueSize  int           `yaml:"queue_size"`
}

type Config struct {
	Bot      BotConfig      `yaml:"bot"`
	Log      LogConfig      `yaml:"log"`
	Admin    AdminConfig    `yaml:"admin"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Broker   BrokerConfig   `yaml:"broker"`
	AI       AIConfig       `yaml:"ai"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Dispatch DispatchConfig `yaml:"dispatch"`

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

	// Minimal validation
	if cfg.Bot.Token == "" && !dev {
		return nil, errors.New("bot.token is required")
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

// ApplyDefaults fills every zero-valued knob with its default.
func (cfg *Config) ApplyDefaults() {
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Admin.Port == 0 {
		cfg.Admin.Port = 8081
	}
	if cfg.Broker.Group == "" {
		cfg.Broker.Group = "assistant-workers"
	}
	if cfg.Broker.StreamPrefix == "" {
		cfg.Broker.StreamPrefix = "jobs:"
	}
	if cfg.Broker.Batch <= 0 {
		cfg.Broker.Batch = 16
	}
	if cfg.Broker.Block <= 0 {
		cfg.Broker.Block = 2 * time.Second
	}
	if cfg.Broker.ClaimMinIdle <= 0 {
		cfg.Broker.ClaimMinIdle = 5 * time.Minute
	}
	if cfg.AI.OpenAIModel == "" {
		cfg.AI.OpenAIModel = "gpt-4o-mini"
	}
	if cfg.AI.GeminiModel == "" {
		cfg.AI.GeminiModel = "gemini-2.0-flash"
	}
	if cfg.AI.PromptBudget <= 0 {
		cfg.AI.PromptBudget = 4096
	}
	if cfg.AI.RequestTimeout <= 0 {
		cfg.AI.RequestTimeout = 30 * time.Second
	}
	if cfg.Pipeline.InvalidMaxAttempts <= 0 {
		cfg.Pipeline.InvalidMaxAttempts = 5
	}
	if cfg.Pipeline.InvalidBackoffCap <= 0 {
		cfg.Pipeline.InvalidBackoffCap = 16 * time.Second
	}
	if cfg.Pipeline.UnavailableInterval <= 0 {
		cfg.Pipeline.UnavailableInterval = 30 * time.Minute
	}
	if cfg.Pipeline.ExpiryHorizon <= 0 {
		cfg.Pipeline.ExpiryHorizon = 14 * 24 * time.Hour
	}
	if cfg.Pipeline.HandlerTimeout <= 0 {
		cfg.Pipeline.HandlerTimeout = 60 * time.Second
	}
	if cfg.Pipeline.GateHorizon <= 0 {
		cfg.Pipeline.GateHorizon = 7 * 24 * time.Hour
	}
	if cfg.Pipeline.SweepInterval <= 0 {
		cfg.Pipeline.SweepInterval = time.Minute
	}
	if cfg.Dispatch.MinGap <= 0 {
		cfg.Dispatch.MinGap = 3 * time.Second
	}
	if cfg.Dispatch.StaleAfter <= 0 {
		cfg.Dispatch.StaleAfter = 5 * time.Minute
	}
	if cfg.Dispatch.QueueSize <= 0 {
		cfg.Dispatch.QueueSize = 256
	}
}
