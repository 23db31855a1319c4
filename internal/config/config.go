// Package config assembles service configuration from environment variables,
// optionally overlaid by a YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	LLM        LLMConfig        `yaml:"llm"`
	Discussion DiscussionConfig `yaml:"discussion"`
	Runner     RunnerConfig     `yaml:"runner"`
	Redis      RedisConfig      `yaml:"redis"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         string        `yaml:"port"`
	Mode         string        `yaml:"mode"` // "debug" or "release"
	EnableCORS   bool          `yaml:"enable_cors"`
	CORSOrigins  []string      `yaml:"cors_origins"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type LLMConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
}

// DiscussionConfig bounds runs and selects the routing policy.
type DiscussionConfig struct {
	DefaultMaxRounds int `yaml:"default_max_rounds"`
	MaxRoundsLimit   int `yaml:"max_rounds_limit"`
	// RouterStrategy is "alternate" (fast, deterministic) or "classifier"
	// (topic-aware hand-offs at the cost of one extra gateway call per
	// turn).
	RouterStrategy string `yaml:"router_strategy"`
}

type RunnerConfig struct {
	Workers    int           `yaml:"workers"`
	QueueSize  int           `yaml:"queue_size"`
	RunTimeout time.Duration `yaml:"run_timeout"`
}

type RedisConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Addr       string        `yaml:"addr"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// Load builds the configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8000"),
			Mode:         getEnv("SERVER_MODE", "release"),
			EnableCORS:   getEnvBool("SERVER_ENABLE_CORS", true),
			CORSOrigins:  getEnvList("SERVER_CORS_ORIGINS", []string{"*"}),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 300*time.Second),
		},
		LLM: LLMConfig{
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", ""),
			Model:       getEnv("LLM_MODEL", "gpt-4.1-mini"),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.7),
		},
		Discussion: DiscussionConfig{
			DefaultMaxRounds: getEnvInt("DISCUSSION_DEFAULT_MAX_ROUNDS", 3),
			MaxRoundsLimit:   getEnvInt("DISCUSSION_MAX_ROUNDS_LIMIT", 10),
			RouterStrategy:   getEnv("DISCUSSION_ROUTER_STRATEGY", "classifier"),
		},
		Runner: RunnerConfig{
			Workers:    getEnvInt("RUNNER_WORKERS", 4),
			QueueSize:  getEnvInt("RUNNER_QUEUE_SIZE", 64),
			RunTimeout: getEnvDuration("RUNNER_RUN_TIMEOUT", 15*time.Minute),
		},
		Redis: RedisConfig{
			Enabled:    getEnvBool("REDIS_ENABLED", false),
			Addr:       getEnv("REDIS_ADDR", "localhost:6379"),
			Password:   getEnv("REDIS_PASSWORD", ""),
			DB:         getEnvInt("REDIS_DB", 0),
			SessionTTL: getEnvDuration("REDIS_SESSION_TTL", 24*time.Hour),
		},
	}
}

// LoadFile overlays cfg with values from a YAML file.
func LoadFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// Validate catches configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.Discussion.DefaultMaxRounds < 1 {
		return fmt.Errorf("default max rounds must be >= 1")
	}
	if c.Discussion.MaxRoundsLimit < c.Discussion.DefaultMaxRounds {
		return fmt.Errorf("max rounds limit must be >= default max rounds")
	}
	switch c.Discussion.RouterStrategy {
	case "alternate", "classifier":
	default:
		return fmt.Errorf("unknown router strategy %q", c.Discussion.RouterStrategy)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}
