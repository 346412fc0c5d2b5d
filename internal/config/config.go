package config

import (
	"fmt"
	"strings"
)

// Config holds all totemic configuration.
type Config struct {
	Server ServerConfig `toml:"server"`
	Store  StoreConfig  `toml:"store"`
	Engine EngineConfig `toml:"engine"`
	Policy PolicyConfig `toml:"policy"`
	Events EventsConfig `toml:"events"`
	Log    LogConfig    `toml:"log"`
}

type ServerConfig struct {
	Bind string `toml:"bind"`
	Port int    `toml:"port"`
}

type StoreConfig struct {
	Driver      string `toml:"driver"`      // "memory", "sqlite", "postgres", "redis"
	SQLitePath  string `toml:"sqlite_path"` // empty resolves to ~/.totemic/totemic.db
	PostgresURL string `toml:"postgres_url"`
	RedisAddr   string `toml:"redis_addr"`
	RedisPrefix string `toml:"redis_prefix"`
}

type EngineConfig struct {
	MaxAttempts         int     `toml:"max_attempts"`
	BackoffBaseMs       int     `toml:"backoff_base_ms"`
	BackoffMaxMs        int     `toml:"backoff_max_ms"`
	Relations           string  `toml:"relations"` // "sync", "deferred", "off"
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	MinTokenLength      int     `toml:"min_token_length"`
	DefaultDecayModel   string  `toml:"default_decay_model"`
}

type PolicyConfig struct {
	Subjects string `toml:"subjects"` // "active", "all"
	Anchor   string `toml:"anchor"`   // "first_engaged", "last_transition"
	Relike   string `toml:"relike"`   // "preserve", "reset"
}

type EventsConfig struct {
	Driver  string   `toml:"driver"` // "none", "kafka"
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

type LogConfig struct {
	Debug bool `toml:"debug"`
	JSON  bool `toml:"json"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37780,
		},
		Store: StoreConfig{
			Driver:      "sqlite",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "totemic",
		},
		Engine: EngineConfig{
			MaxAttempts:         5,
			BackoffBaseMs:       10,
			BackoffMaxMs:        200,
			Relations:           "sync",
			SimilarityThreshold: 0.7,
			MinTokenLength:      4,
			DefaultDecayModel:   "medium",
		},
		Policy: PolicyConfig{
			Subjects: "active",
			Anchor:   "first_engaged",
			Relike:   "preserve",
		},
		Events: EventsConfig{
			Driver: "none",
			Topic:  "totemic.engagements",
		},
	}
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// Validate checks the settings that have a fixed set of values.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Store.Driver) {
	case "memory", "sqlite":
	case "postgres":
		if c.Store.PostgresURL == "" {
			return fmt.Errorf("store.postgres_url required for postgres driver")
		}
	case "redis":
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("store.redis_addr required for redis driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}

	switch strings.ToLower(c.Events.Driver) {
	case "", "none":
	case "kafka":
		if len(c.Events.Brokers) == 0 {
			return fmt.Errorf("events.brokers required for kafka driver")
		}
	default:
		return fmt.Errorf("unknown events.driver %q", c.Events.Driver)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Engine.SimilarityThreshold < 0 || c.Engine.SimilarityThreshold > 1 {
		return fmt.Errorf("engine.similarity_threshold %v not in [0, 1]", c.Engine.SimilarityThreshold)
	}
	return nil
}
