package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ConfigFile is the file name looked up in the config directory.
const ConfigFile = "config.toml"

// DefaultDir returns ~/.totemic.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".totemic"), nil
}

// Load reads configuration.
//
// Precedence (highest to lowest):
//  1. Environment variables (TOTEMIC_STORE_DRIVER, TOTEMIC_SERVER_PORT, ...)
//  2. config.toml in configDir, or ~/.totemic when configDir is empty
//  3. Default()
func Load(configDir string) (Config, error) {
	v, err := newViper(configDir)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Bind: v.GetString("server.bind"),
			Port: v.GetInt("server.port"),
		},
		Store: StoreConfig{
			Driver:      v.GetString("store.driver"),
			SQLitePath:  v.GetString("store.sqlite_path"),
			PostgresURL: v.GetString("store.postgres_url"),
			RedisAddr:   v.GetString("store.redis_addr"),
			RedisPrefix: v.GetString("store.redis_prefix"),
		},
		Engine: EngineConfig{
			MaxAttempts:         v.GetInt("engine.max_attempts"),
			BackoffBaseMs:       v.GetInt("engine.backoff_base_ms"),
			BackoffMaxMs:        v.GetInt("engine.backoff_max_ms"),
			Relations:           v.GetString("engine.relations"),
			SimilarityThreshold: v.GetFloat64("engine.similarity_threshold"),
			MinTokenLength:      v.GetInt("engine.min_token_length"),
			DefaultDecayModel:   v.GetString("engine.default_decay_model"),
		},
		Policy: PolicyConfig{
			Subjects: v.GetString("policy.subjects"),
			Anchor:   v.GetString("policy.anchor"),
			Relike:   v.GetString("policy.relike"),
		},
		Events: EventsConfig{
			Driver:  v.GetString("events.driver"),
			Brokers: v.GetStringSlice("events.brokers"),
			Topic:   v.GetString("events.topic"),
		},
		Log: LogConfig{
			Debug: v.GetBool("log.debug"),
			JSON:  v.GetBool("log.json"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newViper(configDir string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(strings.TrimSuffix(ConfigFile, filepath.Ext(ConfigFile)))
	v.SetConfigType("toml")

	if configDir == "" {
		dir, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		configDir = dir
	}
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine, defaults apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix("TOTEMIC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.bind", d.Server.Bind)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.sqlite_path", d.Store.SQLitePath)
	v.SetDefault("store.postgres_url", d.Store.PostgresURL)
	v.SetDefault("store.redis_addr", d.Store.RedisAddr)
	v.SetDefault("store.redis_prefix", d.Store.RedisPrefix)

	v.SetDefault("engine.max_attempts", d.Engine.MaxAttempts)
	v.SetDefault("engine.backoff_base_ms", d.Engine.BackoffBaseMs)
	v.SetDefault("engine.backoff_max_ms", d.Engine.BackoffMaxMs)
	v.SetDefault("engine.relations", d.Engine.Relations)
	v.SetDefault("engine.similarity_threshold", d.Engine.SimilarityThreshold)
	v.SetDefault("engine.min_token_length", d.Engine.MinTokenLength)
	v.SetDefault("engine.default_decay_model", d.Engine.DefaultDecayModel)

	v.SetDefault("policy.subjects", d.Policy.Subjects)
	v.SetDefault("policy.anchor", d.Policy.Anchor)
	v.SetDefault("policy.relike", d.Policy.Relike)

	v.SetDefault("events.driver", d.Events.Driver)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)

	v.SetDefault("log.debug", d.Log.Debug)
	v.SetDefault("log.json", d.Log.JSON)
}
