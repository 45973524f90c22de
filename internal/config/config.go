package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all mindmate configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Prediction PredictionConfig `mapstructure:"prediction"`
	Risk       RiskConfig       `mapstructure:"risk"`
}

type ServerConfig struct {
	Bind string `mapstructure:"bind"`
	Port int    `mapstructure:"port"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type CacheConfig struct {
	Backend         string        `mapstructure:"backend"` // "memory" or "redis"
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	Redis           RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type PredictionConfig struct {
	TTL            time.Duration `mapstructure:"ttl"`
	MinProbability float64       `mapstructure:"min_probability"`
}

type RiskConfig struct {
	Threshold float64 `mapstructure:"threshold"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37780,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Cache: CacheConfig{
			Backend:         "memory",
			TTL:             24 * time.Hour,
			CleanupInterval: time.Hour,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "mindmate:dashboard:",
			},
		},
		Prediction: PredictionConfig{
			TTL:            24 * time.Hour,
			MinProbability: 0.4,
		},
		Risk: RiskConfig{
			Threshold: 0.5,
		},
	}
}

// Load reads configuration from path, or from config.{toml,yaml} in
// ~/.mindmate or the working directory when path is empty. A missing
// default file is not an error. MINDMATE_* environment variables override
// file values, e.g. MINDMATE_CACHE_BACKEND=redis.
func Load(path string) (Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("$HOME/.mindmate")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("MINDMATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, Default())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides apply even
// when no config file sets them.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("server.bind", d.Server.Bind)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.cleanup_interval", d.Cache.CleanupInterval)
	v.SetDefault("cache.redis.addr", d.Cache.Redis.Addr)
	v.SetDefault("cache.redis.password", d.Cache.Redis.Password)
	v.SetDefault("cache.redis.db", d.Cache.Redis.DB)
	v.SetDefault("cache.redis.key_prefix", d.Cache.Redis.KeyPrefix)
	v.SetDefault("prediction.ttl", d.Prediction.TTL)
	v.SetDefault("prediction.min_probability", d.Prediction.MinProbability)
	v.SetDefault("risk.threshold", d.Risk.Threshold)
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend %q: must be memory or redis", c.Cache.Backend)
	}
	if c.Prediction.MinProbability < 0 || c.Prediction.MinProbability > 1 {
		return fmt.Errorf("prediction.min_probability %v: must be within [0,1]", c.Prediction.MinProbability)
	}
	if c.Risk.Threshold <= 0 || c.Risk.Threshold > 1 {
		return fmt.Errorf("risk.threshold %v: must be within (0,1]", c.Risk.Threshold)
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
