package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"infra-insight/internal/analytics"
	"infra-insight/internal/models"

	"github.com/spf13/viper"
)

// Config holds every configurable value of the service.
type Config struct {
	Server     ServerConfig               `mapstructure:"server"`
	Input      InputConfig                `mapstructure:"input"`
	Output     OutputConfig               `mapstructure:"output"`
	Database   DatabaseConfig             `mapstructure:"database"`
	Redis      RedisConfig                `mapstructure:"redis"`
	OpenAI     OpenAIConfig               `mapstructure:"openai"`
	LogLevel   string                     `mapstructure:"log_level"` // debug|info|warn|error
	Thresholds map[string]ThresholdConfig `mapstructure:"thresholds"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type InputConfig struct {
	Path string `mapstructure:"path"` // snapshot file for one-shot runs
}

type OutputConfig struct {
	Path string `mapstructure:"path"` // report JSON file; empty disables the file sink
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"` // SQLite file; empty disables report history
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"` // empty disables the cache
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	TTL         time.Duration `mapstructure:"ttl"`
	RecentLimit int64         `mapstructure:"recent_limit"`
}

type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"` // empty disables recommendations
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ThresholdConfig overrides one metric's rule. Unset fields keep the default.
type ThresholdConfig struct {
	Medium         *float64 `mapstructure:"medium"`
	High           *float64 `mapstructure:"high"`
	Severity       string   `mapstructure:"severity"`
	MediumSeverity string   `mapstructure:"medium_severity"`
}

// Load reads configuration from (in decreasing priority):
//  1. environment variables (SERVER_PORT, REDIS_ADDR, OPENAI_API_KEY, ...)
//  2. the yaml file at path, or ./configs/config.yaml when path is empty
//  3. defaults
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	_ = v.BindEnv("server.port", "SERVER_PORT", "PORT")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("input.path", "rapport.json")
	v.SetDefault("output.path", "output.json")
	v.SetDefault("database.path", "./data/reports.db")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", time.Hour)
	v.SetDefault("redis.recent_limit", 1000)
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.temperature", 0.3)
	v.SetDefault("openai.timeout", 60*time.Second)
	v.SetDefault("log_level", "info")
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port must not be empty")
	}
	if c.Redis.Addr != "" && c.Redis.RecentLimit <= 0 {
		return fmt.Errorf("redis.recent_limit must be positive")
	}
	if _, err := c.AnalyticsThresholds(); err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}
	return nil
}

// AnalyticsThresholds applies the configured overrides to the default table.
func (c *Config) AnalyticsThresholds() (analytics.Thresholds, error) {
	t := analytics.DefaultThresholds()
	for name, override := range c.Thresholds {
		m, err := analytics.ParseMetric(name)
		if err != nil {
			return analytics.Thresholds{}, err
		}
		rule, ok := t.Rule(m)
		if !ok {
			rule = analytics.Rule{Metric: m, HighSeverity: models.SeverityHigh}
		}
		if override.High != nil {
			rule.High = *override.High
		}
		if override.Medium != nil {
			rule.Medium = *override.Medium
		}
		if override.Severity != "" {
			rule.HighSeverity = models.Severity(override.Severity)
		}
		if override.MediumSeverity != "" {
			rule.MediumSeverity = models.Severity(override.MediumSeverity)
		}
		if t, err = t.With(rule); err != nil {
			return analytics.Thresholds{}, err
		}
	}
	return t, nil
}
