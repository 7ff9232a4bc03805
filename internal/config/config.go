package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Analysis  AnalysisConfig  `yaml:"analysis" mapstructure:"analysis"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Join      JoinConfig      `yaml:"join" mapstructure:"join"`
	OpenData  OpenDataConfig  `yaml:"opendata" mapstructure:"opendata"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Redis     RedisConfig     `yaml:"redis" mapstructure:"redis"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig configures the language model client.
type AnthropicConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	Model             string  `yaml:"model" mapstructure:"model"`
	MaxTokens         int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature       float64 `yaml:"temperature" mapstructure:"temperature"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// AnalysisConfig configures the analyze command.
type AnalysisConfig struct {
	Select              string `yaml:"select" mapstructure:"select"` // "pending" or "all"
	MaxAttempts         int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	BreakerThreshold    int    `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs int    `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Size      int     `yaml:"size" mapstructure:"size"`
	DelaySecs float64 `yaml:"delay_secs" mapstructure:"delay_secs"`
}

// Delay returns the inter-batch delay.
func (b BatchConfig) Delay() time.Duration {
	return time.Duration(b.DelaySecs * float64(time.Second))
}

// JoinConfig configures permit enrichment.
type JoinConfig struct {
	RadiusKM    float64 `yaml:"radius_km" mapstructure:"radius_km"`
	Limit       int     `yaml:"limit" mapstructure:"limit"`
	ExcludeZero bool    `yaml:"exclude_zero" mapstructure:"exclude_zero"`
}

// OpenDataConfig configures dataset ingest.
type OpenDataConfig struct {
	Catalog           string  `yaml:"catalog" mapstructure:"catalog"` // empty uses the embedded catalog
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	TempDir           string  `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// ServerConfig configures the query API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// RedisConfig configures the response cache. An empty Addr disables caching.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	TTLSecs  int    `yaml:"ttl_secs" mapstructure:"ttl_secs"`
}

// TTL returns the cache entry lifetime.
func (r RedisConfig) TTL() time.Duration {
	return time.Duration(r.TTLSecs) * time.Second
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config.yaml and the environment, in
// increasing order of precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("IMPACT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "civic-impact.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.temperature", 0.2)
	v.SetDefault("anthropic.requests_per_second", 2)
	v.SetDefault("anthropic.burst", 1)
	v.SetDefault("analysis.select", "pending")
	v.SetDefault("analysis.max_attempts", 3)
	v.SetDefault("analysis.breaker_threshold", 5)
	v.SetDefault("analysis.breaker_cooldown_secs", 30)
	v.SetDefault("batch.size", 5)
	v.SetDefault("batch.delay_secs", 2)
	v.SetDefault("join.radius_km", 0.5)
	v.SetDefault("join.limit", 20)
	v.SetDefault("join.exclude_zero", true)
	v.SetDefault("opendata.catalog", "")
	v.SetDefault("opendata.requests_per_second", 5)
	v.SetDefault("opendata.timeout_secs", 60)
	v.SetDefault("opendata.user_agent", "civic-impact/1.0")
	v.SetDefault("opendata.temp_dir", os.TempDir())
	v.SetDefault("server.port", 8080)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl_secs", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs before it does any work.
// mode is the command name: "ingest", "enrich", "analyze", "serve" or
// "migrate".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			problems = append(problems, "store.sqlite_path is required for the sqlite driver")
		}
	default:
		problems = append(problems, "store.driver must be sqlite or postgres, got "+quote(c.Store.Driver))
	}

	switch mode {
	case "analyze":
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
		if c.Batch.Size <= 0 {
			problems = append(problems, "batch.size must be positive")
		}
		if c.Batch.DelaySecs < 0 {
			problems = append(problems, "batch.delay_secs must not be negative")
		}
		if c.Analysis.Select != "pending" && c.Analysis.Select != "all" {
			problems = append(problems, "analysis.select must be pending or all, got "+quote(c.Analysis.Select))
		}
	case "enrich":
		if c.Join.RadiusKM <= 0 {
			problems = append(problems, "join.radius_km must be positive")
		}
		if c.Join.Limit < 0 {
			problems = append(problems, "join.limit must not be negative")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be between 1 and 65535")
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(problems, "; "))
	}
	return nil
}

func quote(s string) string { return `"` + s + `"` }

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
