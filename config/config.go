package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/jwalitptl/broadcast-engine/internal/repository/postgres"
	"github.com/jwalitptl/broadcast-engine/internal/sender"
	"github.com/jwalitptl/broadcast-engine/internal/service/broadcast"
	"github.com/jwalitptl/broadcast-engine/pkg/messaging/redis"
	"github.com/jwalitptl/broadcast-engine/pkg/worker"
)

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpiryHours int    `mapstructure:"expiry_hours"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type DispatchConfig struct {
	Queue          string  `mapstructure:"queue"`
	Concurrency    int     `mapstructure:"concurrency"`
	DefaultDelayMs int     `mapstructure:"default_delay_ms"`
	DefaultJitter  float64 `mapstructure:"default_jitter"`
	HealthPort     int     `mapstructure:"health_port"`
}

type ProvidersConfig struct {
	GraphBaseURL       string        `mapstructure:"graph_base_url"`
	Timeout            time.Duration `mapstructure:"timeout"`
	ConnectionCacheTTL time.Duration `mapstructure:"connection_cache_ttl"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Providers ProvidersConfig `mapstructure:"providers"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/app")
	viper.AddConfigPath("/app/config")

	viper.AutomaticEnv()

	viper.SetDefault("dispatch.queue", "broadcast_dispatch")
	viper.SetDefault("dispatch.concurrency", 4)
	viper.SetDefault("dispatch.default_delay_ms", 1000)
	viper.SetDefault("dispatch.default_jitter", 0.1)
	viper.SetDefault("dispatch.health_port", 8081)
	viper.SetDefault("providers.graph_base_url", "https://graph.facebook.com/v19.0")
	viper.SetDefault("providers.timeout", 15*time.Second)
	viper.SetDefault("providers.connection_cache_ttl", 5*time.Minute)

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Environment overrides for containerized deployments
	if host := os.Getenv("DB_HOST"); host != "" {
		config.Database.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		config.Database.Port, _ = strconv.Atoi(port)
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		config.Redis.URL = url
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.JWT.Secret = secret
	}

	return &config, nil
}

func (c *DatabaseConfig) ToPostgresConfig() postgres.Config {
	return postgres.Config{
		Host:     c.Host,
		Port:     c.Port,
		User:     c.User,
		Password: c.Password,
		Name:     c.Name,
		SSLMode:  c.SSLMode,
	}
}

func (c *RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}

func (c *DispatchConfig) ToDispatcherConfig() worker.DispatcherConfig {
	return worker.DispatcherConfig{
		Queue:       c.Queue,
		Concurrency: c.Concurrency,
	}
}

func (c *DispatchConfig) ToDefaults() broadcast.Defaults {
	return broadcast.Defaults{
		DelayMs: c.DefaultDelayMs,
		Jitter:  c.DefaultJitter,
	}
}

func (c *ProvidersConfig) ToRegistryConfig() sender.RegistryConfig {
	return sender.RegistryConfig{
		GraphBaseURL: c.GraphBaseURL,
		Timeout:      c.Timeout,
		CacheTTL:     c.ConnectionCacheTTL,
	}
}
