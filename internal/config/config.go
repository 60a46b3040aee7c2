// Package config loads layered configuration (defaults, YAML file,
// environment variables) for the coordination core.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Vault     VaultConfig     `mapstructure:"vault"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Messenger MessengerConfig `mapstructure:"messenger"`
	Consensus ConsensusConfig `mapstructure:"consensus"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains Redis settings, used for the simulator rate
// limiter.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig contains NATS settings for the messenger's live-notify
// channel.
type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// VaultConfig contains Vault settings for database credential sourcing.
type VaultConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

// MonitorConfig configures the Regulatory Monitor.
type MonitorConfig struct {
	IntervalSeconds        int `mapstructure:"interval_seconds"`
	MaxConsecutiveFailures int `mapstructure:"max_consecutive_failures"`
}

// MessengerConfig configures the Inter-Agent Messenger.
type MessengerConfig struct {
	MaxRetries            int `mapstructure:"max_retries"`
	RetryDelaySeconds      int `mapstructure:"retry_delay_seconds"`
	BatchSize              int `mapstructure:"batch_size"`
	QueueRefreshSeconds    int `mapstructure:"queue_refresh_seconds"`
}

// ConsensusConfig configures default consensus behavior.
type ConsensusConfig struct {
	DefaultMaxRounds          int     `mapstructure:"default_max_rounds"`
	DefaultTimeoutMinutes     int     `mapstructure:"default_timeout_minutes"`
	DefaultConsensusThreshold float64 `mapstructure:"default_consensus_threshold"`
}

// SimulatorConfig configures the Regulatory Simulator.
type SimulatorConfig struct {
	MaxConcurrentSimulations int `mapstructure:"max_concurrent_simulations"`
	SimulationTimeoutSeconds int `mapstructure:"simulation_timeout_seconds"`
	ResultRetentionDays      int `mapstructure:"result_retention_days"`
	RateLimitPerWindow       int `mapstructure:"rate_limit_per_window"`
	RateLimitWindowMinutes   int `mapstructure:"rate_limit_window_minutes"`
}

// NotifyConfig configures the operator alert sink for CRITICAL items.
type NotifyConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	TelegramToken  string `mapstructure:"telegram_token"`
	TelegramChatID int64  `mapstructure:"telegram_chat_id"`
}

// MetricsConfig configures the Prometheus/health HTTP server.
type MetricsConfig struct {
	Port          int  `mapstructure:"port"`
	EnableMetrics bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("REGCOORD")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "regulatory-coordinator")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "regcoord")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")

	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.path", "secret/data/regcoord/database")

	v.SetDefault("monitor.interval_seconds", 60)
	v.SetDefault("monitor.max_consecutive_failures", 5)

	v.SetDefault("messenger.max_retries", 3)
	v.SetDefault("messenger.retry_delay_seconds", 30)
	v.SetDefault("messenger.batch_size", 50)
	v.SetDefault("messenger.queue_refresh_seconds", 5)

	v.SetDefault("consensus.default_max_rounds", 3)
	v.SetDefault("consensus.default_timeout_minutes", 10)
	v.SetDefault("consensus.default_consensus_threshold", 0.7)

	v.SetDefault("simulator.max_concurrent_simulations", 5)
	v.SetDefault("simulator.simulation_timeout_seconds", 3600)
	v.SetDefault("simulator.result_retention_days", 90)
	v.SetDefault("simulator.rate_limit_per_window", 12)
	v.SetDefault("simulator.rate_limit_window_minutes", 10)

	v.SetDefault("notify.enabled", false)

	v.SetDefault("metrics.port", 9100)
	v.SetDefault("metrics.enable_metrics", true)
}

// GetDSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// GetRedisAddr returns the Redis address.
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *MonitorConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

func (c *MessengerConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

func (c *MessengerConfig) QueueRefreshInterval() time.Duration {
	return time.Duration(c.QueueRefreshSeconds) * time.Second
}

func (c *SimulatorConfig) SimulationTimeout() time.Duration {
	return time.Duration(c.SimulationTimeoutSeconds) * time.Second
}

func (c *SimulatorConfig) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowMinutes) * time.Minute
}

func (c *ConsensusConfig) DefaultTimeout() time.Duration {
	return time.Duration(c.DefaultTimeoutMinutes) * time.Minute
}
