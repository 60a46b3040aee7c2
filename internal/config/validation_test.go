package config

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getValidConfig returns a valid configuration for testing
func getValidConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "regulatory-coordinator",
			Version:     "0.1.0",
			Environment: "development",
			LogLevel:    "info",
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "secure_password",
			Database: "regcoord",
			SSLMode:  "disable",
			PoolSize: 10,
		},
		Redis: RedisConfig{
			Enabled: true,
			Host:    "localhost",
			Port:    6379,
			DB:      0,
		},
		NATS: NATSConfig{
			Enabled: true,
			URL:     "nats://localhost:4222",
		},
		Vault: VaultConfig{
			Enabled: false,
		},
		Monitor: MonitorConfig{
			IntervalSeconds:        60,
			MaxConsecutiveFailures: 5,
		},
		Messenger: MessengerConfig{
			MaxRetries:          3,
			RetryDelaySeconds:   30,
			BatchSize:           50,
			QueueRefreshSeconds: 5,
		},
		Consensus: ConsensusConfig{
			DefaultMaxRounds:          3,
			DefaultTimeoutMinutes:     10,
			DefaultConsensusThreshold: 0.7,
		},
		Simulator: SimulatorConfig{
			MaxConcurrentSimulations: 5,
			SimulationTimeoutSeconds: 3600,
			ResultRetentionDays:      90,
			RateLimitPerWindow:       12,
			RateLimitWindowMinutes:   10,
		},
		Notify: NotifyConfig{
			Enabled: false,
		},
		Metrics: MetricsConfig{
			Port:          9100,
			EnableMetrics: true,
		},
	}
}

func TestValidateValidConfig(t *testing.T) {
	cfg := getValidConfig()
	err := cfg.Validate()
	assert.NoError(t, err, "Valid configuration should not produce errors")
}

func TestValidateApp(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name:        "missing app name",
			modify:      func(c *Config) { c.App.Name = "" },
			expectError: "app.name",
		},
		{
			name:        "missing environment",
			modify:      func(c *Config) { c.App.Environment = "" },
			expectError: "app.environment",
		},
		{
			name:        "invalid environment",
			modify:      func(c *Config) { c.App.Environment = "invalid_env" },
			expectError: "Invalid environment",
		},
		{
			name:        "missing log level",
			modify:      func(c *Config) { c.App.LogLevel = "" },
			expectError: "app.log_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateDatabase(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name:        "missing host",
			modify:      func(c *Config) { c.Database.Host = "" },
			expectError: "database.host",
		},
		{
			name:        "missing port",
			modify:      func(c *Config) { c.Database.Port = 0 },
			expectError: "database.port",
		},
		{
			name:        "invalid port - too high",
			modify:      func(c *Config) { c.Database.Port = 70000 },
			expectError: "Invalid port",
		},
		{
			name:        "invalid port - negative",
			modify:      func(c *Config) { c.Database.Port = -1 },
			expectError: "Invalid port",
		},
		{
			name:        "missing user",
			modify:      func(c *Config) { c.Database.User = "" },
			expectError: "database.user",
		},
		{
			name:        "missing database name",
			modify:      func(c *Config) { c.Database.Database = "" },
			expectError: "database.database",
		},
		{
			name: "missing password in production",
			modify: func(c *Config) {
				c.App.Environment = "production"
				c.Database.Password = ""
				c.Vault.Enabled = true
			},
			expectError: "password is required",
		},
		{
			name:        "invalid pool size",
			modify:      func(c *Config) { c.Database.PoolSize = 0 },
			expectError: "pool size must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateRedis(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name:        "missing host when enabled",
			modify:      func(c *Config) { c.Redis.Host = "" },
			expectError: "redis.host",
		},
		{
			name:        "invalid port",
			modify:      func(c *Config) { c.Redis.Port = 70000 },
			expectError: "Invalid port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateRedisDisabledSkipsChecks(t *testing.T) {
	cfg := getValidConfig()
	cfg.Redis.Enabled = false
	cfg.Redis.Host = ""
	cfg.Redis.Port = 0
	assert.NoError(t, cfg.Validate())
}

func TestValidateNATS(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name:        "missing URL when enabled",
			modify:      func(c *Config) { c.NATS.URL = "" },
			expectError: "nats.url",
		},
		{
			name:        "invalid URL format",
			modify:      func(c *Config) { c.NATS.URL = "http://localhost:4222" },
			expectError: "must start with 'nats://'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateVault(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "missing addr when enabled",
			modify: func(c *Config) {
				c.Vault.Enabled = true
				c.Vault.Path = "secret/data/regcoord/database"
			},
			expectError: "vault.addr",
		},
		{
			name: "missing path when enabled",
			modify: func(c *Config) {
				c.Vault.Enabled = true
				c.Vault.Addr = "http://localhost:8200"
			},
			expectError: "vault.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateMonitor(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name:        "interval too low",
			modify:      func(c *Config) { c.Monitor.IntervalSeconds = 0 },
			expectError: "monitor.interval_seconds",
		},
		{
			name:        "max_consecutive_failures too low",
			modify:      func(c *Config) { c.Monitor.MaxConsecutiveFailures = 0 },
			expectError: "monitor.max_consecutive_failures",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateMessenger(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name:        "negative max retries",
			modify:      func(c *Config) { c.Messenger.MaxRetries = -1 },
			expectError: "messenger.max_retries",
		},
		{
			name:        "retry delay too low",
			modify:      func(c *Config) { c.Messenger.RetryDelaySeconds = 0 },
			expectError: "messenger.retry_delay_seconds",
		},
		{
			name:        "batch size too low",
			modify:      func(c *Config) { c.Messenger.BatchSize = 0 },
			expectError: "messenger.batch_size",
		},
		{
			name:        "queue refresh too low",
			modify:      func(c *Config) { c.Messenger.QueueRefreshSeconds = 0 },
			expectError: "messenger.queue_refresh_seconds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateConsensus(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name:        "max rounds too low",
			modify:      func(c *Config) { c.Consensus.DefaultMaxRounds = 0 },
			expectError: "consensus.default_max_rounds",
		},
		{
			name:        "timeout too low",
			modify:      func(c *Config) { c.Consensus.DefaultTimeoutMinutes = 0 },
			expectError: "consensus.default_timeout_minutes",
		},
		{
			name:        "threshold out of range - zero",
			modify:      func(c *Config) { c.Consensus.DefaultConsensusThreshold = 0 },
			expectError: "Invalid default_consensus_threshold",
		},
		{
			name:        "threshold out of range - above one",
			modify:      func(c *Config) { c.Consensus.DefaultConsensusThreshold = 1.5 },
			expectError: "Invalid default_consensus_threshold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateSimulator(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name:        "max concurrent too low",
			modify:      func(c *Config) { c.Simulator.MaxConcurrentSimulations = 0 },
			expectError: "simulator.max_concurrent_simulations",
		},
		{
			name:        "timeout too low",
			modify:      func(c *Config) { c.Simulator.SimulationTimeoutSeconds = 0 },
			expectError: "simulator.simulation_timeout_seconds",
		},
		{
			name:        "retention too low",
			modify:      func(c *Config) { c.Simulator.ResultRetentionDays = 0 },
			expectError: "simulator.result_retention_days",
		},
		{
			name:        "rate limit too low",
			modify:      func(c *Config) { c.Simulator.RateLimitPerWindow = 0 },
			expectError: "simulator.rate_limit_per_window",
		},
		{
			name:        "rate limit window too low",
			modify:      func(c *Config) { c.Simulator.RateLimitWindowMinutes = 0 },
			expectError: "simulator.rate_limit_window_minutes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateNotify(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "missing token when enabled",
			modify: func(c *Config) {
				c.Notify.Enabled = true
				c.Notify.TelegramChatID = 123
			},
			expectError: "notify.telegram_token",
		},
		{
			name: "missing chat id when enabled",
			modify: func(c *Config) {
				c.Notify.Enabled = true
				c.Notify.TelegramToken = "123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw0"
			},
			expectError: "notify.telegram_chat_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateEnvironmentRequirements(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "SSL disabled in production",
			modify: func(c *Config) {
				c.App.Environment = "production"
				c.Vault.Enabled = true
				c.Database.SSLMode = "disable"
			},
			expectError: "SSL must be enabled for database in production",
		},
		{
			name: "vault disabled in production",
			modify: func(c *Config) {
				c.App.Environment = "production"
				c.Database.SSLMode = "require"
				c.Vault.Enabled = false
			},
			expectError: "vault.enabled",
		},
		{
			name: "weak database password in production",
			modify: func(c *Config) {
				c.App.Environment = "production"
				c.Vault.Enabled = true
				c.Database.SSLMode = "require"
				c.Database.Password = "weak"
			},
			expectError: "database.password",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errors := ValidationErrors{
		{Field: "field1", Message: "error message 1"},
		{Field: "field2", Message: "error message 2"},
		{Field: "field3", Message: "error message 3"},
	}

	errMsg := errors.Error()

	assert.Contains(t, errMsg, "Configuration validation failed with 3 error(s)")
	assert.Contains(t, errMsg, "1. field1: error message 1")
	assert.Contains(t, errMsg, "2. field2: error message 2")
	assert.Contains(t, errMsg, "3. field3: error message 3")
	assert.Contains(t, errMsg, "Please fix the above errors and try again")
}

func TestValidationErrors_Empty(t *testing.T) {
	errors := ValidationErrors{}
	assert.Equal(t, "", errors.Error())
}

func TestValidateAndLoad(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	require.NoError(t, err)
	defer func() { _ = os.Remove(tmpfile.Name()) }()

	invalidConfig := `
app:
  name: ""
  environment: "development"
  log_level: "info"
`
	_, err = tmpfile.WriteString(invalidConfig)
	require.NoError(t, err)
	_ = tmpfile.Close()

	_, err = ValidateAndLoad(tmpfile.Name())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "app.name"))
}
