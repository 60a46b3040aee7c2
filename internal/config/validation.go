package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	sb.WriteString("\nPlease fix the above errors and try again.\n")
	return sb.String()
}

// Validate performs comprehensive configuration validation.
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateApp()...)
	errors = append(errors, c.validateDatabase()...)
	errors = append(errors, c.validateRedis()...)
	errors = append(errors, c.validateNATS()...)
	errors = append(errors, c.validateVault()...)
	errors = append(errors, c.validateMonitor()...)
	errors = append(errors, c.validateMessenger()...)
	errors = append(errors, c.validateConsensus()...)
	errors = append(errors, c.validateSimulator()...)
	errors = append(errors, c.validateNotify()...)
	errors = append(errors, c.validateEnvironmentRequirements()...)

	if len(errors) > 0 {
		return errors
	}

	return nil
}

func (c *Config) validateApp() ValidationErrors {
	var errors ValidationErrors

	if c.App.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "app.name",
			Message: "Application name is required",
		})
	}

	if c.App.Environment == "" {
		errors = append(errors, ValidationError{
			Field:   "app.environment",
			Message: "Environment is required (development, staging, or production)",
		})
	} else {
		validEnvs := []string{"development", "staging", "production"}
		valid := false
		for _, env := range validEnvs {
			if c.App.Environment == env {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, ValidationError{
				Field:   "app.environment",
				Message: fmt.Sprintf("Invalid environment '%s'. Must be one of: %v", c.App.Environment, validEnvs),
			})
		}
	}

	if c.App.LogLevel == "" {
		errors = append(errors, ValidationError{
			Field:   "app.log_level",
			Message: "Log level is required (debug, info, warn, error)",
		})
	}

	return errors
}

func (c *Config) validateDatabase() ValidationErrors {
	var errors ValidationErrors

	if c.Database.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "database.host",
			Message: "Database host is required",
		})
	}

	if c.Database.Port == 0 {
		errors = append(errors, ValidationError{
			Field:   "database.port",
			Message: "Database port is required",
		})
	} else if c.Database.Port < 1 || c.Database.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "database.port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.Database.Port),
		})
	}

	if c.Database.User == "" {
		errors = append(errors, ValidationError{
			Field:   "database.user",
			Message: "Database user is required",
		})
	}

	if c.Database.Database == "" {
		errors = append(errors, ValidationError{
			Field:   "database.database",
			Message: "Database name is required",
		})
	}

	if c.Database.Password == "" && c.App.Environment != "development" {
		errors = append(errors, ValidationError{
			Field:   "database.password",
			Message: "Database password is required in non-development environments",
		})
	}

	if c.Database.PoolSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.pool_size",
			Message: "Database pool size must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateRedis() ValidationErrors {
	var errors ValidationErrors

	if !c.Redis.Enabled {
		return errors
	}

	if c.Redis.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "redis.host",
			Message: "Redis host is required when redis.enabled is true",
		})
	}

	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "redis.port",
			Message: fmt.Sprintf("Invalid port %d. Must be between 1-65535", c.Redis.Port),
		})
	}

	return errors
}

func (c *Config) validateNATS() ValidationErrors {
	var errors ValidationErrors

	if !c.NATS.Enabled {
		return errors
	}

	if c.NATS.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "nats.url",
			Message: "NATS URL is required when nats.enabled is true",
		})
	} else if !strings.HasPrefix(c.NATS.URL, "nats://") && !strings.HasPrefix(c.NATS.URL, "tls://") {
		errors = append(errors, ValidationError{
			Field:   "nats.url",
			Message: "NATS URL must start with 'nats://' or 'tls://'",
		})
	}

	return errors
}

func (c *Config) validateVault() ValidationErrors {
	var errors ValidationErrors

	if !c.Vault.Enabled {
		return errors
	}

	if c.Vault.Addr == "" {
		errors = append(errors, ValidationError{
			Field:   "vault.addr",
			Message: "Vault address is required when vault.enabled is true",
		})
	}

	if c.Vault.Path == "" {
		errors = append(errors, ValidationError{
			Field:   "vault.path",
			Message: "Vault secret path is required when vault.enabled is true",
		})
	}

	return errors
}

func (c *Config) validateMonitor() ValidationErrors {
	var errors ValidationErrors

	if c.Monitor.IntervalSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "monitor.interval_seconds",
			Message: "Monitor interval must be at least 1 second",
		})
	}

	if c.Monitor.MaxConsecutiveFailures < 1 {
		errors = append(errors, ValidationError{
			Field:   "monitor.max_consecutive_failures",
			Message: "Monitor max_consecutive_failures must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateMessenger() ValidationErrors {
	var errors ValidationErrors

	if c.Messenger.MaxRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "messenger.max_retries",
			Message: "Messenger max_retries must be non-negative",
		})
	}

	if c.Messenger.RetryDelaySeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "messenger.retry_delay_seconds",
			Message: "Messenger retry_delay_seconds must be at least 1",
		})
	}

	if c.Messenger.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "messenger.batch_size",
			Message: "Messenger batch_size must be at least 1",
		})
	}

	if c.Messenger.QueueRefreshSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "messenger.queue_refresh_seconds",
			Message: "Messenger queue_refresh_seconds must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateConsensus() ValidationErrors {
	var errors ValidationErrors

	if c.Consensus.DefaultMaxRounds < 1 {
		errors = append(errors, ValidationError{
			Field:   "consensus.default_max_rounds",
			Message: "Consensus default_max_rounds must be at least 1",
		})
	}

	if c.Consensus.DefaultTimeoutMinutes < 1 {
		errors = append(errors, ValidationError{
			Field:   "consensus.default_timeout_minutes",
			Message: "Consensus default_timeout_minutes must be at least 1",
		})
	}

	if c.Consensus.DefaultConsensusThreshold <= 0 || c.Consensus.DefaultConsensusThreshold > 1 {
		errors = append(errors, ValidationError{
			Field:   "consensus.default_consensus_threshold",
			Message: fmt.Sprintf("Invalid default_consensus_threshold %.2f. Must be between 0 (exclusive) and 1", c.Consensus.DefaultConsensusThreshold),
		})
	}

	return errors
}

func (c *Config) validateSimulator() ValidationErrors {
	var errors ValidationErrors

	if c.Simulator.MaxConcurrentSimulations < 1 {
		errors = append(errors, ValidationError{
			Field:   "simulator.max_concurrent_simulations",
			Message: "Simulator max_concurrent_simulations must be at least 1",
		})
	}

	if c.Simulator.SimulationTimeoutSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "simulator.simulation_timeout_seconds",
			Message: "Simulator simulation_timeout_seconds must be at least 1",
		})
	}

	if c.Simulator.ResultRetentionDays < 1 {
		errors = append(errors, ValidationError{
			Field:   "simulator.result_retention_days",
			Message: "Simulator result_retention_days must be at least 1",
		})
	}

	if c.Simulator.RateLimitPerWindow < 1 {
		errors = append(errors, ValidationError{
			Field:   "simulator.rate_limit_per_window",
			Message: "Simulator rate_limit_per_window must be at least 1",
		})
	}

	if c.Simulator.RateLimitWindowMinutes < 1 {
		errors = append(errors, ValidationError{
			Field:   "simulator.rate_limit_window_minutes",
			Message: "Simulator rate_limit_window_minutes must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateNotify() ValidationErrors {
	var errors ValidationErrors

	if !c.Notify.Enabled {
		return errors
	}

	if c.Notify.TelegramToken == "" {
		errors = append(errors, ValidationError{
			Field:   "notify.telegram_token",
			Message: "Telegram token is required when notify.enabled is true",
		})
	}

	if c.Notify.TelegramChatID == 0 {
		errors = append(errors, ValidationError{
			Field:   "notify.telegram_chat_id",
			Message: "Telegram chat ID is required when notify.enabled is true",
		})
	}

	return errors
}

func (c *Config) validateEnvironmentRequirements() ValidationErrors {
	var errors ValidationErrors

	if c.App.Environment == "production" {
		errors = append(errors, ValidateProductionSecrets(c)...)

		if c.Database.SSLMode == "disable" {
			errors = append(errors, ValidationError{
				Field:   "database.ssl_mode",
				Message: "SSL must be enabled for database in production",
			})
		}

		if !c.Vault.Enabled {
			errors = append(errors, ValidationError{
				Field:   "vault.enabled",
				Message: "Vault should be enabled in production for credential sourcing",
			})
		}
	}

	return errors
}

// ValidateAndLoad loads and validates configuration. configPath can be
// empty to use default config locations.
func ValidateAndLoad(configPath string) (*Config, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}
