package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ValidatorOptions contains options for configuration validation
type ValidatorOptions struct {
	VerifyConnectivity bool // Check database/Redis connectivity
	Timeout            time.Duration
}

// DefaultValidatorOptions returns default validator options for startup
func DefaultValidatorOptions() ValidatorOptions {
	return ValidatorOptions{
		VerifyConnectivity: true,
		Timeout:            5 * time.Second,
	}
}

// Validator handles configuration validation at startup
type Validator struct {
	config  *Config
	options ValidatorOptions
}

// NewValidator creates a new configuration validator
func NewValidator(config *Config, options ValidatorOptions) *Validator {
	return &Validator{
		config:  config,
		options: options,
	}
}

// ValidateStartup performs comprehensive startup validation. This should
// be called before starting any component.
func (v *Validator) ValidateStartup(ctx context.Context) error {
	log.Info().Msg("Validating configuration...")

	if err := v.validateProductionRequirements(); err != nil {
		return fmt.Errorf("production requirements validation failed: %w", err)
	}

	if err := v.validateEnvironmentVariables(); err != nil {
		return fmt.Errorf("environment variable validation failed: %w", err)
	}

	if v.options.VerifyConnectivity {
		if err := v.checkDatabaseConnectivity(ctx); err != nil {
			return fmt.Errorf("database connectivity check failed: %w", err)
		}

		if v.config.Redis.Enabled {
			if err := v.checkRedisConnectivity(ctx); err != nil {
				return fmt.Errorf("redis connectivity check failed: %w", err)
			}
		}
	}

	log.Info().Msg("Configuration validation completed successfully")
	return nil
}

// validateProductionRequirements checks production-specific security requirements
func (v *Validator) validateProductionRequirements() error {
	if v.config.App.Environment != "production" {
		log.Info().Str("environment", v.config.App.Environment).Msg("Non-production environment detected, skipping production requirements")
		return nil
	}

	log.Info().Msg("Production environment detected - enforcing production security requirements")

	var errors []string

	if !v.config.Vault.Enabled {
		errors = append(errors, "Vault must be enabled in production (set REGCOORD_VAULT_ENABLED=true)")
	} else if os.Getenv("VAULT_TOKEN") == "" {
		errors = append(errors, "VAULT_TOKEN must be set when Vault is enabled")
	}

	if v.config.Database.SSLMode == "disable" {
		errors = append(errors, "Database SSL cannot be disabled in production")
	}

	if v.config.Notify.Enabled && isPlaceholderValue(v.config.Notify.TelegramToken) {
		errors = append(errors, "notify.telegram_token cannot be a placeholder value in production")
	}

	if isPlaceholderValue(v.config.Database.Password) {
		errors = append(errors, "database.password cannot be a placeholder value in production")
	}

	if len(errors) > 0 {
		var errMsg strings.Builder
		errMsg.WriteString("\n==========================================================\n")
		errMsg.WriteString("PRODUCTION SECURITY REQUIREMENTS NOT MET\n")
		errMsg.WriteString("==========================================================\n\n")
		for i, err := range errors {
			errMsg.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err))
		}
		errMsg.WriteString("\nProduction deployment cannot proceed until these issues are resolved.\n")
		errMsg.WriteString("==========================================================\n")
		return fmt.Errorf("%s", errMsg.String())
	}

	log.Info().Msg("production security requirements validated successfully")
	return nil
}

// validateEnvironmentVariables checks that required environment variables are set
func (v *Validator) validateEnvironmentVariables() error {
	requiredVars := make(map[string]string)

	if os.Getenv("DATABASE_URL") == "" && v.config.Database.Host == "" {
		requiredVars["DATABASE_HOST or DATABASE_URL"] = "Database host is not configured"
	}

	if v.config.Redis.Enabled && v.config.Redis.Host == "" {
		requiredVars["REGCOORD_REDIS_HOST"] = "Redis is enabled but host is not configured"
	}

	if v.config.NATS.Enabled && v.config.NATS.URL == "" {
		requiredVars["REGCOORD_NATS_URL"] = "NATS is enabled but URL is not configured"
	}

	if len(requiredVars) > 0 {
		var errMsg strings.Builder
		errMsg.WriteString("Required environment variables are missing:\n\n")
		for varName, description := range requiredVars {
			errMsg.WriteString(fmt.Sprintf("  - %s: %s\n", varName, description))
		}
		errMsg.WriteString("\nPlease set these environment variables and try again.\n")
		return fmt.Errorf("%s", errMsg.String())
	}

	log.Info().Msg("environment variables validation passed")
	return nil
}

// checkDatabaseConnectivity tests database connection with timeout
func (v *Validator) checkDatabaseConnectivity(ctx context.Context) error {
	log.Info().Msg("checking database connectivity...")

	connCtx, cancel := context.WithTimeout(ctx, v.options.Timeout)
	defer cancel()

	connString := os.Getenv("DATABASE_URL")
	if connString == "" {
		connString = v.config.Database.GetDSN()
	}

	pool, err := pgxpool.New(connCtx, connString)
	if err != nil {
		return fmt.Errorf("failed to create database connection pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(connCtx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	var dbName string
	if err := pool.QueryRow(connCtx, "SELECT current_database()").Scan(&dbName); err != nil {
		return fmt.Errorf("failed to verify database: %w", err)
	}

	log.Info().
		Str("database", dbName).
		Str("host", v.config.Database.Host).
		Int("port", v.config.Database.Port).
		Msg("database connectivity check passed")

	return nil
}

// checkRedisConnectivity tests Redis connection with timeout
func (v *Validator) checkRedisConnectivity(ctx context.Context) error {
	log.Info().Msg("checking Redis connectivity...")

	connCtx, cancel := context.WithTimeout(ctx, v.options.Timeout)
	defer cancel()

	client := redis.NewClient(&redis.Options{
		Addr:     v.config.Redis.GetRedisAddr(),
		Password: v.config.Redis.Password,
		DB:       v.config.Redis.DB,
	})
	defer client.Close()

	if err := client.Ping(connCtx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}

	log.Info().
		Str("addr", v.config.Redis.GetRedisAddr()).
		Int("db", v.config.Redis.DB).
		Msg("redis connectivity check passed")

	return nil
}

// isPlaceholderValue checks if a value is likely a placeholder
func isPlaceholderValue(value string) bool {
	if value == "" {
		return false
	}
	lowerValue := strings.ToLower(value)
	placeholders := []string{
		"your_api_key",
		"your_secret",
		"changeme",
		"placeholder",
		"example",
		"test",
		"sample",
		"demo",
	}

	for _, placeholder := range placeholders {
		if strings.Contains(lowerValue, placeholder) {
			return true
		}
	}

	return false
}
