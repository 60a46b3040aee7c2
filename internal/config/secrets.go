package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"

	vault "github.com/hashicorp/vault/api"
	"github.com/rs/zerolog/log"
)

// SecretStrength represents the strength level of a secret
type SecretStrength int

const (
	SecretStrengthWeak SecretStrength = iota
	SecretStrengthMedium
	SecretStrengthStrong
)

// Common placeholder values that should never be used
var commonPlaceholders = []string{
	"changeme",
	"changeme_in_production",
	"please_change_me",
	"your_api_key",
	"your_secret",
	"test",
	"test123",
	"password",
	"password123",
	"admin",
	"admin123",
	"secret",
	"secret123",
	"postgres",
	"example",
	"sample",
	"demo",
	"localhost",
	"default",
}

// Common weak passwords (subset - full list would be much larger)
var commonWeakPasswords = []string{
	"123456",
	"password",
	"12345678",
	"qwerty",
	"abc123",
	"monkey",
	"letmein",
	"trustno1",
	"dragon",
	"baseball",
	"iloveyou",
	"master",
	"sunshine",
	"passw0rd",
	"shadow",
	"123123",
	"654321",
	"superman",
	"qazwsx",
}

// SecretValidationResult contains the result of secret validation
type SecretValidationResult struct {
	IsValid  bool
	Strength SecretStrength
	Errors   []string
	Warnings []string
}

// ValidateSecret validates a secret/password for strength and security.
// minLength is the minimum acceptable length; requireStrong determines
// if strong passwords are required (typically true for production).
func ValidateSecret(secret string, name string, minLength int, requireStrong bool) SecretValidationResult {
	result := SecretValidationResult{
		IsValid:  true,
		Strength: SecretStrengthStrong,
		Errors:   []string{},
		Warnings: []string{},
	}

	if secret == "" {
		result.IsValid = false
		result.Strength = SecretStrengthWeak
		result.Errors = append(result.Errors, fmt.Sprintf("%s cannot be empty", name))
		return result
	}

	lowerSecret := strings.ToLower(secret)
	for _, placeholder := range commonPlaceholders {
		if lowerSecret == placeholder || strings.Contains(lowerSecret, placeholder) {
			result.IsValid = false
			result.Strength = SecretStrengthWeak
			result.Errors = append(result.Errors, fmt.Sprintf("%s appears to be a placeholder value (%s)", name, placeholder))
			return result
		}
	}

	for _, weak := range commonWeakPasswords {
		if lowerSecret == strings.ToLower(weak) {
			result.IsValid = false
			result.Strength = SecretStrengthWeak
			result.Errors = append(result.Errors, fmt.Sprintf("%s is a commonly known weak password", name))
			return result
		}
	}

	if len(secret) < minLength {
		result.IsValid = false
		result.Strength = SecretStrengthWeak
		result.Errors = append(result.Errors, fmt.Sprintf("%s must be at least %d characters (got %d)", name, minLength, len(secret)))
		return result
	}

	var (
		hasUpper   = false
		hasLower   = false
		hasNumber  = false
		hasSpecial = false
	)

	for _, char := range secret {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	typesCount := 0
	for _, has := range []bool{hasUpper, hasLower, hasNumber, hasSpecial} {
		if has {
			typesCount++
		}
	}

	if len(secret) >= 16 && typesCount >= 3 {
		result.Strength = SecretStrengthStrong
	} else if len(secret) >= 12 && typesCount >= 2 {
		result.Strength = SecretStrengthMedium
	} else {
		result.Strength = SecretStrengthWeak
	}

	if requireStrong {
		switch result.Strength {
		case SecretStrengthWeak:
			result.IsValid = false
			result.Errors = append(result.Errors, fmt.Sprintf("%s is too weak for production use", name))
			if len(secret) < 12 {
				result.Errors = append(result.Errors, "- Use at least 12 characters")
			}
			if typesCount < 3 {
				var suggestions []string
				if !hasUpper {
					suggestions = append(suggestions, "uppercase letters")
				}
				if !hasLower {
					suggestions = append(suggestions, "lowercase letters")
				}
				if !hasNumber {
					suggestions = append(suggestions, "numbers")
				}
				if !hasSpecial {
					suggestions = append(suggestions, "special characters")
				}
				result.Errors = append(result.Errors, fmt.Sprintf("- Include at least 3 of: %s", strings.Join(suggestions, ", ")))
			}
		case SecretStrengthMedium:
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s has medium strength - consider using a stronger secret", name))
		}
	}

	if hasSequentialChars(secret) {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s contains sequential characters (e.g., 123, abc) - consider using more random values", name))
		if result.Strength == SecretStrengthMedium {
			result.Strength = SecretStrengthWeak
			if requireStrong {
				result.IsValid = false
			}
		}
	}

	if hasRepeatedChars(secret, 3) {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s contains repeated characters - consider using more varied values", name))
	}

	if pattern := containsKeyboardPattern(lowerSecret); pattern != "" {
		msg := fmt.Sprintf("%s contains a keyboard pattern (%s) and is not sufficiently random", name, pattern)
		result.Strength = SecretStrengthWeak
		if requireStrong {
			result.Errors = append(result.Errors, msg)
			result.IsValid = false
		} else {
			result.Warnings = append(result.Warnings, msg)
		}
	}

	return result
}

// keyboardPatterns lists common keyboard-walk and numeric-sequence
// patterns, longest-first so a superstring match wins over a substring.
var keyboardPatterns = []string{
	"qwertyuiop", "qwerty", "ytrewq",
	"asdfghjkl", "asdfgh", "lkjhgfdsa", "hgfdsa",
	"zxcvbnm", "zxcvbn", "mnbvcxz", "nbvcxz",
	"123456789", "12345678", "987654321", "87654321",
	"1qaz2wsx", "qazwsx",
}

// containsKeyboardPattern reports the first known keyboard-walk or
// numeric-sequence pattern found in s (expected lowercase), or "".
func containsKeyboardPattern(s string) string {
	for _, pattern := range keyboardPatterns {
		if strings.Contains(s, pattern) {
			return pattern
		}
	}
	return ""
}

func hasSequentialChars(s string) bool {
	for i := 0; i < len(s)-2; i++ {
		if unicode.IsDigit(rune(s[i])) && unicode.IsDigit(rune(s[i+1])) && unicode.IsDigit(rune(s[i+2])) {
			if (s[i+1] == s[i]+1) && (s[i+2] == s[i]+2) {
				return true
			}
		}
	}

	lower := strings.ToLower(s)
	for i := 0; i < len(lower)-2; i++ {
		if (lower[i+1] == lower[i]+1) && (lower[i+2] == lower[i]+2) {
			return true
		}
	}

	return false
}

func hasRepeatedChars(s string, n int) bool {
	if len(s) < n {
		return false
	}

	for i := 0; i < len(s)-n+1; i++ {
		allSame := true
		for j := 1; j < n; j++ {
			if s[i+j] != s[i] {
				allSame = false
				break
			}
		}
		if allSame {
			return true
		}
	}

	return false
}

// ValidateProductionSecrets validates all secrets required for production
// use and returns errors for anything weak or placeholder-like.
func ValidateProductionSecrets(cfg *Config) ValidationErrors {
	var errors ValidationErrors

	const minProductionLength = 12

	if cfg.Database.Password != "" {
		result := ValidateSecret(cfg.Database.Password, "Database password", minProductionLength, true)
		for _, err := range result.Errors {
			errors = append(errors, ValidationError{Field: "database.password", Message: err})
		}
	}

	if cfg.Redis.Enabled && cfg.Redis.Password != "" {
		result := ValidateSecret(cfg.Redis.Password, "Redis password", minProductionLength, true)
		for _, err := range result.Errors {
			errors = append(errors, ValidationError{Field: "redis.password", Message: err})
		}
	}

	if cfg.Notify.Enabled && cfg.Notify.TelegramToken != "" {
		result := ValidateSecret(cfg.Notify.TelegramToken, "Telegram bot token", 20, false)
		for _, err := range result.Errors {
			errors = append(errors, ValidationError{Field: "notify.telegram_token", Message: err})
		}
	}

	return errors
}

// GetSecretStrengthDescription returns a human-readable description of secret strength
func GetSecretStrengthDescription(strength SecretStrength) string {
	switch strength {
	case SecretStrengthWeak:
		return "Weak"
	case SecretStrengthMedium:
		return "Medium"
	case SecretStrengthStrong:
		return "Strong"
	default:
		return "Unknown"
	}
}

// VaultClient wraps the HashiCorp Vault client for database credential
// sourcing. Only token authentication is supported; the coordinator has
// no Kubernetes or AppRole deployment target in scope.
type VaultClient struct {
	client *vault.Client
	path   string
}

// NewVaultClient creates a Vault client from the given configuration.
func NewVaultClient(cfg VaultConfig) (*VaultClient, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("vault is not enabled in configuration")
	}

	vaultCfg := vault.DefaultConfig()
	vaultCfg.Address = cfg.Addr

	client, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}

	token := os.Getenv("VAULT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("VAULT_TOKEN not set for token authentication")
	}
	client.SetToken(token)

	log.Info().
		Str("address", cfg.Addr).
		Str("path", cfg.Path).
		Msg("Vault client initialized successfully")

	return &VaultClient{client: client, path: cfg.Path}, nil
}

// GetSecret retrieves a secret from Vault at the client's configured path.
func (vc *VaultClient) GetSecret(ctx context.Context) (map[string]interface{}, error) {
	log.Debug().Str("path", vc.path).Msg("Reading secret from Vault")

	secret, err := vc.client.Logical().ReadWithContext(ctx, vc.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret from Vault: %w", err)
	}
	if secret == nil {
		return nil, fmt.Errorf("secret not found at path: %s", vc.path)
	}

	if data, ok := secret.Data["data"].(map[string]interface{}); ok {
		return data, nil
	}
	return secret.Data, nil
}

// LoadDatabaseSecretsFromVault overlays the database credentials in cfg
// with values read from Vault, falling back to the config/env values
// already present when Vault is disabled or a key is absent.
func LoadDatabaseSecretsFromVault(ctx context.Context, cfg *Config) error {
	if !cfg.Vault.Enabled {
		log.Debug().Msg("Vault integration disabled - using environment/config values for secrets")
		return nil
	}

	vc, err := NewVaultClient(cfg.Vault)
	if err != nil {
		return fmt.Errorf("failed to create Vault client: %w", err)
	}

	secrets, err := vc.GetSecret(ctx)
	if err != nil {
		return fmt.Errorf("failed to read database secrets from vault: %w", err)
	}

	if password, ok := secrets["password"].(string); ok && password != "" {
		cfg.Database.Password = password
		log.Info().Msg("loaded database password from Vault")
	}
	if user, ok := secrets["user"].(string); ok && user != "" {
		cfg.Database.User = user
	}
	if redisPassword, ok := secrets["redis_password"].(string); ok && redisPassword != "" {
		cfg.Redis.Password = redisPassword
		log.Info().Msg("loaded redis password from Vault")
	}
	if telegramToken, ok := secrets["telegram_token"].(string); ok && telegramToken != "" {
		cfg.Notify.TelegramToken = telegramToken
	}

	return nil
}
