// Package config provides configuration management for the coordination core.
// This file centralizes port constants to avoid duplication across commands.
package config

// Service ports
const (
	// CoordinatorPort is the port for the coordinator's own HTTP surface, if any.
	CoordinatorPort = 8081

	// VaultPort is the default port for HashiCorp Vault.
	VaultPort = 8200

	// PostgresPort is the default port for PostgreSQL.
	PostgresPort = 5432

	// RedisPort is the default port for Redis.
	RedisPort = 6379

	// NATSPort is the default port for NATS messaging.
	NATSPort = 4222
)

// Monitoring service ports
const (
	// MetricsPort is the default port for the Prometheus/health server.
	MetricsPort = 9100

	// PrometheusPort is the default port for Prometheus itself.
	PrometheusPort = 9090

	// GrafanaPort is the default port for Grafana.
	GrafanaPort = 3000
)
