package db

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/compliancefabric/coordinator/internal/breaker"
	"github.com/compliancefabric/coordinator/internal/vault"
)

// DB wraps the PostgreSQL connection pool backing the Durable Store.
type DB struct {
	pool           *pgxpool.Pool
	circuitBreaker *breaker.Manager
}

// New creates a new database connection pool.
// It first tries to get credentials from Vault, then falls back to DATABASE_URL env var.
func New(ctx context.Context) (*DB, error) {
	var databaseURL string

	if vaultClient, err := vault.NewClientFromEnv(); err == nil {
		if dbConfig, err := vaultClient.GetDatabaseConfig(ctx); err == nil {
			databaseURL = dbConfig.ConnectionString()
			log.Info().Msg("database credentials loaded from Vault")
		} else {
			log.Debug().Err(err).Msg("could not load database config from Vault, falling back to env")
		}
	}

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}

	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL not set and Vault credentials not available")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("database connection pool created successfully")

	return &DB{
		pool:           pool,
		circuitBreaker: breaker.NewManager(),
	}, nil
}

// Close closes the database connection pool.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
		log.Info().Msg("database connection pool closed")
	}
}

// Ping checks the database connection.
func (db *DB) Ping(ctx context.Context) error {
	if db.pool == nil {
		return fmt.Errorf("database connection pool is nil")
	}
	return db.pool.Ping(ctx)
}

// Pool returns the underlying connection pool.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Health checks database connectivity.
func (db *DB) Health(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// SetPool sets the connection pool (used by tests).
func (db *DB) SetPool(pool *pgxpool.Pool) {
	db.pool = pool
}

// ExecuteWithCircuitBreaker executes a database operation with circuit
// breaker protection, preventing cascading failures during store outages.
func (db *DB) ExecuteWithCircuitBreaker(operation func() (interface{}, error)) (interface{}, error) {
	if db.circuitBreaker == nil {
		return operation()
	}

	result, err := db.circuitBreaker.Store().Execute(operation)
	if err != nil {
		if err == gobreaker.ErrOpenState {
			db.circuitBreaker.Metrics().RecordRequest("store", false)
			return nil, fmt.Errorf("durable store circuit breaker is open, service unavailable")
		}
		db.circuitBreaker.Metrics().RecordRequest("store", false)
		return nil, err
	}

	db.circuitBreaker.Metrics().RecordRequest("store", true)
	return result, nil
}

// GetCircuitBreaker returns the circuit breaker manager for this database.
func (db *DB) GetCircuitBreaker() *breaker.Manager {
	return db.circuitBreaker
}

// execPool runs an Exec through the store circuit breaker. Every
// repository method routes its writes through this instead of calling
// db.pool directly.
func (db *DB) execPool(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	result, err := db.ExecuteWithCircuitBreaker(func() (interface{}, error) {
		return db.pool.Exec(ctx, sql, args...)
	})
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return result.(pgconn.CommandTag), nil
}

// queryPool runs a Query through the store circuit breaker.
func (db *DB) queryPool(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	result, err := db.ExecuteWithCircuitBreaker(func() (interface{}, error) {
		return db.pool.Query(ctx, sql, args...)
	})
	if err != nil {
		return nil, err
	}
	return result.(pgx.Rows), nil
}

// breakerRow defers QueryRow's error, which pgx only surfaces on Scan,
// through the circuit breaker so a failing store trips it exactly as
// queryPool and execPool do.
type breakerRow struct {
	db  *DB
	row pgx.Row
}

func (r breakerRow) Scan(dest ...interface{}) error {
	_, err := r.db.ExecuteWithCircuitBreaker(func() (interface{}, error) {
		return nil, r.row.Scan(dest...)
	})
	return err
}

// queryRowPool runs a QueryRow through the store circuit breaker.
func (db *DB) queryRowPool(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return breakerRow{db: db, row: db.pool.QueryRow(ctx, sql, args...)}
}

// SetCircuitBreaker sets a custom circuit breaker manager, useful for
// sharing breakers across components.
func (db *DB) SetCircuitBreaker(cb *breaker.Manager) {
	db.circuitBreaker = cb
}
