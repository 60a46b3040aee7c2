package testhelpers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/compliancefabric/coordinator/internal/db"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer holds the testcontainer instance and connection details
type PostgresContainer struct {
	Container     *postgres.PostgresContainer
	ConnectionStr string
	DB            *db.DB
	cleanupFuncs  []func()
	t             *testing.T
}

// SetupTestDatabase creates a PostgreSQL testcontainer for the durable store
func SetupTestDatabase(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("regcoord_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("testpassword"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	// Get connection string
	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to get connection string: %v", err)
	}

	// Create test database connection
	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to parse connection string: %v", err)
	}

	// Configure connection pool
	config.MaxConns = 5
	config.MinConns = 1
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	// Create pool
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create connection pool: %v", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to ping database: %v", err)
	}

	database := &db.DB{}
	database.SetPool(pool)

	tc := &PostgresContainer{
		Container:     container,
		ConnectionStr: connStr,
		DB:            database,
		cleanupFuncs:  []func(){},
		t:             t,
	}

	// Set up cleanup
	t.Cleanup(func() {
		tc.Cleanup()
	})

	return tc
}

// ApplyMigrations runs SQL migrations from the migrations directory
func (tc *PostgresContainer) ApplyMigrations(migrationsPath string) error {
	tc.t.Helper()

	ctx := context.Background()
	pool := tc.DB.Pool()

	// Read all migration files in order
	files, err := filepath.Glob(filepath.Join(migrationsPath, "*.sql"))
	if err != nil {
		return fmt.Errorf("failed to list migration files: %w", err)
	}

	// Sort files to ensure they run in order (001, 002, 003, etc.)
	// This works because files are named with numeric prefixes
	sort := func(i, j int) bool {
		return filepath.Base(files[i]) < filepath.Base(files[j])
	}

	// Simple bubble sort for the file list
	for i := 0; i < len(files); i++ {
		for j := i + 1; j < len(files); j++ {
			if !sort(i, j) {
				files[i], files[j] = files[j], files[i]
			}
		}
	}

	// Apply each migration in order, skipping down-migrations
	for _, migrationFile := range files {
		if matched, _ := filepath.Match("*_down.sql", filepath.Base(migrationFile)); matched {
			continue
		}

		tc.t.Logf("Applying migration: %s", filepath.Base(migrationFile))

		sqlBytes, err := os.ReadFile(migrationFile)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", migrationFile, err)
		}

		schema := string(sqlBytes)

		_, err = pool.Exec(ctx, schema)
		if err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", filepath.Base(migrationFile), err)
		}
	}

	return nil
}

// ApplyMigrationsLegacy provides a minimal schema if migration files are not available
func (tc *PostgresContainer) ApplyMigrationsLegacy() error {
	tc.t.Helper()

	ctx := context.Background()
	pool := tc.DB.Pool()

	schema := `
-- Agents registered as consensus/messenger participants
CREATE TABLE IF NOT EXISTS agents (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    role TEXT NOT NULL,
    voting_weight DOUBLE PRECISION NOT NULL DEFAULT 1,
    domain_expertise TEXT,
    confidence_threshold DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    is_active BOOLEAN NOT NULL DEFAULT true,
    last_active TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

-- Regulatory sources polled by the monitor
CREATE TABLE IF NOT EXISTS regulatory_sources (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    source_type TEXT NOT NULL,
    endpoint TEXT NOT NULL,
    poll_interval_seconds INTEGER NOT NULL DEFAULT 300,
    is_active BOOLEAN NOT NULL DEFAULT true,
    last_polled_at TIMESTAMP WITH TIME ZONE,
    last_success_at TIMESTAMP WITH TIME ZONE,
    consecutive_failures INTEGER NOT NULL DEFAULT 0,
    metadata JSONB,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

-- Regulatory items extracted and deduplicated by the monitor
CREATE TABLE IF NOT EXISTS regulatory_items (
    id TEXT PRIMARY KEY,
    source_id TEXT NOT NULL REFERENCES regulatory_sources(id),
    title TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    body TEXT,
    published_at TIMESTAMP WITH TIME ZONE,
    discovered_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    metadata JSONB,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

-- Messenger conversations
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    topic TEXT NOT NULL,
    created_by TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

-- Inter-agent messages
CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    conversation_id TEXT REFERENCES conversations(id),
    sender_id TEXT NOT NULL,
    recipient_id TEXT,
    message_type TEXT NOT NULL,
    priority TEXT NOT NULL DEFAULT 'NORMAL',
    payload JSONB,
    status TEXT NOT NULL DEFAULT 'PENDING',
    delivered_at TIMESTAMP WITH TIME ZONE,
    read_at TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

-- Message templates
CREATE TABLE IF NOT EXISTS message_templates (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    message_type TEXT NOT NULL,
    body_template TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

-- Delivery log for at-least-once delivery accounting
CREATE TABLE IF NOT EXISTS delivery_log (
    id BIGSERIAL PRIMARY KEY,
    message_id TEXT NOT NULL REFERENCES messages(id),
    attempt INTEGER NOT NULL,
    outcome TEXT NOT NULL,
    attempted_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

-- Consensus configurations and rounds
CREATE TABLE IF NOT EXISTS consensus_configs (
    id TEXT PRIMARY KEY,
    algorithm TEXT NOT NULL,
    quorum_size INTEGER,
    threshold DOUBLE PRECISION,
    timeout_seconds INTEGER NOT NULL DEFAULT 60,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS voting_rounds (
    id TEXT PRIMARY KEY,
    config_id TEXT NOT NULL REFERENCES consensus_configs(id),
    topic TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'OPEN',
    opened_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    closed_at TIMESTAMP WITH TIME ZONE
);

CREATE TABLE IF NOT EXISTS agent_opinions (
    id BIGSERIAL PRIMARY KEY,
    round_id TEXT NOT NULL REFERENCES voting_rounds(id),
    agent_id TEXT NOT NULL REFERENCES agents(id),
    choice TEXT NOT NULL,
    confidence DOUBLE PRECISION NOT NULL,
    rationale TEXT,
    submitted_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS consensus_results (
    id TEXT PRIMARY KEY,
    round_id TEXT NOT NULL REFERENCES voting_rounds(id),
    outcome TEXT NOT NULL,
    agreement_ratio DOUBLE PRECISION,
    decided_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    metadata JSONB
);

CREATE TABLE IF NOT EXISTS consensus_audit_events (
    id BIGSERIAL PRIMARY KEY,
    round_id TEXT NOT NULL REFERENCES voting_rounds(id),
    event_type TEXT NOT NULL,
    detail JSONB,
    recorded_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS agent_performance (
    agent_id TEXT PRIMARY KEY REFERENCES agents(id),
    rounds_participated INTEGER NOT NULL DEFAULT 0,
    rounds_agreed_with_outcome INTEGER NOT NULL DEFAULT 0,
    average_confidence DOUBLE PRECISION,
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

-- Regulatory simulator
CREATE TABLE IF NOT EXISTS simulation_templates (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    default_parameters JSONB,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS simulation_scenarios (
    id TEXT PRIMARY KEY,
    template_id TEXT REFERENCES simulation_templates(id),
    name TEXT NOT NULL,
    regulatory_item_id TEXT REFERENCES regulatory_items(id),
    parameters JSONB,
    created_by TEXT,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS simulation_executions (
    id TEXT PRIMARY KEY,
    scenario_id TEXT NOT NULL REFERENCES simulation_scenarios(id),
    status TEXT NOT NULL DEFAULT 'PENDING',
    started_at TIMESTAMP WITH TIME ZONE,
    completed_at TIMESTAMP WITH TIME ZONE,
    error_message TEXT
);

CREATE TABLE IF NOT EXISTS simulation_results (
    id TEXT PRIMARY KEY,
    execution_id TEXT NOT NULL REFERENCES simulation_executions(id),
    transaction_impact DOUBLE PRECISION,
    policy_impact DOUBLE PRECISION,
    risk_impact DOUBLE PRECISION,
    recommendations JSONB,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_regulatory_items_source_id ON regulatory_items(source_id);
CREATE INDEX IF NOT EXISTS idx_regulatory_items_content_hash ON regulatory_items(content_hash);
CREATE INDEX IF NOT EXISTS idx_messages_conversation_id ON messages(conversation_id);
CREATE INDEX IF NOT EXISTS idx_messages_recipient_id ON messages(recipient_id);
CREATE INDEX IF NOT EXISTS idx_messages_status ON messages(status);
CREATE INDEX IF NOT EXISTS idx_agent_opinions_round_id ON agent_opinions(round_id);
CREATE INDEX IF NOT EXISTS idx_simulation_executions_scenario_id ON simulation_executions(scenario_id);
`

	// Execute schema
	_, err := pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

// AddCleanup registers a cleanup function to be called during teardown
func (tc *PostgresContainer) AddCleanup(fn func()) {
	tc.cleanupFuncs = append(tc.cleanupFuncs, fn)
}

// Cleanup terminates the container and runs cleanup functions
func (tc *PostgresContainer) Cleanup() {
	ctx := context.Background()

	// Run cleanup functions in reverse order
	for i := len(tc.cleanupFuncs) - 1; i >= 0; i-- {
		tc.cleanupFuncs[i]()
	}

	// Close database connection
	if tc.DB != nil {
		tc.DB.Close()
	}

	// Terminate container
	if tc.Container != nil {
		if err := tc.Container.Terminate(ctx); err != nil {
			tc.t.Logf("Failed to terminate container: %v", err)
		}
	}
}

// TruncateAllTables clears all data from tables (useful for test isolation)
func (tc *PostgresContainer) TruncateAllTables() error {
	ctx := context.Background()
	pool := tc.DB.Pool()

	tables := []string{
		"simulation_results",
		"simulation_executions",
		"simulation_scenarios",
		"simulation_templates",
		"agent_performance",
		"consensus_audit_events",
		"consensus_results",
		"agent_opinions",
		"voting_rounds",
		"consensus_configs",
		"delivery_log",
		"messages",
		"message_templates",
		"conversations",
		"regulatory_items",
		"regulatory_sources",
		"agents",
	}

	for _, table := range tables {
		_, err := pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
		if err != nil {
			return fmt.Errorf("failed to truncate %s: %w", table, err)
		}
	}

	return nil
}

// ExecuteSQL executes arbitrary SQL (useful for test setup)
func (tc *PostgresContainer) ExecuteSQL(sql string) error {
	ctx := context.Background()
	pool := tc.DB.Pool()

	_, err := pool.Exec(ctx, sql)
	return err
}
