package db

import (
	"context"
	"encoding/json"
	"time"
)

// ExecutionStatus is the lifecycle state of a simulation run, mirroring the
// teacher's backtest job status machine.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "PENDING"
	ExecutionStatusRunning   ExecutionStatus = "RUNNING"
	ExecutionStatusCompleted ExecutionStatus = "COMPLETED"
	ExecutionStatusFailed    ExecutionStatus = "FAILED"
	ExecutionStatusCancelled ExecutionStatus = "CANCELLED"
)

// SimulationExecution is one run of a scenario.
type SimulationExecution struct {
	ID               string          `db:"id" json:"id"`
	ScenarioID       string          `db:"scenario_id" json:"scenario_id"`
	UserID           string          `db:"user_id" json:"user_id,omitempty"`
	Status           ExecutionStatus `db:"status" json:"status"`
	ProgressPercent  float64         `db:"progress_percentage" json:"progress_percentage"`
	TestDataOverride json.RawMessage `db:"test_data_override" json:"test_data_override,omitempty"`
	StartedAt        *time.Time      `db:"started_at" json:"started_at,omitempty"`
	CompletedAt      *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	ErrorMessage     string          `db:"error_message" json:"error_message,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

// CreateExecution registers a new execution in PENDING status.
func (db *DB) CreateExecution(ctx context.Context, e *SimulationExecution) error {
	query := `
		INSERT INTO simulation_executions (id, scenario_id, user_id, status, test_data_override)
		VALUES ($1, $2, $3, 'PENDING', $4)
		RETURNING created_at
	`
	return db.queryRowPool(ctx, query, e.ID, e.ScenarioID, e.UserID, e.TestDataOverride).Scan(&e.CreatedAt)
}

// GetExecution retrieves an execution by id.
func (db *DB) GetExecution(ctx context.Context, id string) (*SimulationExecution, error) {
	query := `
		SELECT id, scenario_id, user_id, status, progress_percentage, test_data_override,
		       started_at, completed_at, error_message, created_at
		FROM simulation_executions
		WHERE id = $1
	`
	var e SimulationExecution
	err := db.queryRowPool(ctx, query, id).Scan(
		&e.ID, &e.ScenarioID, &e.UserID, &e.Status, &e.ProgressPercent, &e.TestDataOverride,
		&e.StartedAt, &e.CompletedAt, &e.ErrorMessage, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// MarkExecutionRunning transitions PENDING -> RUNNING. The status guard in
// the WHERE clause prevents a cancelled execution from being resurrected by
// a worker that was already dispatched.
func (db *DB) MarkExecutionRunning(ctx context.Context, id string, when time.Time) error {
	_, err := db.execPool(ctx, `
		UPDATE simulation_executions SET status = 'RUNNING', started_at = $2
		WHERE id = $1 AND status = 'PENDING'
	`, id, when)
	return err
}

// UpdateExecutionProgress records the execution's current progress
// percentage, used to report the {5, 25, 75, 100}% phase checkpoints.
func (db *DB) UpdateExecutionProgress(ctx context.Context, id string, percent float64) error {
	_, err := db.execPool(ctx, `
		UPDATE simulation_executions SET progress_percentage = $2 WHERE id = $1
	`, id, percent)
	return err
}

// MarkExecutionCompleted transitions RUNNING -> COMPLETED.
func (db *DB) MarkExecutionCompleted(ctx context.Context, id string, when time.Time) error {
	_, err := db.execPool(ctx, `
		UPDATE simulation_executions SET status = 'COMPLETED', completed_at = $2, progress_percentage = 100
		WHERE id = $1 AND status = 'RUNNING'
	`, id, when)
	return err
}

// MarkExecutionFailed transitions an execution to FAILED with an error
// message.
func (db *DB) MarkExecutionFailed(ctx context.Context, id string, when time.Time, errMsg string) error {
	_, err := db.execPool(ctx, `
		UPDATE simulation_executions SET status = 'FAILED', completed_at = $2, error_message = $3
		WHERE id = $1
	`, id, when, errMsg)
	return err
}

// CancelExecution transitions a still-pending or running execution to
// CANCELLED.
func (db *DB) CancelExecution(ctx context.Context, id string, when time.Time) error {
	_, err := db.execPool(ctx, `
		UPDATE simulation_executions SET status = 'CANCELLED', completed_at = $2
		WHERE id = $1 AND status IN ('PENDING', 'RUNNING')
	`, id, when)
	return err
}

// ListExecutionsByScenario returns every run of a scenario, newest first.
func (db *DB) ListExecutionsByScenario(ctx context.Context, scenarioID string) ([]*SimulationExecution, error) {
	query := `
		SELECT id, scenario_id, user_id, status, progress_percentage, test_data_override,
		       started_at, completed_at, error_message, created_at
		FROM simulation_executions
		WHERE scenario_id = $1
		ORDER BY started_at DESC NULLS FIRST
	`
	rows, err := db.queryPool(ctx, query, scenarioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []*SimulationExecution
	for rows.Next() {
		var e SimulationExecution
		if err := rows.Scan(
			&e.ID, &e.ScenarioID, &e.UserID, &e.Status, &e.ProgressPercent, &e.TestDataOverride,
			&e.StartedAt, &e.CompletedAt, &e.ErrorMessage, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		executions = append(executions, &e)
	}
	return executions, rows.Err()
}

// ListExecutionsByUser returns a user's simulation history, newest first.
func (db *DB) ListExecutionsByUser(ctx context.Context, userID string, limit, offset int) ([]*SimulationExecution, error) {
	query := `
		SELECT id, scenario_id, user_id, status, progress_percentage, test_data_override,
		       started_at, completed_at, error_message, created_at
		FROM simulation_executions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := db.queryPool(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []*SimulationExecution
	for rows.Next() {
		var e SimulationExecution
		if err := rows.Scan(
			&e.ID, &e.ScenarioID, &e.UserID, &e.Status, &e.ProgressPercent, &e.TestDataOverride,
			&e.StartedAt, &e.CompletedAt, &e.ErrorMessage, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		executions = append(executions, &e)
	}
	return executions, rows.Err()
}

// CountRecentExecutionsByUser counts a user's executions created since
// `since`. The simulator's rate limiter keeps its own window and does not
// call it.
func (db *DB) CountRecentExecutionsByUser(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := db.queryRowPool(ctx, `
		SELECT COUNT(*) FROM simulation_executions WHERE user_id = $1 AND created_at > $2
	`, userID, since).Scan(&count)
	return count, err
}
