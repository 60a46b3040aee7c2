package db

import (
	"context"
	"encoding/json"
	"time"
)

// SimulationResult holds the computed impact metrics and recommendations
// for a completed execution.
type SimulationResult struct {
	ID                string          `db:"id" json:"id"`
	ExecutionID       string          `db:"execution_id" json:"execution_id"`
	TransactionImpact float64         `db:"transaction_impact" json:"transaction_impact"`
	PolicyImpact      float64         `db:"policy_impact" json:"policy_impact"`
	RiskImpact        float64         `db:"risk_impact" json:"risk_impact"`
	OverallScore      float64         `db:"overall_score" json:"overall_score"`
	Recommendations   json.RawMessage `db:"recommendations" json:"recommendations,omitempty"`
	// Detail carries the rest of the result assembly: risk_assessment,
	// cost_impact, compliance_impact, operational_impact, affected_entities,
	// and critical_violations, consolidated under one JSON document rather
	// than one column per sub-report.
	Detail    json.RawMessage `db:"detail" json:"detail,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// SaveResult persists the outcome of one execution. An execution can only
// be scored once, enforced by the unique constraint on execution_id.
func (db *DB) SaveResult(ctx context.Context, r *SimulationResult) error {
	query := `
		INSERT INTO simulation_results (
			id, execution_id, transaction_impact, policy_impact, risk_impact,
			overall_score, recommendations, detail
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	return db.queryRowPool(ctx, query,
		r.ID, r.ExecutionID, r.TransactionImpact, r.PolicyImpact, r.RiskImpact,
		r.OverallScore, r.Recommendations, r.Detail,
	).Scan(&r.CreatedAt)
}

// GetResultByExecution retrieves the result tied to an execution.
func (db *DB) GetResultByExecution(ctx context.Context, executionID string) (*SimulationResult, error) {
	query := `
		SELECT id, execution_id, transaction_impact, policy_impact, risk_impact,
		       overall_score, recommendations, detail, created_at
		FROM simulation_results
		WHERE execution_id = $1
	`
	var r SimulationResult
	err := db.queryRowPool(ctx, query, executionID).Scan(
		&r.ID, &r.ExecutionID, &r.TransactionImpact, &r.PolicyImpact, &r.RiskImpact,
		&r.OverallScore, &r.Recommendations, &r.Detail, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// AverageOverallScoreByTemplate computes the mean score across every scored
// execution of every scenario derived from a template, used for the
// simulator's scenario-popularity/performance analytics.
func (db *DB) AverageOverallScoreByTemplate(ctx context.Context, templateID string) (float64, int, error) {
	query := `
		SELECT COALESCE(AVG(r.overall_score), 0), COUNT(*)
		FROM simulation_results r
		JOIN simulation_executions e ON e.id = r.execution_id
		JOIN simulation_scenarios s ON s.id = e.scenario_id
		WHERE s.template_id = $1
	`
	var avg float64
	var count int
	err := db.queryRowPool(ctx, query, templateID).Scan(&avg, &count)
	if err != nil {
		return 0, 0, err
	}
	return avg, count, nil
}
