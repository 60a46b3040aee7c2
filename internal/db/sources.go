package db

import (
	"context"
	"time"
)

// SourceType is the closed set of regulatory source kinds the monitor
// knows how to poll and extract.
type SourceType string

const (
	SourceTypeRSS  SourceType = "RSS"
	SourceTypeHTML SourceType = "HTML"
	SourceTypeAPI  SourceType = "API"
)

// BreakerState mirrors the per-source health state the monitor tracks in
// the store, distinct from the process-wide internal/breaker circuit
// breaker that guards the HTTP fetch path itself.
type BreakerState string

const (
	BreakerStateClosed   BreakerState = "CLOSED"
	BreakerStateOpen     BreakerState = "OPEN"
	BreakerStateHalfOpen BreakerState = "HALF_OPEN"
)

// RegulatorySource is one feed the monitor polls on a schedule.
type RegulatorySource struct {
	ID                   string       `db:"id" json:"id"`
	Name                 string       `db:"name" json:"name"`
	SourceType           SourceType   `db:"source_type" json:"source_type"`
	Endpoint             string       `db:"endpoint" json:"endpoint"`
	PollIntervalSeconds  int          `db:"poll_interval_seconds" json:"poll_interval_seconds"`
	IsActive             bool         `db:"is_active" json:"is_active"`
	LastPolledAt         *time.Time   `db:"last_polled_at" json:"last_polled_at,omitempty"`
	LastSuccessAt        *time.Time   `db:"last_success_at" json:"last_success_at,omitempty"`
	ConsecutiveFailures  int          `db:"consecutive_failures" json:"consecutive_failures"`
	BreakerState         BreakerState `db:"breaker_state" json:"breaker_state"`
	CreatedAt            time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time    `db:"updated_at" json:"updated_at"`
}

// ListActiveSources returns every source due for polling consideration.
func (db *DB) ListActiveSources(ctx context.Context) ([]*RegulatorySource, error) {
	query := `
		SELECT id, name, source_type, endpoint, poll_interval_seconds, is_active,
		       last_polled_at, last_success_at, consecutive_failures, breaker_state,
		       created_at, updated_at
		FROM regulatory_sources
		WHERE is_active = true
		ORDER BY name ASC
	`
	rows, err := db.queryPool(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []*RegulatorySource
	for rows.Next() {
		var s RegulatorySource
		if err := rows.Scan(
			&s.ID, &s.Name, &s.SourceType, &s.Endpoint, &s.PollIntervalSeconds, &s.IsActive,
			&s.LastPolledAt, &s.LastSuccessAt, &s.ConsecutiveFailures, &s.BreakerState,
			&s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		sources = append(sources, &s)
	}
	return sources, rows.Err()
}

// UpsertSource registers or updates a source's configuration.
func (db *DB) UpsertSource(ctx context.Context, s *RegulatorySource) error {
	query := `
		INSERT INTO regulatory_sources (
			id, name, source_type, endpoint, poll_interval_seconds, is_active
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			source_type = EXCLUDED.source_type,
			endpoint = EXCLUDED.endpoint,
			poll_interval_seconds = EXCLUDED.poll_interval_seconds,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`
	return db.queryRowPool(ctx, query,
		s.ID, s.Name, s.SourceType, s.Endpoint, s.PollIntervalSeconds, s.IsActive,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
}

// GetSource retrieves a single source by id.
func (db *DB) GetSource(ctx context.Context, id string) (*RegulatorySource, error) {
	query := `
		SELECT id, name, source_type, endpoint, poll_interval_seconds, is_active,
		       last_polled_at, last_success_at, consecutive_failures, breaker_state,
		       created_at, updated_at
		FROM regulatory_sources
		WHERE id = $1
	`
	var s RegulatorySource
	err := db.queryRowPool(ctx, query, id).Scan(
		&s.ID, &s.Name, &s.SourceType, &s.Endpoint, &s.PollIntervalSeconds, &s.IsActive,
		&s.LastPolledAt, &s.LastSuccessAt, &s.ConsecutiveFailures, &s.BreakerState,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteSource removes a source's configuration. Previously discovered
// items from it are deleted with it via ON DELETE CASCADE.
func (db *DB) DeleteSource(ctx context.Context, id string) error {
	_, err := db.execPool(ctx, `DELETE FROM regulatory_sources WHERE id = $1`, id)
	return err
}

// ClearLastPolled forces a source to be eligible for the next sweep,
// backing ForceCheck.
func (db *DB) ClearLastPolled(ctx context.Context, id string) error {
	_, err := db.execPool(ctx, `UPDATE regulatory_sources SET last_polled_at = NULL WHERE id = $1`, id)
	return err
}

// RecordPollSuccess resets the failure count and moves the source's breaker
// back to CLOSED after a successful sweep.
func (db *DB) RecordPollSuccess(ctx context.Context, id string, when time.Time) error {
	_, err := db.execPool(ctx, `
		UPDATE regulatory_sources SET
			last_polled_at = $2,
			last_success_at = $2,
			consecutive_failures = 0,
			breaker_state = 'CLOSED',
			updated_at = NOW()
		WHERE id = $1
	`, id, when)
	return err
}

// RecordPollFailure increments the consecutive-failure counter and tips the
// source into OPEN once it crosses maxFailures, mirroring the monitor's
// per-source circuit-breaking contract.
func (db *DB) RecordPollFailure(ctx context.Context, id string, when time.Time, maxFailures int) error {
	_, err := db.execPool(ctx, `
		UPDATE regulatory_sources SET
			last_polled_at = $2,
			consecutive_failures = consecutive_failures + 1,
			breaker_state = CASE
				WHEN consecutive_failures + 1 >= $3 THEN 'OPEN'
				ELSE breaker_state
			END,
			updated_at = NOW()
		WHERE id = $1
	`, id, when, maxFailures)
	return err
}

// SetBreakerState forces a source's breaker state, used when the monitor's
// half-open probe succeeds or fails.
func (db *DB) SetBreakerState(ctx context.Context, id string, state BreakerState) error {
	_, err := db.execPool(ctx, `
		UPDATE regulatory_sources SET breaker_state = $2, updated_at = NOW() WHERE id = $1
	`, id, state)
	return err
}
