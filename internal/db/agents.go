package db

import (
	"context"
	"time"
)

// AgentRole is the closed set of participant roles a registered agent
// may hold.
type AgentRole string

const (
	AgentRoleExpert        AgentRole = "EXPERT"
	AgentRoleReviewer      AgentRole = "REVIEWER"
	AgentRoleDecisionMaker AgentRole = "DECISION_MAKER"
	AgentRoleFacilitator   AgentRole = "FACILITATOR"
	AgentRoleObserver      AgentRole = "OBSERVER"
)

// Agent represents a registered consensus/messenger participant.
type Agent struct {
	ID                  string    `db:"id" json:"id"`
	Name                string    `db:"name" json:"name"`
	Role                AgentRole `db:"role" json:"role"`
	VotingWeight        float64   `db:"voting_weight" json:"voting_weight"`
	DomainExpertise     string    `db:"domain_expertise" json:"domain_expertise"`
	ConfidenceThreshold float64   `db:"confidence_threshold" json:"confidence_threshold"`
	IsActive            bool      `db:"is_active" json:"is_active"`
	LastActive          time.Time `db:"last_active" json:"last_active"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// GetAgent retrieves a single agent by id.
func (db *DB) GetAgent(ctx context.Context, id string) (*Agent, error) {
	query := `
		SELECT id, name, role, voting_weight, domain_expertise, confidence_threshold,
		       is_active, last_active, created_at, updated_at
		FROM agents
		WHERE id = $1
	`

	var agent Agent
	err := db.queryRowPool(ctx, query, id).Scan(
		&agent.ID,
		&agent.Name,
		&agent.Role,
		&agent.VotingWeight,
		&agent.DomainExpertise,
		&agent.ConfidenceThreshold,
		&agent.IsActive,
		&agent.LastActive,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &agent, nil
}

// ListActiveAgents returns every agent with is_active = true.
func (db *DB) ListActiveAgents(ctx context.Context) ([]*Agent, error) {
	query := `
		SELECT id, name, role, voting_weight, domain_expertise, confidence_threshold,
		       is_active, last_active, created_at, updated_at
		FROM agents
		WHERE is_active = true
		ORDER BY name ASC
	`

	rows, err := db.queryPool(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		var agent Agent
		if err := rows.Scan(
			&agent.ID,
			&agent.Name,
			&agent.Role,
			&agent.VotingWeight,
			&agent.DomainExpertise,
			&agent.ConfidenceThreshold,
			&agent.IsActive,
			&agent.LastActive,
			&agent.CreatedAt,
			&agent.UpdatedAt,
		); err != nil {
			return nil, err
		}
		agents = append(agents, &agent)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return agents, nil
}

// UpsertAgent inserts or updates an agent's registration by id.
func (db *DB) UpsertAgent(ctx context.Context, agent *Agent) error {
	query := `
		INSERT INTO agents (
			id, name, role, voting_weight, domain_expertise, confidence_threshold,
			is_active, last_active
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			voting_weight = EXCLUDED.voting_weight,
			domain_expertise = EXCLUDED.domain_expertise,
			confidence_threshold = EXCLUDED.confidence_threshold,
			is_active = EXCLUDED.is_active,
			last_active = EXCLUDED.last_active,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`

	return db.queryRowPool(ctx, query,
		agent.ID,
		agent.Name,
		agent.Role,
		agent.VotingWeight,
		agent.DomainExpertise,
		agent.ConfidenceThreshold,
		agent.IsActive,
		agent.LastActive,
	).Scan(&agent.CreatedAt, &agent.UpdatedAt)
}

// DeactivateAgent flips is_active to false for the given agent id.
func (db *DB) DeactivateAgent(ctx context.Context, id string) error {
	query := `UPDATE agents SET is_active = false, updated_at = NOW() WHERE id = $1`
	_, err := db.execPool(ctx, query, id)
	return err
}

// TouchAgentActivity bumps last_active to now for the given agent id.
func (db *DB) TouchAgentActivity(ctx context.Context, id string, when time.Time) error {
	query := `UPDATE agents SET last_active = $2, updated_at = NOW() WHERE id = $1`
	_, err := db.execPool(ctx, query, id, when)
	return err
}
