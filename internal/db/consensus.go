package db

import (
	"context"
	"encoding/json"
	"time"
)

// VotingAlgorithm is the closed set of consensus algorithms the engine
// supports.
type VotingAlgorithm string

const (
	AlgorithmUnanimous       VotingAlgorithm = "UNANIMOUS"
	AlgorithmMajority        VotingAlgorithm = "MAJORITY"
	AlgorithmWeightedMajority VotingAlgorithm = "WEIGHTED_MAJORITY"
	AlgorithmRankedChoice    VotingAlgorithm = "RANKED_CHOICE"
	AlgorithmQuorum          VotingAlgorithm = "QUORUM"
	AlgorithmSuperMajority   VotingAlgorithm = "SUPER_MAJORITY"
	AlgorithmConsensus       VotingAlgorithm = "CONSENSUS"
	AlgorithmPlurality       VotingAlgorithm = "PLURALITY"
)

// RoundStatus is the lifecycle state of a voting round.
type RoundStatus string

const (
	RoundStatusOpen   RoundStatus = "OPEN"
	RoundStatusClosed RoundStatus = "CLOSED"
)

// ConsensusConfigRow is the persisted form of a reusable voting policy,
// including the participant roster and round limits of the process it
// configures.
type ConsensusConfigRow struct {
	ID              string          `db:"id" json:"id"`
	Name            string          `db:"name" json:"name"`
	Topic           string          `db:"topic" json:"topic"`
	Algorithm       VotingAlgorithm `db:"algorithm" json:"algorithm"`
	Participants    json.RawMessage `db:"participants" json:"participants,omitempty"`
	MinParticipants int             `db:"min_participants" json:"min_participants"`
	MaxRounds       int             `db:"max_rounds" json:"max_rounds"`
	QuorumSize      *int            `db:"quorum_size" json:"quorum_size,omitempty"`
	Threshold       *float64        `db:"threshold" json:"threshold,omitempty"`
	TimeoutSeconds  int             `db:"timeout_seconds" json:"timeout_seconds"`
	TieBreaker      string          `db:"tie_breaker" json:"tie_breaker,omitempty"`
	CustomRules     json.RawMessage `db:"custom_rules" json:"custom_rules,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// VotingRound is one decision put to the registered agents.
type VotingRound struct {
	ID       string      `db:"id" json:"id"`
	ConfigID string      `db:"config_id" json:"config_id"`
	Topic    string      `db:"topic" json:"topic"`
	Status   RoundStatus `db:"status" json:"status"`
	OpenedAt time.Time   `db:"opened_at" json:"opened_at"`
	ClosesAt *time.Time  `db:"closes_at" json:"closes_at,omitempty"`
	ClosedAt *time.Time  `db:"closed_at" json:"closed_at,omitempty"`
}

// AgentOpinion is one agent's vote within a round.
type AgentOpinion struct {
	ID             int64           `db:"id" json:"id"`
	RoundID        string          `db:"round_id" json:"round_id"`
	AgentID        string          `db:"agent_id" json:"agent_id"`
	Choice         string          `db:"choice" json:"choice"`
	Confidence     float64         `db:"confidence" json:"confidence"`
	Rationale      string          `db:"rationale" json:"rationale,omitempty"`
	SupportingData json.RawMessage `db:"supporting_data" json:"supporting_data,omitempty"`
	Concerns       json.RawMessage `db:"concerns" json:"concerns,omitempty"`
	SubmittedAt    time.Time       `db:"submitted_at" json:"submitted_at"`
}

// ConsensusResultRow is the decided outcome of a voting round.
type ConsensusResultRow struct {
	ID             string          `db:"id" json:"id"`
	RoundID        string          `db:"round_id" json:"round_id"`
	Outcome        string          `db:"outcome" json:"outcome"`
	AgreementRatio float64         `db:"agreement_ratio" json:"agreement_ratio"`
	ReachedQuorum  bool            `db:"reached_quorum" json:"reached_quorum"`
	DecidedAt      time.Time       `db:"decided_at" json:"decided_at"`
	Metadata       json.RawMessage `db:"metadata" json:"metadata,omitempty"`
}

// CreateConsensusConfig persists a reusable voting policy, including the
// participant roster and round limits of the process it configures.
func (db *DB) CreateConsensusConfig(ctx context.Context, c *ConsensusConfigRow) error {
	query := `
		INSERT INTO consensus_configs (
			id, name, topic, algorithm, participants, min_participants, max_rounds,
			quorum_size, threshold, timeout_seconds, tie_breaker, custom_rules
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`
	return db.queryRowPool(ctx, query,
		c.ID, c.Name, c.Topic, c.Algorithm, c.Participants, c.MinParticipants, c.MaxRounds,
		c.QuorumSize, c.Threshold, c.TimeoutSeconds, c.TieBreaker, c.CustomRules,
	).Scan(&c.CreatedAt)
}

// GetConsensusConfig retrieves a voting policy by id.
func (db *DB) GetConsensusConfig(ctx context.Context, id string) (*ConsensusConfigRow, error) {
	query := `
		SELECT id, name, topic, algorithm, participants, min_participants, max_rounds,
		       quorum_size, threshold, timeout_seconds, tie_breaker, custom_rules, created_at
		FROM consensus_configs
		WHERE id = $1
	`
	var c ConsensusConfigRow
	err := db.queryRowPool(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.Topic, &c.Algorithm, &c.Participants, &c.MinParticipants, &c.MaxRounds,
		&c.QuorumSize, &c.Threshold, &c.TimeoutSeconds, &c.TieBreaker, &c.CustomRules, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SetCustomRule merges one key/value pair into a config's custom_rules
// JSON document, used by ResolveConflict to record the chosen strategy.
func (db *DB) SetCustomRule(ctx context.Context, configID, key, value string) error {
	_, err := db.execPool(ctx, `
		UPDATE consensus_configs
		SET custom_rules = COALESCE(custom_rules, '{}'::jsonb) || jsonb_build_object($2::text, $3::text)
		WHERE id = $1
	`, configID, key, value)
	return err
}

// OpenVotingRound creates a new round in OPEN status.
func (db *DB) OpenVotingRound(ctx context.Context, r *VotingRound) error {
	query := `
		INSERT INTO voting_rounds (id, config_id, topic, status, closes_at)
		VALUES ($1, $2, $3, 'OPEN', $4)
		RETURNING opened_at
	`
	return db.queryRowPool(ctx, query, r.ID, r.ConfigID, r.Topic, r.ClosesAt).Scan(&r.OpenedAt)
}

// GetVotingRound retrieves a round by id.
func (db *DB) GetVotingRound(ctx context.Context, id string) (*VotingRound, error) {
	query := `
		SELECT id, config_id, topic, status, opened_at, closes_at, closed_at
		FROM voting_rounds
		WHERE id = $1
	`
	var r VotingRound
	err := db.queryRowPool(ctx, query, id).Scan(
		&r.ID, &r.ConfigID, &r.Topic, &r.Status, &r.OpenedAt, &r.ClosesAt, &r.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CloseVotingRound transitions a round to CLOSED.
func (db *DB) CloseVotingRound(ctx context.Context, id string, when time.Time) error {
	_, err := db.execPool(ctx, `
		UPDATE voting_rounds SET status = 'CLOSED', closed_at = $2 WHERE id = $1
	`, id, when)
	return err
}

// SubmitOpinion records one agent's vote, rejecting a second vote from the
// same agent in the same round via the table's unique constraint. Callers
// that want to replace an existing vote should use UpdateOpinion instead.
func (db *DB) SubmitOpinion(ctx context.Context, o *AgentOpinion) error {
	query := `
		INSERT INTO agent_opinions (round_id, agent_id, choice, confidence, rationale, supporting_data, concerns)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, submitted_at
	`
	return db.queryRowPool(ctx, query,
		o.RoundID, o.AgentID, o.Choice, o.Confidence, o.Rationale, o.SupportingData, o.Concerns,
	).Scan(&o.ID, &o.SubmittedAt)
}

// UpdateOpinion replaces an agent's existing vote within a round in place.
func (db *DB) UpdateOpinion(ctx context.Context, o *AgentOpinion) error {
	query := `
		UPDATE agent_opinions SET
			choice = $3, confidence = $4, rationale = $5, supporting_data = $6,
			concerns = $7, submitted_at = NOW()
		WHERE round_id = $1 AND agent_id = $2
		RETURNING id, submitted_at
	`
	return db.queryRowPool(ctx, query,
		o.RoundID, o.AgentID, o.Choice, o.Confidence, o.Rationale, o.SupportingData, o.Concerns,
	).Scan(&o.ID, &o.SubmittedAt)
}

// ListOpinions returns every vote cast in a round.
func (db *DB) ListOpinions(ctx context.Context, roundID string) ([]*AgentOpinion, error) {
	query := `
		SELECT id, round_id, agent_id, choice, confidence, rationale, supporting_data, concerns, submitted_at
		FROM agent_opinions
		WHERE round_id = $1
		ORDER BY submitted_at ASC
	`
	rows, err := db.queryPool(ctx, query, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var opinions []*AgentOpinion
	for rows.Next() {
		var o AgentOpinion
		if err := rows.Scan(
			&o.ID, &o.RoundID, &o.AgentID, &o.Choice, &o.Confidence, &o.Rationale,
			&o.SupportingData, &o.Concerns, &o.SubmittedAt,
		); err != nil {
			return nil, err
		}
		opinions = append(opinions, &o)
	}
	return opinions, rows.Err()
}

// RecordConsensusResult persists the decided outcome of a round.
func (db *DB) RecordConsensusResult(ctx context.Context, r *ConsensusResultRow) error {
	query := `
		INSERT INTO consensus_results (id, round_id, outcome, agreement_ratio, reached_quorum, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING decided_at
	`
	return db.queryRowPool(ctx, query,
		r.ID, r.RoundID, r.Outcome, r.AgreementRatio, r.ReachedQuorum, r.Metadata,
	).Scan(&r.DecidedAt)
}

// GetConsensusResult retrieves the outcome of a round, if decided.
func (db *DB) GetConsensusResult(ctx context.Context, roundID string) (*ConsensusResultRow, error) {
	query := `
		SELECT id, round_id, outcome, agreement_ratio, reached_quorum, decided_at, metadata
		FROM consensus_results
		WHERE round_id = $1
	`
	var r ConsensusResultRow
	err := db.queryRowPool(ctx, query, roundID).Scan(
		&r.ID, &r.RoundID, &r.Outcome, &r.AgreementRatio, &r.ReachedQuorum, &r.DecidedAt, &r.Metadata,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// RecordAuditEvent appends one entry to the consensus engine's audit trail.
func (db *DB) RecordAuditEvent(ctx context.Context, roundID, eventType string, detail json.RawMessage) error {
	_, err := db.execPool(ctx, `
		INSERT INTO consensus_audit_events (round_id, event_type, detail) VALUES ($1, $2, $3)
	`, roundID, eventType, detail)
	return err
}

// AgentPerformanceRow tracks an agent's historical voting record. The
// voting algorithms do not read it; vote weights come from the agent's
// registered voting weight.
type AgentPerformanceRow struct {
	AgentID                 string    `db:"agent_id" json:"agent_id"`
	RoundsParticipated       int       `db:"rounds_participated" json:"rounds_participated"`
	RoundsAgreedWithOutcome  int       `db:"rounds_agreed_with_outcome" json:"rounds_agreed_with_outcome"`
	AverageConfidence        *float64  `db:"average_confidence" json:"average_confidence,omitempty"`
	UpdatedAt                time.Time `db:"updated_at" json:"updated_at"`
}

// RecordAgentParticipation upserts an agent's running performance counters
// after a round concludes.
func (db *DB) RecordAgentParticipation(ctx context.Context, agentID string, agreed bool, confidence float64) error {
	query := `
		INSERT INTO agent_performance (agent_id, rounds_participated, rounds_agreed_with_outcome, average_confidence)
		VALUES ($1, 1, $2, $3)
		ON CONFLICT (agent_id) DO UPDATE SET
			rounds_participated = agent_performance.rounds_participated + 1,
			rounds_agreed_with_outcome = agent_performance.rounds_agreed_with_outcome + $2,
			average_confidence = (
				COALESCE(agent_performance.average_confidence, 0) * agent_performance.rounds_participated + $3
			) / (agent_performance.rounds_participated + 1),
			updated_at = NOW()
	`
	agreedInt := 0
	if agreed {
		agreedInt = 1
	}
	_, err := db.execPool(ctx, query, agentID, agreedInt, confidence)
	return err
}

// GetAgentPerformance retrieves an agent's running voting performance.
func (db *DB) GetAgentPerformance(ctx context.Context, agentID string) (*AgentPerformanceRow, error) {
	query := `
		SELECT agent_id, rounds_participated, rounds_agreed_with_outcome, average_confidence, updated_at
		FROM agent_performance
		WHERE agent_id = $1
	`
	var p AgentPerformanceRow
	err := db.queryRowPool(ctx, query, agentID).Scan(
		&p.AgentID, &p.RoundsParticipated, &p.RoundsAgreedWithOutcome, &p.AverageConfidence, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
