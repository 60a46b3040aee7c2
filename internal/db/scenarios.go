package db

import (
	"context"
	"encoding/json"
	"time"
)

// SimulationTemplate is a reusable scenario blueprint with default
// parameters, used to spin up concrete scenarios without re-specifying
// every field.
type SimulationTemplate struct {
	ID                string          `db:"id" json:"id"`
	Name              string          `db:"name" json:"name"`
	Description       string          `db:"description" json:"description,omitempty"`
	Category          string          `db:"category" json:"category,omitempty"`
	Jurisdiction      string          `db:"jurisdiction" json:"jurisdiction,omitempty"`
	RegulatoryBody    string          `db:"regulatory_body" json:"regulatory_body,omitempty"`
	DefaultParameters json.RawMessage `db:"default_parameters" json:"default_parameters,omitempty"`
	UsageCount        int             `db:"usage_count" json:"usage_count"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}

// SimulationScenario is one concrete what-if scenario to run: a set of
// hypothetical regulatory changes plus the baseline and test data the
// simulator evaluates them against.
type SimulationScenario struct {
	ID                string          `db:"id" json:"id"`
	TemplateID        *string         `db:"template_id" json:"template_id,omitempty"`
	Name              string          `db:"name" json:"name"`
	ScenarioType      string          `db:"scenario_type" json:"scenario_type"`
	RegulatoryItemID  *string         `db:"regulatory_item_id" json:"regulatory_item_id,omitempty"`
	RegulatoryChanges json.RawMessage `db:"regulatory_changes" json:"regulatory_changes,omitempty"`
	ImpactParameters  json.RawMessage `db:"impact_parameters" json:"impact_parameters,omitempty"`
	BaselineData      json.RawMessage `db:"baseline_data" json:"baseline_data,omitempty"`
	TestData          json.RawMessage `db:"test_data" json:"test_data,omitempty"`
	CreatedBy         string          `db:"created_by" json:"created_by,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}

// CreateSimulationTemplate persists a new scenario blueprint.
func (db *DB) CreateSimulationTemplate(ctx context.Context, t *SimulationTemplate) error {
	query := `
		INSERT INTO simulation_templates (id, name, description, category, jurisdiction, regulatory_body, default_parameters)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	return db.queryRowPool(ctx, query,
		t.ID, t.Name, t.Description, t.Category, t.Jurisdiction, t.RegulatoryBody, t.DefaultParameters,
	).Scan(&t.CreatedAt)
}

// GetSimulationTemplate retrieves a template by id.
func (db *DB) GetSimulationTemplate(ctx context.Context, id string) (*SimulationTemplate, error) {
	query := `
		SELECT id, name, description, category, jurisdiction, regulatory_body, default_parameters, usage_count, created_at
		FROM simulation_templates
		WHERE id = $1
	`
	var t SimulationTemplate
	err := db.queryRowPool(ctx, query, id).Scan(
		&t.ID, &t.Name, &t.Description, &t.Category, &t.Jurisdiction, &t.RegulatoryBody,
		&t.DefaultParameters, &t.UsageCount, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListSimulationTemplates returns templates, optionally narrowed by
// category and/or jurisdiction. Empty filters match everything.
func (db *DB) ListSimulationTemplates(ctx context.Context, category, jurisdiction string) ([]*SimulationTemplate, error) {
	query := `
		SELECT id, name, description, category, jurisdiction, regulatory_body, default_parameters, usage_count, created_at
		FROM simulation_templates
		WHERE ($1 = '' OR category = $1) AND ($2 = '' OR jurisdiction = $2)
		ORDER BY name ASC
	`
	rows, err := db.queryPool(ctx, query, category, jurisdiction)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []*SimulationTemplate
	for rows.Next() {
		var t SimulationTemplate
		if err := rows.Scan(
			&t.ID, &t.Name, &t.Description, &t.Category, &t.Jurisdiction, &t.RegulatoryBody,
			&t.DefaultParameters, &t.UsageCount, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		templates = append(templates, &t)
	}
	return templates, rows.Err()
}

// IncrementTemplateUsage bumps a template's usage counter, called each
// time a scenario is created from it.
func (db *DB) IncrementTemplateUsage(ctx context.Context, id string) error {
	_, err := db.execPool(ctx, `UPDATE simulation_templates SET usage_count = usage_count + 1 WHERE id = $1`, id)
	return err
}

// CreateScenario persists a new scenario, optionally derived from a template.
func (db *DB) CreateScenario(ctx context.Context, s *SimulationScenario) error {
	if s.ScenarioType == "" {
		s.ScenarioType = "regulatory_change"
	}
	query := `
		INSERT INTO simulation_scenarios (
			id, template_id, name, scenario_type, regulatory_item_id,
			regulatory_changes, impact_parameters, baseline_data, test_data, created_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`
	return db.queryRowPool(ctx, query,
		s.ID, s.TemplateID, s.Name, s.ScenarioType, s.RegulatoryItemID,
		s.RegulatoryChanges, s.ImpactParameters, s.BaselineData, s.TestData, s.CreatedBy,
	).Scan(&s.CreatedAt)
}

// GetScenario retrieves a scenario by id.
func (db *DB) GetScenario(ctx context.Context, id string) (*SimulationScenario, error) {
	query := `
		SELECT id, template_id, name, scenario_type, regulatory_item_id,
		       regulatory_changes, impact_parameters, baseline_data, test_data, created_by, created_at
		FROM simulation_scenarios
		WHERE id = $1
	`
	var s SimulationScenario
	err := db.queryRowPool(ctx, query, id).Scan(
		&s.ID, &s.TemplateID, &s.Name, &s.ScenarioType, &s.RegulatoryItemID,
		&s.RegulatoryChanges, &s.ImpactParameters, &s.BaselineData, &s.TestData, &s.CreatedBy, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListScenarios returns scenarios, optionally narrowed to one creator.
func (db *DB) ListScenarios(ctx context.Context, createdBy string, limit, offset int) ([]*SimulationScenario, error) {
	query := `
		SELECT id, template_id, name, scenario_type, regulatory_item_id,
		       regulatory_changes, impact_parameters, baseline_data, test_data, created_by, created_at
		FROM simulation_scenarios
		WHERE ($1 = '' OR created_by = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := db.queryPool(ctx, query, createdBy, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanScenarios(rows)
}

// ListScenariosByTemplate returns every scenario derived from a template,
// used to compute template popularity.
func (db *DB) ListScenariosByTemplate(ctx context.Context, templateID string) ([]*SimulationScenario, error) {
	query := `
		SELECT id, template_id, name, scenario_type, regulatory_item_id,
		       regulatory_changes, impact_parameters, baseline_data, test_data, created_by, created_at
		FROM simulation_scenarios
		WHERE template_id = $1
		ORDER BY created_at DESC
	`
	rows, err := db.queryPool(ctx, query, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanScenarios(rows)
}

type scenarioRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanScenarios(rows scenarioRows) ([]*SimulationScenario, error) {
	var scenarios []*SimulationScenario
	for rows.Next() {
		var s SimulationScenario
		if err := rows.Scan(
			&s.ID, &s.TemplateID, &s.Name, &s.ScenarioType, &s.RegulatoryItemID,
			&s.RegulatoryChanges, &s.ImpactParameters, &s.BaselineData, &s.TestData, &s.CreatedBy, &s.CreatedAt,
		); err != nil {
			return nil, err
		}
		scenarios = append(scenarios, &s)
	}
	return scenarios, rows.Err()
}
