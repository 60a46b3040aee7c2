// Package simulator implements the Regulatory Simulator: what-if
// scenario management, bounded asynchronous execution of impact
// analyses, and the analytics built on top of their results.
package simulator

import "encoding/json"

// Scenario is the caller-facing view of a what-if scenario: the
// hypothetical regulatory changes and the data to evaluate them against.
type Scenario struct {
	ID                string          `json:"id,omitempty"`
	TemplateID        string          `json:"template_id,omitempty"`
	Name              string          `json:"name"`
	ScenarioType      string          `json:"scenario_type,omitempty"`
	RegulatoryItemID  string          `json:"regulatory_item_id,omitempty"`
	RegulatoryChanges json.RawMessage `json:"regulatory_changes"`
	ImpactParameters  json.RawMessage `json:"impact_parameters,omitempty"`
	BaselineData      json.RawMessage `json:"baseline_data,omitempty"`
	TestData          json.RawMessage `json:"test_data,omitempty"`
	CreatedBy         string          `json:"created_by,omitempty"`
}

// regulatoryChange is one hypothetical change named in a scenario's
// regulatory_changes document, validated individually.
type regulatoryChange struct {
	ChangeType   string `json:"change_type"`
	Jurisdiction string `json:"jurisdiction"`
	Description  string `json:"description"`
}

// impactParameters controls the sensitivity and iteration bounds of the
// analysis; all fields are optional and fall back to defaults.
type impactParameters struct {
	Sensitivity         *float64 `json:"sensitivity,omitempty"`
	ImpactThreshold     *float64 `json:"impact_threshold,omitempty"`
	MaxIterations       *int     `json:"max_iterations,omitempty"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
}

// ExecutionRequest is the input to RunSimulation.
type ExecutionRequest struct {
	ScenarioID        string          `json:"scenario_id"`
	UserID            string          `json:"user_id"`
	CustomParameters  json.RawMessage `json:"custom_parameters,omitempty"`
	TestDataOverride  json.RawMessage `json:"test_data_override,omitempty"`
	AsyncExecution    bool            `json:"async_execution"`
	Priority          int             `json:"priority,omitempty"`
}

// ImpactMetrics is the accumulated output of AnalyzeRegulatoryImpact.
type ImpactMetrics struct {
	TotalEntitiesAffected          int      `json:"total_entities_affected"`
	HighRiskEntities               int      `json:"high_risk_entities"`
	MediumRiskEntities              int      `json:"medium_risk_entities"`
	LowRiskEntities                int      `json:"low_risk_entities"`
	ComplianceScoreChange          float64  `json:"compliance_score_change"`
	RiskScoreChange                float64  `json:"risk_score_change"`
	OperationalCostIncrease        float64  `json:"operational_cost_increase"`
	EstimatedImplementationTimeDays float64 `json:"estimated_implementation_time_days"`
	CriticalViolations             []string `json:"critical_violations,omitempty"`
	RecommendedActions             []string `json:"recommended_actions,omitempty"`

	// Per-phase scores, distinct from the combined metrics above, kept
	// for the simulation_results row's transaction_impact/policy_impact/
	// risk_impact columns.
	TransactionImpactScore float64 `json:"-"`
	PolicyImpactScore      float64 `json:"-"`
}

// Result is the caller-facing view of a completed simulation's assembled
// outcome, mirroring the SimulationResult the original analyzer produces.
type Result struct {
	ExecutionID         string                 `json:"execution_id"`
	ScenarioID          string                 `json:"scenario_id"`
	ImpactSummary        ImpactMetrics          `json:"impact_summary"`
	RiskAssessment       map[string]interface{} `json:"risk_assessment"`
	CostImpact           map[string]interface{} `json:"cost_impact"`
	ComplianceImpact     map[string]interface{} `json:"compliance_impact"`
	OperationalImpact    map[string]interface{} `json:"operational_impact"`
	Recommendations      []string               `json:"recommendations"`
	AffectedEntities     int                    `json:"affected_entities"`
	OverallScore         float64                `json:"overall_score"`
}
