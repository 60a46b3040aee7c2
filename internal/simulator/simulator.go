package simulator

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/compliancefabric/coordinator/internal/clock"
	"github.com/compliancefabric/coordinator/internal/db"
	"github.com/compliancefabric/coordinator/internal/errs"
	"github.com/compliancefabric/coordinator/internal/ratelimit"
)

const (
	defaultMaxConcurrentSimulations = 5

	progressCreated         = 5
	progressAnalysisStart   = 25
	progressRecommendations = 75
	progressPersisted       = 100
)

// Config controls the simulator's concurrency ceiling. Rate limiting is
// configured separately via the ratelimit.Limiter passed to New.
type Config struct {
	MaxConcurrentSimulations int
}

// Simulator runs what-if regulatory impact analyses: scenario and
// template management, bounded async/sync execution, and the analytics
// built on top of completed runs.
type Simulator struct {
	store   *db.DB
	clock   clock.Clock
	limiter *ratelimit.Limiter
	log     zerolog.Logger

	sem *semaphore.Weighted
}

// New constructs a Simulator. limiter may be nil, in which case
// RunSimulation performs no rate limiting.
func New(store *db.DB, c clock.Clock, limiter *ratelimit.Limiter, cfg Config, log zerolog.Logger) *Simulator {
	maxConcurrent := cfg.MaxConcurrentSimulations
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrentSimulations
	}
	return &Simulator{
		store:   store,
		clock:   c,
		limiter: limiter,
		log:     log.With().Str("component", "simulator").Logger(),
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// CreateScenario validates and persists a new what-if scenario.
func (s *Simulator) CreateScenario(ctx context.Context, scenario *Scenario) (string, error) {
	if err := validateScenario(scenario); err != nil {
		return "", err
	}

	row := &db.SimulationScenario{
		ID:                uuid.New().String(),
		Name:              scenario.Name,
		ScenarioType:      scenario.ScenarioType,
		RegulatoryChanges: scenario.RegulatoryChanges,
		ImpactParameters:  scenario.ImpactParameters,
		BaselineData:      scenario.BaselineData,
		TestData:          scenario.TestData,
		CreatedBy:         scenario.CreatedBy,
	}
	if scenario.TemplateID != "" {
		row.TemplateID = &scenario.TemplateID
	}
	if scenario.RegulatoryItemID != "" {
		row.RegulatoryItemID = &scenario.RegulatoryItemID
	}

	if err := s.store.CreateScenario(ctx, row); err != nil {
		return "", err
	}
	if scenario.TemplateID != "" {
		if err := s.store.IncrementTemplateUsage(ctx, scenario.TemplateID); err != nil {
			s.log.Warn().Err(err).Str("template_id", scenario.TemplateID).Msg("failed to bump template usage count")
		}
	}
	return row.ID, nil
}

// GetScenario retrieves a scenario by id.
func (s *Simulator) GetScenario(ctx context.Context, id string) (*db.SimulationScenario, error) {
	return s.store.GetScenario(ctx, id)
}

// ListScenarios returns a user's scenarios, newest first.
func (s *Simulator) ListScenarios(ctx context.Context, userID string, limit, offset int) ([]*db.SimulationScenario, error) {
	return s.store.ListScenarios(ctx, userID, limit, offset)
}

// ListTemplates returns templates optionally narrowed by category and
// jurisdiction.
func (s *Simulator) ListTemplates(ctx context.Context, category, jurisdiction string) ([]*db.SimulationTemplate, error) {
	return s.store.ListSimulationTemplates(ctx, category, jurisdiction)
}

// GetTemplate retrieves a template by id.
func (s *Simulator) GetTemplate(ctx context.Context, id string) (*db.SimulationTemplate, error) {
	return s.store.GetSimulationTemplate(ctx, id)
}

// CreateScenarioFromTemplate instantiates a concrete scenario from a
// template's default parameters.
func (s *Simulator) CreateScenarioFromTemplate(ctx context.Context, templateID, userID string) (string, error) {
	tmpl, err := s.store.GetSimulationTemplate(ctx, templateID)
	if err != nil {
		return "", err
	}

	scenario := &Scenario{
		TemplateID:        templateID,
		Name:              tmpl.Name,
		RegulatoryChanges: tmpl.DefaultParameters,
		CreatedBy:         userID,
	}
	return s.CreateScenario(ctx, scenario)
}

// RunSimulation executes req.ScenarioID's analysis. Async requests
// return immediately with the new execution's id; synchronous requests
// block until the result is persisted.
func (s *Simulator) RunSimulation(ctx context.Context, req ExecutionRequest) (string, error) {
	if req.Priority != 0 && (req.Priority < 1 || req.Priority > 5) {
		return "", errs.NewValidationError("priority must be between 1 and 5")
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, req.UserID, s.clock.Now())
		if err != nil {
			return "", err
		}
		if !allowed {
			return "", errs.NewValidationError("rate limit exceeded")
		}
	}

	scenario, err := s.store.GetScenario(ctx, req.ScenarioID)
	if err != nil {
		return "", err
	}

	execution := &db.SimulationExecution{
		ID:               uuid.New().String(),
		ScenarioID:       req.ScenarioID,
		UserID:           req.UserID,
		TestDataOverride: req.TestDataOverride,
	}
	if err := s.store.CreateExecution(ctx, execution); err != nil {
		return "", err
	}
	s.updateProgress(ctx, execution.ID, progressCreated)

	if req.AsyncExecution {
		go s.runAsync(context.WithoutCancel(ctx), execution.ID, scenario)
		return execution.ID, nil
	}

	if err := s.execute(ctx, execution.ID, scenario); err != nil {
		return execution.ID, err
	}
	return execution.ID, nil
}

func (s *Simulator) runAsync(ctx context.Context, executionID string, scenario *db.SimulationScenario) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.log.Error().Err(err).Str("execution_id", executionID).Msg("failed to acquire simulation slot")
		return
	}
	defer s.sem.Release(1)

	if err := s.execute(ctx, executionID, scenario); err != nil {
		s.log.Error().Err(err).Str("execution_id", executionID).Msg("simulation execution failed")
	}
}

// execute runs the analysis pipeline for one execution: mark running,
// analyze, generate recommendations, persist the result, mark completed.
// A failure at any stage marks the execution failed and returns the
// error.
func (s *Simulator) execute(ctx context.Context, executionID string, scenario *db.SimulationScenario) error {
	now := s.clock.Now()
	if err := s.store.MarkExecutionRunning(ctx, executionID, now); err != nil {
		return err
	}
	s.updateProgress(ctx, executionID, progressAnalysisStart)

	execution, err := s.store.GetExecution(ctx, executionID)
	if err != nil {
		return s.fail(ctx, executionID, err)
	}

	testData := scenario.TestData
	if len(execution.TestDataOverride) > 0 {
		testData = execution.TestDataOverride
	}

	metrics := AnalyzeRegulatoryImpact(scenario.RegulatoryChanges, testData)
	recommendations := GenerateRecommendations(metrics, scenario.ScenarioType)
	metrics.RecommendedActions = recommendations
	s.updateProgress(ctx, executionID, progressRecommendations)

	result := assembleResult(executionID, scenario.ID, metrics, recommendations)

	recsJSON, _ := json.Marshal(recommendations)
	detailJSON, _ := json.Marshal(map[string]interface{}{
		"risk_assessment":    result.RiskAssessment,
		"cost_impact":        result.CostImpact,
		"compliance_impact":  result.ComplianceImpact,
		"operational_impact": result.OperationalImpact,
		"affected_entities":  result.AffectedEntities,
		"critical_violations": metrics.CriticalViolations,
	})

	resultRow := &db.SimulationResult{
		ID:                uuid.New().String(),
		ExecutionID:       executionID,
		TransactionImpact: metrics.TransactionImpactScore,
		PolicyImpact:      metrics.PolicyImpactScore,
		RiskImpact:        metrics.RiskScoreChange,
		OverallScore:      result.OverallScore,
		Recommendations:   recsJSON,
		Detail:            detailJSON,
	}
	if err := s.store.SaveResult(ctx, resultRow); err != nil {
		return s.fail(ctx, executionID, err)
	}

	if err := s.store.MarkExecutionCompleted(ctx, executionID, s.clock.Now()); err != nil {
		return err
	}
	s.updateProgress(ctx, executionID, progressPersisted)
	return nil
}

func (s *Simulator) fail(ctx context.Context, executionID string, cause error) error {
	if err := s.store.MarkExecutionFailed(ctx, executionID, s.clock.Now(), cause.Error()); err != nil {
		s.log.Error().Err(err).Str("execution_id", executionID).Msg("failed to record execution failure")
	}
	return cause
}

func (s *Simulator) updateProgress(ctx context.Context, executionID string, percent float64) {
	if err := s.store.UpdateExecutionProgress(ctx, executionID, percent); err != nil {
		s.log.Warn().Err(err).Str("execution_id", executionID).Msg("failed to record execution progress")
	}
}

// assembleResult maps raw ImpactMetrics into the structured sections a
// caller expects: risk_assessment, cost_impact, compliance_impact,
// operational_impact.
func assembleResult(executionID, scenarioID string, m ImpactMetrics, recommendations []string) Result {
	overallRisk := "low"
	if m.HighRiskEntities > highRiskEntityThreshold {
		overallRisk = "high"
	} else if m.MediumRiskEntities > 50 {
		overallRisk = "medium"
	}

	overallScore := (m.TransactionImpactScore + m.PolicyImpactScore + clamp01(m.RiskScoreChange)) / 3

	return Result{
		ExecutionID:  executionID,
		ScenarioID:   scenarioID,
		ImpactSummary: m,
		RiskAssessment: map[string]interface{}{
			"overall_risk_level":  overallRisk,
			"high_risk_entities":  m.HighRiskEntities,
			"medium_risk_entities": m.MediumRiskEntities,
			"critical_violations": m.CriticalViolations,
		},
		CostImpact: map[string]interface{}{
			"operational_cost_increase":     m.OperationalCostIncrease,
			"estimated_implementation_cost": m.OperationalCostIncrease * 1.5,
			"estimated_annual_cost":         m.OperationalCostIncrease * 12,
		},
		ComplianceImpact: map[string]interface{}{
			"compliance_score_change": m.ComplianceScoreChange,
		},
		OperationalImpact: map[string]interface{}{
			"estimated_implementation_time_days": m.EstimatedImplementationTimeDays,
		},
		Recommendations:  recommendations,
		AffectedEntities: m.TotalEntitiesAffected,
		OverallScore:     overallScore,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// GetExecutionStatus returns the execution record, including its current
// progress percentage.
func (s *Simulator) GetExecutionStatus(ctx context.Context, executionID string) (*db.SimulationExecution, error) {
	return s.store.GetExecution(ctx, executionID)
}

// GetSimulationResult retrieves a completed execution's persisted result.
func (s *Simulator) GetSimulationResult(ctx context.Context, executionID string) (*db.SimulationResult, error) {
	return s.store.GetResultByExecution(ctx, executionID)
}

// GetUserSimulationHistory returns a user's executions, newest first.
func (s *Simulator) GetUserSimulationHistory(ctx context.Context, userID string, limit, offset int) ([]*db.SimulationExecution, error) {
	return s.store.ListExecutionsByUser(ctx, userID, limit, offset)
}

// CancelSimulation transitions a pending or running execution to
// cancelled. userID is accepted to mirror the original signature but
// ownership is not currently enforced at this layer.
func (s *Simulator) CancelSimulation(ctx context.Context, executionID, userID string) error {
	return s.store.CancelExecution(ctx, executionID, s.clock.Now())
}

// ScenarioPerformance summarizes how a scenario's executions have fared.
type ScenarioPerformance struct {
	ScenarioID         string  `json:"scenario_id"`
	ExecutionCount     int     `json:"execution_count"`
	CompletedCount     int     `json:"completed_count"`
	SuccessRate        float64 `json:"success_rate"`
	AverageDurationMS  float64 `json:"average_duration_ms"`
}

// GetScenarioPerformanceMetrics aggregates execution counts, success
// rate, and average duration for one scenario.
func (s *Simulator) GetScenarioPerformanceMetrics(ctx context.Context, scenarioID string) (*ScenarioPerformance, error) {
	executions, err := s.store.ListExecutionsByScenario(ctx, scenarioID)
	if err != nil {
		return nil, err
	}
	return summarizePerformance(scenarioID, executions), nil
}

func summarizePerformance(scenarioID string, executions []*db.SimulationExecution) *ScenarioPerformance {
	perf := &ScenarioPerformance{ScenarioID: scenarioID, ExecutionCount: len(executions)}
	var totalDurationMS float64
	var durationSamples int

	for _, e := range executions {
		if e.Status == db.ExecutionStatusCompleted {
			perf.CompletedCount++
		}
		if e.StartedAt != nil && e.CompletedAt != nil {
			totalDurationMS += e.CompletedAt.Sub(*e.StartedAt).Seconds() * 1000
			durationSamples++
		}
	}
	if perf.ExecutionCount > 0 {
		perf.SuccessRate = float64(perf.CompletedCount) / float64(perf.ExecutionCount)
	}
	if durationSamples > 0 {
		perf.AverageDurationMS = totalDurationMS / float64(durationSamples)
	}
	return perf
}

// PopularScenario pairs a scenario id with its execution count, used to
// rank scenarios by popularity.
type PopularScenario struct {
	ScenarioID     string `json:"scenario_id"`
	ExecutionCount int    `json:"execution_count"`
}

// GetPopularScenarios returns the limit most-executed scenarios across
// all users, ranked by execution count descending.
func (s *Simulator) GetPopularScenarios(ctx context.Context, limit int) ([]PopularScenario, error) {
	scenarios, err := s.store.ListScenarios(ctx, "", 1000, 0)
	if err != nil {
		return nil, err
	}

	var ranked []PopularScenario
	for _, sc := range scenarios {
		executions, err := s.store.ListExecutionsByScenario(ctx, sc.ID)
		if err != nil {
			return nil, err
		}
		if len(executions) == 0 {
			continue
		}
		ranked = append(ranked, PopularScenario{ScenarioID: sc.ID, ExecutionCount: len(executions)})
	}

	for i := 0; i < len(ranked); i++ {
		for j := i + 1; j < len(ranked); j++ {
			if ranked[j].ExecutionCount > ranked[i].ExecutionCount {
				ranked[i], ranked[j] = ranked[j], ranked[i]
			}
		}
	}
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}
