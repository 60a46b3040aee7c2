package simulator

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compliancefabric/coordinator/internal/clock"
	"github.com/compliancefabric/coordinator/internal/db"
)

func setupTestSimulator(t *testing.T) (*db.DB, func()) {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("Skipping database test: DATABASE_URL not set")
	}
	ctx := context.Background()
	database, err := db.New(ctx)
	if err != nil {
		t.Skipf("Skipping database test: failed to connect: %v", err)
	}
	return database, func() { database.Close() }
}

func newTestSimulator(database *db.DB) *Simulator {
	return New(database, clock.New(), nil, Config{}, zerolog.Nop())
}

const sampleRegulatoryChanges = `{"change_type":"addition","jurisdiction":"EU","description":"tighten kyc thresholds","transaction_limits":{"max_amount":1000}}`

func TestCreateScenario_PersistsAndRoundTrips(t *testing.T) {
	database, cleanup := setupTestSimulator(t)
	defer cleanup()

	sim := newTestSimulator(database)
	id, err := sim.CreateScenario(context.Background(), &Scenario{
		Name:              "q1-threshold-change",
		RegulatoryChanges: []byte(sampleRegulatoryChanges),
	})
	require.NoError(t, err)

	got, err := sim.GetScenario(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "q1-threshold-change", got.Name)
}

func TestCreateScenario_RejectsInvalidScenario(t *testing.T) {
	database, cleanup := setupTestSimulator(t)
	defer cleanup()

	sim := newTestSimulator(database)
	_, err := sim.CreateScenario(context.Background(), &Scenario{Name: "no-changes"})
	assert.Error(t, err)
}

func TestRunSimulation_SyncExecutionPersistsResult(t *testing.T) {
	database, cleanup := setupTestSimulator(t)
	defer cleanup()

	sim := newTestSimulator(database)
	ctx := context.Background()

	scenarioID, err := sim.CreateScenario(ctx, &Scenario{
		Name:              "sync-run",
		RegulatoryChanges: []byte(sampleRegulatoryChanges),
		TestData:          []byte(`{"transactions":[{"amount":5000,"country":"US"}]}`),
	})
	require.NoError(t, err)

	executionID, err := sim.RunSimulation(ctx, ExecutionRequest{ScenarioID: scenarioID, UserID: "user-1"})
	require.NoError(t, err)

	execution, err := sim.GetExecutionStatus(ctx, executionID)
	require.NoError(t, err)
	assert.Equal(t, db.ExecutionStatusCompleted, execution.Status)

	result, err := sim.GetSimulationResult(ctx, executionID)
	require.NoError(t, err)
	assert.Greater(t, result.TransactionImpact, 0.0)
	assert.NotEmpty(t, result.Recommendations)
}

func TestRunSimulation_RejectsUnknownScenario(t *testing.T) {
	database, cleanup := setupTestSimulator(t)
	defer cleanup()

	sim := newTestSimulator(database)
	_, err := sim.RunSimulation(context.Background(), ExecutionRequest{ScenarioID: "does-not-exist", UserID: "user-1"})
	assert.Error(t, err)
}

func TestCancelSimulation_TransitionsPendingToCancelled(t *testing.T) {
	database, cleanup := setupTestSimulator(t)
	defer cleanup()

	sim := newTestSimulator(database)
	ctx := context.Background()

	scenarioID, err := sim.CreateScenario(ctx, &Scenario{
		Name:              "cancel-me",
		RegulatoryChanges: []byte(sampleRegulatoryChanges),
	})
	require.NoError(t, err)

	execution := &db.SimulationExecution{ID: uuid.New().String(), ScenarioID: scenarioID, UserID: "user-1"}
	require.NoError(t, database.CreateExecution(ctx, execution))

	require.NoError(t, sim.CancelSimulation(ctx, execution.ID, "user-1"))

	got, err := sim.GetExecutionStatus(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, db.ExecutionStatusCancelled, got.Status)
}

func TestCreateScenarioFromTemplate_InheritsDefaultParameters(t *testing.T) {
	database, cleanup := setupTestSimulator(t)
	defer cleanup()

	sim := newTestSimulator(database)
	ctx := context.Background()

	templateID := uuid.New().String()
	err := database.CreateSimulationTemplate(ctx, &db.SimulationTemplate{
		ID: templateID, Name: "kyc-template", Category: "kyc", Jurisdiction: "EU",
		DefaultParameters: []byte(sampleRegulatoryChanges),
	})
	require.NoError(t, err)

	scenarioID, err := sim.CreateScenarioFromTemplate(ctx, templateID, "user-1")
	require.NoError(t, err)

	got, err := sim.GetScenario(ctx, scenarioID)
	require.NoError(t, err)
	require.NotNil(t, got.TemplateID)
	assert.Equal(t, templateID, *got.TemplateID)
}

func TestListTemplates_FiltersByCategory(t *testing.T) {
	database, cleanup := setupTestSimulator(t)
	defer cleanup()

	sim := newTestSimulator(database)
	ctx := context.Background()

	require.NoError(t, database.CreateSimulationTemplate(ctx, &db.SimulationTemplate{
		ID: uuid.New().String(), Name: "aml-template", Category: "aml",
	}))

	templates, err := sim.ListTemplates(ctx, "aml", "")
	require.NoError(t, err)
	for _, tpl := range templates {
		assert.Equal(t, "aml", tpl.Category)
	}
}

func TestGetScenarioPerformanceMetrics_ComputesSuccessRate(t *testing.T) {
	database, cleanup := setupTestSimulator(t)
	defer cleanup()

	sim := newTestSimulator(database)
	ctx := context.Background()

	scenarioID, err := sim.CreateScenario(ctx, &Scenario{
		Name:              "perf-scenario",
		RegulatoryChanges: []byte(sampleRegulatoryChanges),
	})
	require.NoError(t, err)

	_, err = sim.RunSimulation(ctx, ExecutionRequest{ScenarioID: scenarioID, UserID: "user-1"})
	require.NoError(t, err)

	perf, err := sim.GetScenarioPerformanceMetrics(ctx, scenarioID)
	require.NoError(t, err)
	assert.Equal(t, 1, perf.ExecutionCount)
	assert.Equal(t, 1.0, perf.SuccessRate)
}
