package db

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGetSimulationTemplate(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	tmpl := &SimulationTemplate{
		ID: uuid.New().String(), Name: "kyc-threshold-change",
		Description:       "Simulate a change in KYC transaction thresholds",
		DefaultParameters: []byte(`{"threshold_usd":10000}`),
	}
	require.NoError(t, database.CreateSimulationTemplate(ctx, tmpl))

	got, err := database.GetSimulationTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "kyc-threshold-change", got.Name)
}

func TestListSimulationTemplates(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, database.CreateSimulationTemplate(ctx, &SimulationTemplate{
		ID: uuid.New().String(), Name: "list-test-template",
	}))

	templates, err := database.ListSimulationTemplates(ctx, "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, templates)
}

func TestListSimulationTemplates_FiltersByCategoryAndJurisdiction(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, database.CreateSimulationTemplate(ctx, &SimulationTemplate{
		ID: uuid.New().String(), Name: "eu-kyc", Category: "kyc", Jurisdiction: "EU",
	}))
	require.NoError(t, database.CreateSimulationTemplate(ctx, &SimulationTemplate{
		ID: uuid.New().String(), Name: "us-aml", Category: "aml", Jurisdiction: "US",
	}))

	templates, err := database.ListSimulationTemplates(ctx, "kyc", "")
	require.NoError(t, err)
	for _, tpl := range templates {
		assert.Equal(t, "kyc", tpl.Category)
	}

	templates, err = database.ListSimulationTemplates(ctx, "", "US")
	require.NoError(t, err)
	for _, tpl := range templates {
		assert.Equal(t, "US", tpl.Jurisdiction)
	}
}

func TestCreateScenarioFromTemplate(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	tmpl := &SimulationTemplate{ID: uuid.New().String(), Name: "base-template"}
	require.NoError(t, database.CreateSimulationTemplate(ctx, tmpl))

	creator := seedAgent(t, database, AgentRoleFacilitator)
	scenario := &SimulationScenario{
		ID: uuid.New().String(), TemplateID: &tmpl.ID, Name: "q3 threshold change",
		RegulatoryChanges: []byte(`{"transaction_limits":{"max_amount":5000}}`), CreatedBy: creator,
	}
	require.NoError(t, database.CreateScenario(ctx, scenario))

	got, err := database.GetScenario(ctx, scenario.ID)
	require.NoError(t, err)
	assert.Equal(t, "q3 threshold change", got.Name)
	require.NotNil(t, got.TemplateID)
	assert.Equal(t, tmpl.ID, *got.TemplateID)
}

func TestListScenarios_FiltersByCreator(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	creator := seedAgent(t, database, AgentRoleFacilitator)
	other := seedAgent(t, database, AgentRoleFacilitator)

	require.NoError(t, database.CreateScenario(ctx, &SimulationScenario{
		ID: uuid.New().String(), Name: "mine", CreatedBy: creator,
	}))
	require.NoError(t, database.CreateScenario(ctx, &SimulationScenario{
		ID: uuid.New().String(), Name: "theirs", CreatedBy: other,
	}))

	scenarios, err := database.ListScenarios(ctx, creator, 50, 0)
	require.NoError(t, err)
	for _, s := range scenarios {
		assert.Equal(t, creator, s.CreatedBy)
	}
}

func TestListScenariosByTemplate(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	tmpl := &SimulationTemplate{ID: uuid.New().String(), Name: "popular-template"}
	require.NoError(t, database.CreateSimulationTemplate(ctx, tmpl))
	creator := seedAgent(t, database, AgentRoleFacilitator)

	for i := 0; i < 2; i++ {
		require.NoError(t, database.CreateScenario(ctx, &SimulationScenario{
			ID: uuid.New().String(), TemplateID: &tmpl.ID, Name: "derived", CreatedBy: creator,
		}))
	}

	scenarios, err := database.ListScenariosByTemplate(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Len(t, scenarios, 2)
}
