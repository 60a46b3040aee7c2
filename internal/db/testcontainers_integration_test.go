package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/compliancefabric/coordinator/internal/db"
	"github.com/compliancefabric/coordinator/internal/db/testhelpers"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDatabaseConnectionWithTestcontainers tests basic database connectivity using testcontainers
func TestDatabaseConnectionWithTestcontainers(t *testing.T) {
	tc := testhelpers.SetupTestDatabase(t)
	err := tc.ApplyMigrations("../../migrations")
	require.NoError(t, err)

	ctx := context.Background()

	err = tc.DB.Ping(ctx)
	assert.NoError(t, err)

	err = tc.DB.Health(ctx)
	assert.NoError(t, err)

	pool := tc.DB.Pool()
	assert.NotNil(t, pool)
}

// TestAgentRegistryWithTestcontainers exercises the agent registry CRUD path
func TestAgentRegistryWithTestcontainers(t *testing.T) {
	tc := testhelpers.SetupTestDatabase(t)
	err := tc.ApplyMigrations("../../migrations")
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("Create", func(t *testing.T) {
		id := uuid.New().String()
		agent := &db.Agent{
			ID:                  id,
			Name:                "aml-reviewer",
			Role:                db.AgentRoleReviewer,
			VotingWeight:        1.2,
			DomainExpertise:     "aml",
			ConfidenceThreshold: 0.6,
			IsActive:            true,
			LastActive:          time.Now().UTC(),
		}

		err := tc.DB.UpsertAgent(ctx, agent)
		require.NoError(t, err)

		assert.NotZero(t, agent.CreatedAt)
		assert.NotZero(t, agent.UpdatedAt)
	})

	t.Run("Read", func(t *testing.T) {
		id := uuid.New().String()
		agent := &db.Agent{
			ID:                  id,
			Name:                "fraud-expert",
			Role:                db.AgentRoleExpert,
			VotingWeight:        1.0,
			DomainExpertise:     "fraud",
			ConfidenceThreshold: 0.5,
			IsActive:            true,
			LastActive:          time.Now().UTC(),
		}
		require.NoError(t, tc.DB.UpsertAgent(ctx, agent))

		retrieved, err := tc.DB.GetAgent(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, retrieved)

		assert.Equal(t, agent.ID, retrieved.ID)
		assert.Equal(t, agent.Name, retrieved.Name)
		assert.Equal(t, agent.Role, retrieved.Role)
		assert.Equal(t, agent.VotingWeight, retrieved.VotingWeight)
	})

	t.Run("Update", func(t *testing.T) {
		id := uuid.New().String()
		agent := &db.Agent{
			ID:                  id,
			Name:                "policy-decider",
			Role:                db.AgentRoleDecisionMaker,
			VotingWeight:        1.0,
			DomainExpertise:     "policy",
			ConfidenceThreshold: 0.55,
			IsActive:            true,
			LastActive:          time.Now().UTC(),
		}
		require.NoError(t, tc.DB.UpsertAgent(ctx, agent))

		agent.VotingWeight = 2.5
		require.NoError(t, tc.DB.UpsertAgent(ctx, agent))

		updated, err := tc.DB.GetAgent(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 2.5, updated.VotingWeight)
	})

	t.Run("Deactivate", func(t *testing.T) {
		id := uuid.New().String()
		agent := &db.Agent{
			ID:                  id,
			Name:                "facilitator-1",
			Role:                db.AgentRoleFacilitator,
			VotingWeight:        1.0,
			DomainExpertise:     "general",
			ConfidenceThreshold: 0.5,
			IsActive:            true,
			LastActive:          time.Now().UTC(),
		}
		require.NoError(t, tc.DB.UpsertAgent(ctx, agent))

		require.NoError(t, tc.DB.DeactivateAgent(ctx, id))

		deactivated, err := tc.DB.GetAgent(ctx, id)
		require.NoError(t, err)
		assert.False(t, deactivated.IsActive)
	})

	t.Run("ListActive", func(t *testing.T) {
		activeID := uuid.New().String()
		inactiveID := uuid.New().String()

		require.NoError(t, tc.DB.UpsertAgent(ctx, &db.Agent{
			ID: activeID, Name: "active-observer", Role: db.AgentRoleObserver,
			VotingWeight: 1, ConfidenceThreshold: 0.5, IsActive: true, LastActive: time.Now().UTC(),
		}))
		require.NoError(t, tc.DB.UpsertAgent(ctx, &db.Agent{
			ID: inactiveID, Name: "inactive-observer", Role: db.AgentRoleObserver,
			VotingWeight: 1, ConfidenceThreshold: 0.5, IsActive: false, LastActive: time.Now().UTC(),
		}))

		agents, err := tc.DB.ListActiveAgents(ctx)
		require.NoError(t, err)

		var foundActive, foundInactive bool
		for _, a := range agents {
			if a.ID == activeID {
				foundActive = true
			}
			if a.ID == inactiveID {
				foundInactive = true
			}
		}
		assert.True(t, foundActive)
		assert.False(t, foundInactive)
	})
}

// TestConcurrentAgentUpsertsWithTestcontainers tests thread-safety of the registry writes
func TestConcurrentAgentUpsertsWithTestcontainers(t *testing.T) {
	tc := testhelpers.SetupTestDatabase(t)
	err := tc.ApplyMigrations("../../migrations")
	require.NoError(t, err)

	ctx := context.Background()

	done := make(chan bool, 50)
	errors := make(chan error, 50)

	for i := 0; i < 50; i++ {
		go func(idx int) {
			agent := &db.Agent{
				ID:                  uuid.New().String(),
				Name:                "bulk-agent",
				Role:                db.AgentRoleObserver,
				VotingWeight:        1.0,
				DomainExpertise:     "general",
				ConfidenceThreshold: 0.5,
				IsActive:            true,
				LastActive:          time.Now().UTC(),
			}

			if err := tc.DB.UpsertAgent(ctx, agent); err != nil {
				errors <- err
			}
			done <- true
		}(i)
	}

	for i := 0; i < 50; i++ {
		<-done
	}

	close(errors)
	for err := range errors {
		t.Errorf("Concurrent operation failed: %v", err)
	}

	agents, err := tc.DB.ListActiveAgents(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(agents), 50)
}
