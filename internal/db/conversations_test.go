package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGetConversation(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	creator := seedAgent(t, database, AgentRoleFacilitator)

	c := &Conversation{ID: uuid.New().String(), Topic: "AML policy update", CreatedBy: creator}
	require.NoError(t, database.CreateConversation(ctx, c))

	got, err := database.GetConversation(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "AML policy update", got.Topic)
	assert.False(t, got.IsArchived)
}

func TestConversationMessagesAndAttach(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	creator := seedAgent(t, database, AgentRoleFacilitator)
	participant := seedAgent(t, database, AgentRoleExpert)

	conv := &Conversation{ID: uuid.New().String(), Topic: "quarterly review", CreatedBy: creator}
	require.NoError(t, database.CreateConversation(ctx, conv))

	m := &Message{ID: uuid.New().String(), SenderID: participant, MessageType: "NOTE", Priority: PriorityNormal, Status: MessageStatusPending}
	require.NoError(t, database.InsertMessage(ctx, m))
	require.NoError(t, database.AttachMessageToConversation(ctx, m.ID, conv.ID))

	msgs, err := database.GetConversationMessages(ctx, conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, m.ID, msgs[0].ID)
}

func TestArchiveConversation(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	creator := seedAgent(t, database, AgentRoleFacilitator)

	conv := &Conversation{ID: uuid.New().String(), Topic: "archive me", CreatedBy: creator}
	require.NoError(t, database.CreateConversation(ctx, conv))
	require.NoError(t, database.ArchiveConversation(ctx, conv.ID))

	got, err := database.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, got.IsArchived)
}

func TestTouchConversation(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	creator := seedAgent(t, database, AgentRoleFacilitator)

	conv := &Conversation{ID: uuid.New().String(), Topic: "touch me", CreatedBy: creator}
	require.NoError(t, database.CreateConversation(ctx, conv))

	later := time.Now().UTC().Add(time.Hour)
	require.NoError(t, database.TouchConversation(ctx, conv.ID, later))

	got, err := database.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, later, got.UpdatedAt, time.Second)
}
