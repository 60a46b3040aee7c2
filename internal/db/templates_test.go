package db

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertAndGetMessageTemplate(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	name := "round-opened-" + uuid.New().String()[:8]

	tmpl := &MessageTemplate{
		ID:           uuid.New().String(),
		Name:         name,
		MessageType:  "CONSENSUS_ROUND_OPENED",
		BodyTemplate: "Voting round {{.RoundID}} is now open for {{.Topic}}",
	}
	require.NoError(t, database.UpsertMessageTemplate(ctx, tmpl))

	got, err := database.GetMessageTemplate(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, tmpl.BodyTemplate, got.BodyTemplate)
}

func TestUpsertMessageTemplate_Replaces(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	id := uuid.New().String()
	name := "replaceable-" + id[:8]

	tmpl := &MessageTemplate{ID: id, Name: name, MessageType: "X", BodyTemplate: "v1"}
	require.NoError(t, database.UpsertMessageTemplate(ctx, tmpl))

	tmpl.BodyTemplate = "v2"
	require.NoError(t, database.UpsertMessageTemplate(ctx, tmpl))

	got, err := database.GetMessageTemplate(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.BodyTemplate)
}

func TestListMessageTemplates(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, database.UpsertMessageTemplate(ctx, &MessageTemplate{
		ID: uuid.New().String(), Name: "list-test-" + uuid.New().String()[:8], MessageType: "X", BodyTemplate: "body",
	}))

	names, err := database.ListMessageTemplates(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, names)
}
