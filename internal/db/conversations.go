package db

import (
	"context"
	"time"
)

// Conversation groups a thread of related messages under one topic.
type Conversation struct {
	ID         string    `db:"id" json:"id"`
	Topic      string    `db:"topic" json:"topic"`
	CreatedBy  string    `db:"created_by" json:"created_by"`
	IsArchived bool      `db:"is_archived" json:"is_archived"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// CreateConversation starts a new conversation thread.
func (db *DB) CreateConversation(ctx context.Context, c *Conversation) error {
	query := `
		INSERT INTO conversations (id, topic, created_by)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`
	return db.queryRowPool(ctx, query, c.ID, c.Topic, c.CreatedBy).Scan(&c.CreatedAt, &c.UpdatedAt)
}

// GetConversation retrieves a conversation by id.
func (db *DB) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `
		SELECT id, topic, created_by, is_archived, created_at, updated_at
		FROM conversations
		WHERE id = $1
	`
	var c Conversation
	err := db.queryRowPool(ctx, query, id).Scan(
		&c.ID, &c.Topic, &c.CreatedBy, &c.IsArchived, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// TouchConversation bumps updated_at, used whenever a new message lands in
// the conversation so idle-conversation sweeps can find stale threads.
func (db *DB) TouchConversation(ctx context.Context, id string, when time.Time) error {
	_, err := db.execPool(ctx, `UPDATE conversations SET updated_at = $2 WHERE id = $1`, id, when)
	return err
}

// ArchiveConversation marks a conversation as archived, excluding it from
// active-conversation counts without deleting its message history.
func (db *DB) ArchiveConversation(ctx context.Context, id string) error {
	_, err := db.execPool(ctx, `UPDATE conversations SET is_archived = true, updated_at = NOW() WHERE id = $1`, id)
	return err
}

// GetConversationMessages returns up to limit messages belonging to a
// conversation, oldest first.
func (db *DB) GetConversationMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := db.queryPool(ctx, query, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// AttachMessageToConversation assigns an existing message to a conversation,
// used when a message is composed before the conversation is known (replies).
func (db *DB) AttachMessageToConversation(ctx context.Context, messageID, conversationID string) error {
	_, err := db.execPool(ctx, `UPDATE messages SET conversation_id = $2 WHERE id = $1`, messageID, conversationID)
	return err
}
