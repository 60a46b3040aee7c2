package db

import (
	"context"
	"time"
)

// MessagePriority mirrors the five-level urgency scale the messenger exposes.
type MessagePriority string

const (
	PriorityUrgent MessagePriority = "URGENT"
	PriorityHigh   MessagePriority = "HIGH"
	PriorityNormal MessagePriority = "NORMAL"
	PriorityLow    MessagePriority = "LOW"
	PriorityBulk   MessagePriority = "BULK"
)

// MessageStatus is the lifecycle state of a delivered-or-not message.
// Transitions are monotone: PENDING -> DELIVERED -> (ACKNOWLEDGED|READ),
// with FAILED and EXPIRED as terminal sinks reachable from any
// non-terminal state.
type MessageStatus string

const (
	MessageStatusPending      MessageStatus = "PENDING"
	MessageStatusDelivered    MessageStatus = "DELIVERED"
	MessageStatusAcknowledged MessageStatus = "ACKNOWLEDGED"
	MessageStatusRead         MessageStatus = "READ"
	MessageStatusFailed       MessageStatus = "FAILED"
	MessageStatusExpired      MessageStatus = "EXPIRED"
)

// Message is one inter-agent message, unicast or broadcast.
type Message struct {
	ID              string          `db:"id" json:"id"`
	ConversationID  *string         `db:"conversation_id" json:"conversation_id,omitempty"`
	SenderID        string          `db:"sender_id" json:"sender_id"`
	RecipientID     *string         `db:"recipient_id" json:"recipient_id,omitempty"`
	MessageType     string          `db:"message_type" json:"message_type"`
	Priority        MessagePriority `db:"priority" json:"priority"`
	Payload         []byte          `db:"payload" json:"payload,omitempty"`
	Status          MessageStatus   `db:"status" json:"status"`
	AttemptCount    int             `db:"attempt_count" json:"attempt_count"`
	MaxRetries      int             `db:"max_retries" json:"max_retries"`
	CorrelationID   *string         `db:"correlation_id" json:"correlation_id,omitempty"`
	ParentMessageID *string         `db:"parent_message_id" json:"parent_message_id,omitempty"`
	ErrorMessage    *string         `db:"error_message" json:"error_message,omitempty"`
	ExpiresAt       *time.Time      `db:"expires_at" json:"expires_at,omitempty"`
	DeliveredAt     *time.Time      `db:"delivered_at" json:"delivered_at,omitempty"`
	AcknowledgedAt  *time.Time      `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	ReadAt          *time.Time      `db:"read_at" json:"read_at,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// DeliveryOutcome is the result recorded for one delivery attempt.
type DeliveryOutcome string

const (
	DeliveryOutcomeSuccess DeliveryOutcome = "SUCCESS"
	DeliveryOutcomeFailure DeliveryOutcome = "FAILURE"
)

const messageColumns = `
	id, conversation_id, sender_id, recipient_id, message_type,
	priority, payload, status, attempt_count, max_retries, correlation_id,
	parent_message_id, error_message, expires_at, delivered_at, acknowledged_at,
	read_at, created_at
`

func scanMessage(row interface {
	Scan(dest ...interface{}) error
}) (*Message, error) {
	var m Message
	err := row.Scan(
		&m.ID, &m.ConversationID, &m.SenderID, &m.RecipientID, &m.MessageType,
		&m.Priority, &m.Payload, &m.Status, &m.AttemptCount, &m.MaxRetries, &m.CorrelationID,
		&m.ParentMessageID, &m.ErrorMessage, &m.ExpiresAt, &m.DeliveredAt, &m.AcknowledgedAt,
		&m.ReadAt, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// InsertMessage persists a new message in PENDING status.
func (db *DB) InsertMessage(ctx context.Context, m *Message) error {
	query := `
		INSERT INTO messages (
			id, conversation_id, sender_id, recipient_id, message_type,
			priority, payload, status, attempt_count, max_retries, correlation_id,
			parent_message_id, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at
	`
	return db.queryRowPool(ctx, query,
		m.ID, m.ConversationID, m.SenderID, m.RecipientID, m.MessageType,
		m.Priority, m.Payload, m.Status, m.AttemptCount, m.MaxRetries, m.CorrelationID,
		m.ParentMessageID, m.ExpiresAt,
	).Scan(&m.CreatedAt)
}

// GetMessage retrieves a single message by id.
func (db *DB) GetMessage(ctx context.Context, id string) (*Message, error) {
	row := db.queryRowPool(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	return scanMessage(row)
}

// FetchNextPending locks and returns up to limit undelivered messages for an
// agent (direct recipient or broadcast where recipient_id IS NULL), ordered
// by priority then age so urgent traffic is never starved behind a backlog
// of low-priority messages. Expired-but-unswept rows are excluded.
func (db *DB) FetchNextPending(ctx context.Context, agentID string, limit int) ([]*Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE status = 'PENDING' AND (recipient_id = $1 OR recipient_id IS NULL)
		      AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY
			CASE priority
				WHEN 'URGENT' THEN 1
				WHEN 'HIGH' THEN 2
				WHEN 'NORMAL' THEN 3
				WHEN 'LOW' THEN 4
				WHEN 'BULK' THEN 5
				ELSE 6
			END,
			created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`
	rows, err := db.queryPool(ctx, query, agentID, limit)
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

// GetPendingForAgent returns an agent's unexpired PENDING and DELIVERED
// mail, broadcasts included, newest first and without locking, used by
// polling receive calls that don't own a delivery worker's transaction.
func (db *DB) GetPendingForAgent(ctx context.Context, agentID string, limit int) ([]*Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE (recipient_id = $1 OR recipient_id IS NULL) AND status IN ('PENDING', 'DELIVERED')
		      AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := db.queryPool(ctx, query, agentID, limit)
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

// MarkDelivered transitions a message to DELIVERED and stamps delivered_at.
func (db *DB) MarkDelivered(ctx context.Context, id string, when time.Time) error {
	_, err := db.execPool(ctx, `
		UPDATE messages SET status = 'DELIVERED', delivered_at = $2, attempt_count = attempt_count + 1
		WHERE id = $1
	`, id, when)
	return err
}

// MarkAcknowledged transitions a DELIVERED message to ACKNOWLEDGED. Callers
// are expected to have already checked that the current status is
// DELIVERED and that the acknowledging agent is the recipient (or the
// message is a broadcast), matching the Acknowledge contract.
func (db *DB) MarkAcknowledged(ctx context.Context, id string, when time.Time) error {
	_, err := db.execPool(ctx, `
		UPDATE messages SET status = 'ACKNOWLEDGED', acknowledged_at = $2 WHERE id = $1
	`, id, when)
	return err
}

// MarkRead stamps read_at. When the message is not already in a terminal
// state it also transitions status to READ, keeping READ a true terminal
// sibling of ACKNOWLEDGED; a message that already reached ACKNOWLEDGED,
// EXPIRED, or FAILED keeps its status and only records the read fact.
func (db *DB) MarkRead(ctx context.Context, id string, when time.Time) error {
	_, err := db.execPool(ctx, `
		UPDATE messages SET
			read_at = $2,
			delivered_at = COALESCE(delivered_at, $2),
			status = CASE
				WHEN status IN ('ACKNOWLEDGED', 'EXPIRED', 'FAILED') THEN status
				ELSE 'READ'
			END
		WHERE id = $1
	`, id, when)
	return err
}

// MarkFailed transitions a message to FAILED after retries are exhausted.
func (db *DB) MarkFailed(ctx context.Context, id string, reason string) error {
	_, err := db.execPool(ctx, `
		UPDATE messages SET status = 'FAILED', attempt_count = attempt_count + 1, error_message = $2
		WHERE id = $1
	`, id, reason)
	return err
}

// IncrementAttempt bumps the retry counter without changing status, used
// between transient delivery failures that still have retries remaining.
func (db *DB) IncrementAttempt(ctx context.Context, id string) error {
	_, err := db.execPool(ctx, `UPDATE messages SET attempt_count = attempt_count + 1 WHERE id = $1`, id)
	return err
}

// ExpireOverdue marks every non-terminal message whose expires_at has
// passed as EXPIRED, leaving messages already ACKNOWLEDGED or READ
// untouched, and returns how many rows were affected.
func (db *DB) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := db.execPool(ctx, `
		UPDATE messages SET status = 'EXPIRED'
		WHERE expires_at IS NOT NULL AND expires_at <= $1
		      AND status NOT IN ('ACKNOWLEDGED', 'READ', 'EXPIRED', 'FAILED')
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RecordDeliveryAttempt appends one row to the delivery log for audit and
// retry-diagnosis purposes.
func (db *DB) RecordDeliveryAttempt(ctx context.Context, messageID string, attempt int, outcome DeliveryOutcome, detail string) error {
	_, err := db.execPool(ctx, `
		INSERT INTO delivery_log (message_id, attempt, outcome, detail) VALUES ($1, $2, $3, $4)
	`, messageID, attempt, outcome, detail)
	return err
}

// CommunicationStats summarizes delivery behavior over a time window.
type CommunicationStats struct {
	TotalSent           int
	TotalDelivered      int
	TotalFailed         int
	Pending             int
	ActiveConversations int
	DeliverySuccessRate float64
}

// GetCommunicationStats aggregates message counts, optionally scoped to a
// single agent's sent traffic and a lookback window.
func (db *DB) GetCommunicationStats(ctx context.Context, agentID string, since time.Time) (*CommunicationStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE TRUE) AS total_sent,
			COUNT(*) FILTER (WHERE status IN ('DELIVERED', 'ACKNOWLEDGED', 'READ')) AS total_delivered,
			COUNT(*) FILTER (WHERE status = 'FAILED') AS total_failed,
			COUNT(*) FILTER (WHERE status = 'PENDING') AS pending
		FROM messages
		WHERE created_at >= $1 AND ($2 = '' OR sender_id = $2)
	`
	var s CommunicationStats
	err := db.queryRowPool(ctx, query, since, agentID).Scan(
		&s.TotalSent, &s.TotalDelivered, &s.TotalFailed, &s.Pending,
	)
	if err != nil {
		return nil, err
	}
	if s.TotalSent > 0 {
		s.DeliverySuccessRate = float64(s.TotalDelivered) / float64(s.TotalSent)
	}

	err = db.queryRowPool(ctx, `
		SELECT COUNT(DISTINCT conversation_id) FROM messages
		WHERE conversation_id IS NOT NULL AND created_at >= $1
	`, since).Scan(&s.ActiveConversations)
	if err != nil {
		return nil, err
	}

	return &s, nil
}
