// Package messenger implements the Inter-Agent Messenger: a durable,
// at-least-once, priority-ordered message bus between registered agents,
// backed by the shared store rather than an in-memory queue so delivery
// survives a process restart.
package messenger

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/compliancefabric/coordinator/internal/clock"
	"github.com/compliancefabric/coordinator/internal/db"
	"github.com/compliancefabric/coordinator/internal/errs"
)

const (
	defaultMaxRetries           = 3
	defaultRetryDelay           = 30 * time.Second
	defaultBatchSize            = 50
	defaultQueueRefreshInterval = 5 * time.Second
)

// Config controls retry policy and worker cadence.
type Config struct {
	MaxRetries           int
	RetryDelay           time.Duration
	BatchSize            int
	QueueRefreshInterval time.Duration
}

// Stats mirrors the communicator's running delivery counters.
type Stats struct {
	Sent      int64
	Delivered int64
	Failed    int64
	Expired   int64
}

// Messenger coordinates message composition, validation, durable
// delivery, and conversation/template bookkeeping for registered agents.
type Messenger struct {
	store    *db.DB
	registry *Registry
	live     *LiveNotifier
	clock    clock.Clock
	cfg      Config
	log      zerolog.Logger

	mu      sync.Mutex
	stats   Stats
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New builds a Messenger. live may be nil, in which case enqueue events
// are simply not mirrored anywhere.
func New(store *db.DB, live *LiveNotifier, registry *Registry, c clock.Clock, cfg Config, log zerolog.Logger) *Messenger {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.QueueRefreshInterval <= 0 {
		cfg.QueueRefreshInterval = defaultQueueRefreshInterval
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Messenger{
		store:    store,
		registry: registry,
		live:     live,
		clock:    c,
		cfg:      cfg,
		log:      log.With().Str("component", "messenger").Logger(),
	}
}

func encodePayload(fields map[string]interface{}) ([]byte, error) {
	if fields == nil {
		return nil, nil
	}
	return json.Marshal(fields)
}

func decodePayload(raw []byte) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Messenger) compose(senderID string, recipientID *string, messageType string, fields map[string]interface{}, priority db.MessagePriority, expiresIn time.Duration) (*db.Message, error) {
	if err := m.registry.Validate(messageType, fields); err != nil {
		return nil, err
	}
	schema, _ := m.registry.Schema(messageType)
	if schema.RequiresTarget && recipientID == nil {
		return nil, errs.NewValidationError("message type " + messageType + " requires a recipient")
	}
	if priority == "" {
		priority = db.MessagePriority(schema.DefaultPriority)
		if priority == "" {
			priority = db.PriorityNormal
		}
	}
	payload, err := encodePayload(fields)
	if err != nil {
		return nil, errs.NewValidationError("encode payload: " + err.Error())
	}
	msg := &db.Message{
		ID:          uuid.New().String(),
		SenderID:    senderID,
		RecipientID: recipientID,
		MessageType: messageType,
		Priority:    priority,
		Payload:     payload,
		Status:      db.MessageStatusPending,
		MaxRetries:  m.cfg.MaxRetries,
	}
	if expiresIn > 0 {
		at := m.clock.Now().Add(expiresIn)
		msg.ExpiresAt = &at
	}
	return msg, nil
}

// SendOptions carries the optional fields a composed message may set
// beyond its required sender/recipient/type/payload.
type SendOptions struct {
	Priority        db.MessagePriority
	ConversationID  *string
	CorrelationID   *string
	ParentMessageID *string
	ExpiresIn       time.Duration
}

// Send persists a message and attempts one synchronous delivery before
// returning, so a caller that needs to know whether delivery succeeded
// immediately doesn't have to poll. Retries beyond the first attempt are
// left to the background worker.
func (m *Messenger) Send(ctx context.Context, senderID string, recipientID *string, messageType string, fields map[string]interface{}, opts SendOptions) (*db.Message, error) {
	msg, err := m.composeWithOptions(senderID, recipientID, messageType, fields, opts)
	if err != nil {
		return nil, err
	}
	if err := m.store.InsertMessage(ctx, msg); err != nil {
		return nil, errs.NewTransientError("insert message", err)
	}
	m.mu.Lock()
	m.stats.Sent++
	m.mu.Unlock()
	m.notifyEnqueued(recipientID)

	if err := m.attemptDelivery(ctx, msg); err != nil {
		m.log.Debug().Err(err).Str("message_id", msg.ID).Msg("initial delivery attempt failed, leaving for worker")
	}
	return msg, nil
}

// SendAsync persists a message as PENDING and returns immediately,
// leaving delivery entirely to the background worker.
func (m *Messenger) SendAsync(ctx context.Context, senderID string, recipientID *string, messageType string, fields map[string]interface{}, opts SendOptions) (*db.Message, error) {
	msg, err := m.composeWithOptions(senderID, recipientID, messageType, fields, opts)
	if err != nil {
		return nil, err
	}
	if err := m.store.InsertMessage(ctx, msg); err != nil {
		return nil, errs.NewTransientError("insert message", err)
	}
	m.mu.Lock()
	m.stats.Sent++
	m.mu.Unlock()
	m.notifyEnqueued(recipientID)
	return msg, nil
}

// Broadcast sends a message to every agent (recipient_id left NULL).
func (m *Messenger) Broadcast(ctx context.Context, senderID, messageType string, fields map[string]interface{}, opts SendOptions) (*db.Message, error) {
	return m.SendAsync(ctx, senderID, nil, messageType, fields, opts)
}

func (m *Messenger) composeWithOptions(senderID string, recipientID *string, messageType string, fields map[string]interface{}, opts SendOptions) (*db.Message, error) {
	msg, err := m.compose(senderID, recipientID, messageType, fields, opts.Priority, opts.ExpiresIn)
	if err != nil {
		return nil, err
	}
	msg.ConversationID = opts.ConversationID
	msg.CorrelationID = opts.CorrelationID
	msg.ParentMessageID = opts.ParentMessageID
	return msg, nil
}

func (m *Messenger) notifyEnqueued(recipientID *string) {
	if m.live == nil {
		return
	}
	if recipientID == nil {
		m.live.NotifyEnqueued("")
		return
	}
	m.live.NotifyEnqueued(*recipientID)
}

// Receive returns up to limit pending-or-delivered messages addressed to
// agentID and stamps any still-PENDING ones as DELIVERED, since retrieval
// is itself the hand-off to the agent.
func (m *Messenger) Receive(ctx context.Context, agentID string, limit int) ([]*db.Message, error) {
	msgs, err := m.store.GetPendingForAgent(ctx, agentID, limit)
	if err != nil {
		return nil, errs.NewTransientError("get pending for agent", err)
	}
	now := m.clock.Now()
	for _, msg := range msgs {
		if msg.Status == db.MessageStatusPending {
			if err := m.store.MarkDelivered(ctx, msg.ID, now); err != nil {
				return nil, errs.NewTransientError("mark delivered", err)
			}
			msg.Status = db.MessageStatusDelivered
			msg.DeliveredAt = &now
			m.mu.Lock()
			m.stats.Delivered++
			m.mu.Unlock()
		}
	}
	return msgs, nil
}

// PendingFor is a read-only peek at an agent's mailbox, without marking
// anything delivered.
func (m *Messenger) PendingFor(ctx context.Context, agentID string, limit int) ([]*db.Message, error) {
	msgs, err := m.store.GetPendingForAgent(ctx, agentID, limit)
	if err != nil {
		return nil, errs.NewTransientError("get pending for agent", err)
	}
	return msgs, nil
}

// Acknowledge transitions a DELIVERED message to ACKNOWLEDGED on behalf
// of agentID, who must be the message's recipient (or it must be a
// broadcast, readable by anyone).
func (m *Messenger) Acknowledge(ctx context.Context, messageID, agentID string) error {
	msg, err := m.store.GetMessage(ctx, messageID)
	if err != nil {
		return errs.NewNotFoundError("message not found: " + messageID)
	}
	if msg.RecipientID != nil && *msg.RecipientID != agentID {
		return errs.NewValidationError("agent is not the recipient of this message")
	}
	if msg.Status != db.MessageStatusDelivered {
		return errs.NewConflictError("message must be DELIVERED before it can be acknowledged, is " + string(msg.Status))
	}
	if err := m.store.MarkAcknowledged(ctx, messageID, m.clock.Now()); err != nil {
		return errs.NewTransientError("mark acknowledged", err)
	}
	return nil
}

// MarkRead records that agentID has read messageID. Unlike Acknowledge
// this never fails on status, mirroring read-receipts being best-effort.
func (m *Messenger) MarkRead(ctx context.Context, messageID, agentID string) error {
	msg, err := m.store.GetMessage(ctx, messageID)
	if err != nil {
		return errs.NewNotFoundError("message not found: " + messageID)
	}
	if msg.RecipientID != nil && *msg.RecipientID != agentID {
		return errs.NewValidationError("agent is not the recipient of this message")
	}
	if err := m.store.MarkRead(ctx, messageID, m.clock.Now()); err != nil {
		return errs.NewTransientError("mark read", err)
	}
	return nil
}

// StartConversation opens a new conversation thread.
func (m *Messenger) StartConversation(ctx context.Context, topic, createdBy string) (*db.Conversation, error) {
	c := &db.Conversation{ID: uuid.New().String(), Topic: topic, CreatedBy: createdBy}
	if err := m.store.CreateConversation(ctx, c); err != nil {
		return nil, errs.NewTransientError("create conversation", err)
	}
	return c, nil
}

// AddToConversation attaches an existing message to a conversation and
// bumps the conversation's updated_at so idle-thread sweeps see it as
// active.
func (m *Messenger) AddToConversation(ctx context.Context, messageID, conversationID string) error {
	if err := m.store.AttachMessageToConversation(ctx, messageID, conversationID); err != nil {
		return errs.NewTransientError("attach message to conversation", err)
	}
	return m.store.TouchConversation(ctx, conversationID, m.clock.Now())
}

// GetConversationMessages returns up to limit messages in a conversation,
// oldest first.
func (m *Messenger) GetConversationMessages(ctx context.Context, conversationID string, limit int) ([]*db.Message, error) {
	msgs, err := m.store.GetConversationMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, errs.NewTransientError("get conversation messages", err)
	}
	return msgs, nil
}

// SaveTemplate upserts a reusable message body.
func (m *Messenger) SaveTemplate(ctx context.Context, t *db.MessageTemplate) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if err := m.store.UpsertMessageTemplate(ctx, t); err != nil {
		return errs.NewTransientError("upsert message template", err)
	}
	return nil
}

// GetTemplate retrieves a template by name.
func (m *Messenger) GetTemplate(ctx context.Context, name string) (*db.MessageTemplate, error) {
	t, err := m.store.GetMessageTemplate(ctx, name)
	if err != nil {
		return nil, errs.NewNotFoundError("template not found: " + name)
	}
	return t, nil
}

// ListTemplates returns every known template name.
func (m *Messenger) ListTemplates(ctx context.Context) ([]string, error) {
	names, err := m.store.ListMessageTemplates(ctx)
	if err != nil {
		return nil, errs.NewTransientError("list message templates", err)
	}
	return names, nil
}

// ValidateMessageType checks a payload against a registered type's schema.
func (m *Messenger) ValidateMessageType(messageType string, fields map[string]interface{}) error {
	return m.registry.Validate(messageType, fields)
}

// GetTypeSchema returns the schema for messageType.
func (m *Messenger) GetTypeSchema(messageType string) (TypeSchema, bool) {
	return m.registry.Schema(messageType)
}

// ListSupportedTypes lists every registered message type.
func (m *Messenger) ListSupportedTypes() []string {
	return m.registry.Types()
}

// Stats returns a snapshot of the messenger's running delivery counters.
func (m *Messenger) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// CommunicationStats delegates to the store's windowed aggregate, scoped
// to a single agent's sent traffic when agentID is non-empty.
func (m *Messenger) CommunicationStats(ctx context.Context, agentID string, since time.Time) (*db.CommunicationStats, error) {
	stats, err := m.store.GetCommunicationStats(ctx, agentID, since)
	if err != nil {
		return nil, errs.NewTransientError("get communication stats", err)
	}
	return stats, nil
}

// attemptDelivery hands a PENDING message off to its recipient. With no
// real network transport between agents, delivery succeeds unless the
// recipient is an inactive or unknown agent.
func (m *Messenger) attemptDelivery(ctx context.Context, msg *db.Message) error {
	if msg.RecipientID != nil {
		agent, err := m.store.GetAgent(ctx, *msg.RecipientID)
		if err != nil {
			m.recordDeliveryFailure(ctx, msg, "unknown recipient")
			return errs.NewPermanentError("unknown recipient", err)
		}
		if !agent.IsActive {
			m.recordDeliveryFailure(ctx, msg, "recipient is inactive")
			return errs.NewTransientError("recipient inactive", nil)
		}
	}

	now := m.clock.Now()
	if err := m.store.MarkDelivered(ctx, msg.ID, now); err != nil {
		return errs.NewTransientError("mark delivered", err)
	}
	_ = m.store.RecordDeliveryAttempt(ctx, msg.ID, msg.AttemptCount+1, db.DeliveryOutcomeSuccess, "")
	msg.Status = db.MessageStatusDelivered
	msg.DeliveredAt = &now
	m.mu.Lock()
	m.stats.Delivered++
	m.mu.Unlock()
	return nil
}

func (m *Messenger) recordDeliveryFailure(ctx context.Context, msg *db.Message, reason string) {
	_ = m.store.RecordDeliveryAttempt(ctx, msg.ID, msg.AttemptCount+1, db.DeliveryOutcomeFailure, reason)
	if msg.AttemptCount+1 >= msg.MaxRetries {
		_ = m.store.MarkFailed(ctx, msg.ID, reason)
		m.mu.Lock()
		m.stats.Failed++
		m.mu.Unlock()
		return
	}
	_ = m.store.IncrementAttempt(ctx, msg.ID)
}

// Start launches the background delivery worker and expiry sweeper. It is
// idempotent: calling Start on an already-running Messenger is a no-op.
func (m *Messenger) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.mu.Unlock()

	go m.loop(ctx)
}

// Stop signals the worker to exit and blocks until it does.
func (m *Messenger) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	stopCh, doneCh := m.stopCh, m.doneCh
	m.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (m *Messenger) loop(ctx context.Context) {
	m.mu.Lock()
	doneCh, stopCh := m.doneCh, m.stopCh
	m.mu.Unlock()
	defer close(doneCh)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := m.deliverBacklog(ctx); err != nil {
			m.log.Warn().Err(err).Msg("backlog delivery sweep failed")
		}
		if n, err := m.store.ExpireOverdue(ctx, m.clock.Now()); err != nil {
			m.log.Warn().Err(err).Msg("expiry sweep failed")
		} else if n > 0 {
			m.mu.Lock()
			m.stats.Expired += n
			m.mu.Unlock()
		}

		if !clock.SleepInSlices(ctx, m.clock, m.cfg.QueueRefreshInterval, time.Second) {
			return
		}
	}
}

// deliverBacklog claims and delivers pending messages for every active
// agent, so backlogged traffic progresses even when no one is actively
// receiving.
func (m *Messenger) deliverBacklog(ctx context.Context) error {
	agents, err := m.store.ListActiveAgents(ctx)
	if err != nil {
		return errs.NewTransientError("list active agents", err)
	}
	for _, agent := range agents {
		pending, err := m.store.FetchNextPending(ctx, agent.ID, m.cfg.BatchSize)
		if err != nil {
			m.log.Warn().Err(err).Str("agent_id", agent.ID).Msg("fetch next pending failed")
			continue
		}
		for _, msg := range pending {
			if err := m.attemptDelivery(ctx, msg); err != nil {
				m.log.Debug().Err(err).Str("message_id", msg.ID).Msg("delivery attempt failed")
			}
		}
	}
	return nil
}
