// Package notify implements the Notifier external collaborator: a
// best-effort, out-of-band sink for CRITICAL regulatory items. Failure to
// notify never blocks ingestion.
package notify

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Severity classifies a notification for formatting and routing.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Notification is one out-of-band alert.
type Notification struct {
	Title     string
	Message   string
	Severity  Severity
	Timestamp time.Time
	Metadata  map[string]interface{}
}

// Sink delivers a Notification somewhere outside the Durable Store.
type Sink interface {
	Send(ctx context.Context, n Notification) error
}

// Notifier fans a notification out to every configured sink, logging but
// not propagating individual sink failures.
type Notifier struct {
	sinks []Sink
	log   zerolog.Logger
}

func New(log zerolog.Logger, sinks ...Sink) *Notifier {
	return &Notifier{sinks: sinks, log: log.With().Str("component", "notifier").Logger()}
}

// Send delivers n to every sink. It returns the last sink error, if any,
// but callers on the ingestion path should treat any error as non-fatal.
func (n *Notifier) Send(ctx context.Context, notification Notification) error {
	if notification.Timestamp.IsZero() {
		notification.Timestamp = time.Now().UTC()
	}

	var lastErr error
	for _, sink := range n.sinks {
		if err := sink.Send(ctx, notification); err != nil {
			n.log.Warn().Err(err).Str("title", notification.Title).Msg("notification sink failed")
			lastErr = err
		}
	}
	return lastErr
}

// NotifyCriticalItem is the convenience entry point the Regulatory Monitor
// calls whenever it persists a CRITICAL-severity item.
func (n *Notifier) NotifyCriticalItem(ctx context.Context, sourceName, title, itemID string) error {
	return n.Send(ctx, Notification{
		Title:    "Critical regulatory item detected",
		Message:  fmt.Sprintf("%s: %s", sourceName, title),
		Severity: SeverityCritical,
		Metadata: map[string]interface{}{
			"source":  sourceName,
			"item_id": itemID,
		},
	})
}

// LogSink routes notifications through structured logging only, used in
// environments with no external alert channel configured.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "notify_log_sink").Logger()}
}

func (s *LogSink) Send(ctx context.Context, n Notification) error {
	event := s.log.Info()
	switch n.Severity {
	case SeverityCritical:
		event = s.log.Error()
	case SeverityWarning:
		event = s.log.Warn()
	}
	for k, v := range n.Metadata {
		event = event.Interface(k, v)
	}
	event.Str("title", n.Title).Msg(n.Message)
	return nil
}

// TelegramSink delivers notifications via a Telegram bot, mirroring the
// reference codebase's operator-alerting channel.
type TelegramSink struct {
	api    *tgbotapi.BotAPI
	chatID int64
	log    zerolog.Logger
}

func NewTelegramSink(botToken string, chatID int64, log zerolog.Logger) (*TelegramSink, error) {
	if botToken == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot api: %w", err)
	}
	return &TelegramSink{
		api:    api,
		chatID: chatID,
		log:    log.With().Str("component", "notify_telegram_sink").Logger(),
	}, nil
}

func (s *TelegramSink) Send(ctx context.Context, n Notification) error {
	var emoji string
	switch n.Severity {
	case SeverityCritical:
		emoji = "[critical]"
	case SeverityWarning:
		emoji = "[warning]"
	default:
		emoji = "[info]"
	}

	text := fmt.Sprintf("%s %s\n\n%s", emoji, n.Title, n.Message)
	for k, v := range n.Metadata {
		text += fmt.Sprintf("\n%s: %v", k, v)
	}

	msg := tgbotapi.NewMessage(s.chatID, text)
	if _, err := s.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}
