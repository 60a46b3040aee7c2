package messenger

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// LiveNotifier mirrors message enqueue events onto a lightweight NATS
// pub/sub channel so co-located watchers can observe activity without
// polling the store. At-most-once, best-effort: the store remains the
// sole source of truth and the channel carries no payload guarantees.
type LiveNotifier struct {
	nc     *nats.Conn
	prefix string
	log    zerolog.Logger
}

// NewLiveNotifier connects to NATS at url. A nil *LiveNotifier (from a
// connection error) is safe to use elsewhere as a no-op, so callers
// typically log the error and continue without live-notify rather than
// fail the messenger.
func NewLiveNotifier(url, prefix string, log zerolog.Logger) (*LiveNotifier, error) {
	nc, err := nats.Connect(url,
		nats.Name("coordinator-messenger"),
		nats.ReconnectWait(2),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	if prefix == "" {
		prefix = "messenger."
	}
	return &LiveNotifier{nc: nc, prefix: prefix, log: log.With().Str("component", "live_notifier").Logger()}, nil
}

// NotifyEnqueued publishes a zero-payload ping that a message is waiting
// for agentID, or for every subscriber on the broadcast subject when
// agentID is empty.
func (n *LiveNotifier) NotifyEnqueued(agentID string) {
	if n == nil || n.nc == nil {
		return
	}
	subject := n.prefix + "broadcast"
	if agentID != "" {
		subject = n.prefix + agentID
	}
	if err := n.nc.Publish(subject, nil); err != nil {
		n.log.Debug().Err(err).Str("subject", subject).Msg("live-notify publish failed")
	}
}

// Close closes the underlying NATS connection without draining it.
func (n *LiveNotifier) Close() {
	if n == nil || n.nc == nil {
		return
	}
	n.nc.Close()
}
