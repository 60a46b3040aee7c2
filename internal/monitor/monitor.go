// Package monitor implements the Regulatory Monitor: a scheduled,
// per-source pull pipeline with circuit-breaking, deduplication, and
// durable ingestion of regulatory items.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/compliancefabric/coordinator/internal/clock"
	"github.com/compliancefabric/coordinator/internal/db"
	"github.com/compliancefabric/coordinator/internal/httpfetch"
	"github.com/compliancefabric/coordinator/internal/notify"
)

const defaultMaxConsecutiveFailures = 5

// Stats is the monitor's running counters, reset only on process restart.
type Stats struct {
	TotalChecks       int64
	SuccessfulChecks  int64
	FailedChecks      int64
	ItemsDetected     int64
	DuplicatesAvoided int64
	ActiveSources     int64
}

// SourceStats is a single source's per-source health, as tracked in the
// store alongside the monitor's process-wide Stats.
type SourceStats struct {
	SourceID            string
	IsActive            bool
	ConsecutiveFailures int
	BreakerState        db.BreakerState
	LastPolledAt        *time.Time
	LastSuccessAt       *time.Time
	ItemsDetected       int64
}

// Monitor periodically polls every active RegulatorySource, extracts
// candidate RegulatoryItems, and persists the new ones.
type Monitor struct {
	store    *db.DB
	fetcher  *httpfetch.Fetcher
	clock    clock.Clock
	notifier *notify.Notifier
	log      zerolog.Logger

	interval    time.Duration
	maxFailures int

	mu      sync.Mutex
	stats   Stats
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Config controls sweep cadence and failure tolerance.
type Config struct {
	Interval               time.Duration
	MaxConsecutiveFailures int
}

func New(store *db.DB, fetcher *httpfetch.Fetcher, c clock.Clock, notifier *notify.Notifier, cfg Config, log zerolog.Logger) *Monitor {
	maxFailures := cfg.MaxConsecutiveFailures
	if maxFailures <= 0 {
		maxFailures = defaultMaxConsecutiveFailures
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Monitor{
		store:       store,
		fetcher:     fetcher,
		clock:       c,
		notifier:    notifier,
		log:         log.With().Str("component", "regulatory_monitor").Logger(),
		interval:    interval,
		maxFailures: maxFailures,
	}
}

// AddSource registers a new source. Idempotent: re-adding the same id
// updates its configuration.
func (m *Monitor) AddSource(ctx context.Context, src *db.RegulatorySource) error {
	return m.store.UpsertSource(ctx, src)
}

// UpdateSource is an alias for AddSource; both are upserts.
func (m *Monitor) UpdateSource(ctx context.Context, src *db.RegulatorySource) error {
	return m.store.UpsertSource(ctx, src)
}

// RemoveSource deletes a source's configuration.
func (m *Monitor) RemoveSource(ctx context.Context, id string) error {
	return m.store.DeleteSource(ctx, id)
}

// ListSources returns every active source.
func (m *Monitor) ListSources(ctx context.Context) ([]*db.RegulatorySource, error) {
	return m.store.ListActiveSources(ctx)
}

// ForceCheck clears a source's last-polled timestamp so the next sweep
// includes it regardless of its poll interval.
func (m *Monitor) ForceCheck(ctx context.Context, id string) error {
	return m.store.ClearLastPolled(ctx, id)
}

// Stats returns a snapshot of the monitor's running counters.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Start launches the sweep worker. Safe to call once; a second call is a
// no-op while the worker is already running.
func (m *Monitor) Start(ctx context.Context) {
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

// Stop signals the worker to exit and blocks until it has joined.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	doneCh := m.doneCh
	m.mu.Unlock()

	<-doneCh
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.doneCh)

	m.log.Info().Dur("interval", m.interval).Msg("regulatory monitor sweep worker starting")

	for {
		select {
		case <-m.stopCh:
			m.log.Info().Msg("regulatory monitor sweep worker stopped")
			return
		case <-ctx.Done():
			m.log.Info().Msg("regulatory monitor sweep worker stopped (context cancelled)")
			return
		default:
		}

		if err := m.sweep(ctx); err != nil {
			m.log.Error().Err(err).Msg("sweep failed")
		}

		if !clock.SleepInSlices(ctx, m.clock, m.interval, time.Second) {
			return
		}
		select {
		case <-m.stopCh:
			return
		default:
		}
	}
}

// sweep checks every source eligible for polling this cycle.
func (m *Monitor) sweep(ctx context.Context) error {
	sources, err := m.store.ListActiveSources(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.stats.ActiveSources = int64(len(sources))
	m.mu.Unlock()

	now := m.clock.Now()
	for _, src := range sources {
		if !shouldCheck(src, now, m.maxFailures) {
			continue
		}
		m.checkSource(ctx, src)
	}
	return nil
}

// shouldCheck mirrors the reference monitor's eligibility rule: active,
// below the failure ceiling, and due per its own poll interval.
func shouldCheck(src *db.RegulatorySource, now time.Time, maxFailures int) bool {
	if !src.IsActive || src.ConsecutiveFailures >= maxFailures {
		return false
	}
	if src.LastPolledAt == nil {
		return true
	}
	interval := time.Duration(src.PollIntervalSeconds) * time.Second
	return now.Sub(*src.LastPolledAt) >= interval
}

func (m *Monitor) checkSource(ctx context.Context, src *db.RegulatorySource) {
	m.mu.Lock()
	m.stats.TotalChecks++
	m.mu.Unlock()

	result := m.fetcher.Get(ctx, src.Endpoint)
	now := m.clock.Now()

	if !result.Success {
		m.mu.Lock()
		m.stats.FailedChecks++
		m.mu.Unlock()
		if err := m.store.RecordPollFailure(ctx, src.ID, now, m.maxFailures); err != nil {
			m.log.Error().Err(err).Str("source_id", src.ID).Msg("failed to record poll failure")
		}
		m.log.Warn().Str("source_id", src.ID).Str("error", result.Error).Msg("source fetch failed")
		return
	}

	candidates := m.extractFor(src, string(result.Body))
	for _, cnd := range candidates {
		if err := m.persistCandidate(ctx, src, cnd); err != nil {
			m.log.Error().Err(err).Str("source_id", src.ID).Msg("failed to persist candidate item")
		}
	}

	m.mu.Lock()
	m.stats.SuccessfulChecks++
	m.mu.Unlock()

	if err := m.store.RecordPollSuccess(ctx, src.ID, now); err != nil {
		m.log.Error().Err(err).Str("source_id", src.ID).Msg("failed to record poll success")
	}
}

func (m *Monitor) extractFor(src *db.RegulatorySource, body string) []candidate {
	switch src.SourceType {
	case db.SourceTypeRSS:
		return extractRSS(body)
	case db.SourceTypeHTML:
		return extractHTML(body, src.Endpoint)
	case db.SourceTypeAPI:
		return extractAPI(body)
	default:
		return nil
	}
}

func (m *Monitor) persistCandidate(ctx context.Context, src *db.RegulatorySource, cnd candidate) error {
	item := &db.RegulatoryItem{
		ID:          uuid.New().String(),
		SourceID:    src.ID,
		Title:       cnd.Title,
		ContentHash: contentHash(src.ID, cnd.Title),
		Body:        cnd.Body,
		Severity:    cnd.Severity,
		PublishedAt: cnd.PublishedAt,
	}

	inserted, err := m.StoreItem(ctx, item)
	if err != nil {
		return err
	}
	if !inserted || item.Severity != "CRITICAL" || m.notifier == nil {
		return nil
	}
	if err := m.notifier.NotifyCriticalItem(ctx, src.Name, item.Title, item.ID); err != nil {
		m.log.Warn().Err(err).Str("item_id", item.ID).Msg("failed to notify critical item")
	}
	return nil
}

// StoreItem persists item, deduplicating on its (source_id, content_hash)
// pair: a second call with the same item is a no-op that counts toward
// DuplicatesAvoided rather than producing a second row. Returns whether a
// new row was inserted.
func (m *Monitor) StoreItem(ctx context.Context, item *db.RegulatoryItem) (bool, error) {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.ContentHash == "" {
		item.ContentHash = contentHash(item.SourceID, item.Title)
	}

	inserted, err := m.store.InsertItemIfNew(ctx, item)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	if inserted {
		m.stats.ItemsDetected++
	} else {
		m.stats.DuplicatesAvoided++
	}
	m.mu.Unlock()

	return inserted, nil
}

// GetRecentItems returns the most recently discovered items across every
// source, newest first, capped at limit.
func (m *Monitor) GetRecentItems(ctx context.Context, limit int) ([]*db.RegulatoryItem, error) {
	return m.store.ListRecentItemsAll(ctx, limit)
}

// SourceStats reports a single source's health and item yield.
func (m *Monitor) SourceStats(ctx context.Context, id string) (*SourceStats, error) {
	src, err := m.store.GetSource(ctx, id)
	if err != nil {
		return nil, err
	}
	count, err := m.store.CountItemsForSource(ctx, id)
	if err != nil {
		return nil, err
	}
	return &SourceStats{
		SourceID:            src.ID,
		IsActive:            src.IsActive,
		ConsecutiveFailures: src.ConsecutiveFailures,
		BreakerState:        src.BreakerState,
		LastPolledAt:        src.LastPolledAt,
		LastSuccessAt:       src.LastSuccessAt,
		ItemsDetected:       count,
	}, nil
}
