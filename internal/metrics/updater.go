package metrics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Updater periodically refreshes gauges that are cheapest to compute as a
// point-in-time aggregate over the store rather than updated inline on
// every mutation (queue depths, active counts, connection pool occupancy).
type Updater struct {
	db       *pgxpool.Pool
	interval time.Duration
	stopCh   chan struct{}
}

// NewUpdater creates a new metrics updater.
func NewUpdater(db *pgxpool.Pool, interval time.Duration) *Updater {
	return &Updater{
		db:       db,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the metrics update loop.
func (u *Updater) Start(ctx context.Context) {
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	u.update(ctx)

	for {
		select {
		case <-ticker.C:
			u.update(ctx)
		case <-u.stopCh:
			log.Info().Msg("Metrics updater stopped")
			return
		case <-ctx.Done():
			log.Info().Msg("Metrics updater context cancelled")
			return
		}
	}
}

// Stop stops the metrics updater.
func (u *Updater) Stop() {
	close(u.stopCh)
}

func (u *Updater) update(ctx context.Context) {
	log.Debug().Msg("Updating metrics from database")

	u.updateMessengerMetrics(ctx)
	u.updateSimulatorMetrics(ctx)
	u.updateDatabaseMetrics()

	log.Debug().Msg("Metrics updated successfully")
}

// updateMessengerMetrics reports per-agent undelivered message queue depth.
func (u *Updater) updateMessengerMetrics(ctx context.Context) {
	query := `
		SELECT recipient_id, COUNT(*)
		FROM messages
		WHERE delivered_at IS NULL AND recipient_id IS NOT NULL
		GROUP BY recipient_id
	`

	rows, err := u.db.Query(ctx, query)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch message queue depths")
		return
	}
	defer rows.Close()

	for rows.Next() {
		var agentID string
		var depth int
		if err := rows.Scan(&agentID, &depth); err != nil {
			continue
		}
		UpdateQueueDepth(agentID, depth)
	}
}

// updateSimulatorMetrics reports the number of simulations currently running.
func (u *Updater) updateSimulatorMetrics(ctx context.Context) {
	var running int64
	query := `SELECT COUNT(*) FROM simulation_executions WHERE status = 'RUNNING'`
	if err := u.db.QueryRow(ctx, query).Scan(&running); err != nil {
		log.Error().Err(err).Msg("Failed to fetch running simulation count")
		return
	}
	UpdateActiveSimulations(int(running))
}

// updateDatabaseMetrics updates database connection pool metrics.
func (u *Updater) updateDatabaseMetrics() {
	stat := u.db.Stat()
	UpdateDatabaseConnections(stat.AcquiredConns(), stat.IdleConns())
}
