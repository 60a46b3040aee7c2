package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bounded cardinality constants for metric labels. These ensure metrics
// don't have unbounded label values which can cause memory issues.
const (
	// Circuit breaker reasons (bounded set)
	ReasonSourceTimeout   = "source_timeout"
	ReasonSourceRateLimit = "source_rate_limit"
	ReasonSourceAuth      = "source_auth"
	ReasonManualHalt      = "manual_halt"
	ReasonOther           = "other"

	// Validation failure reasons (bounded set)
	ValidationReasonSchemaInvalid   = "schema_invalid"
	ValidationReasonFieldMissing    = "field_missing"
	ValidationReasonValueOutOfRange = "value_out_of_range"
	ValidationReasonIncompatible    = "incompatible"
	ValidationReasonOther           = "other"

	// Source fetch error categories (bounded set)
	SourceErrorTimeout     = "timeout"
	SourceErrorRateLimit   = "rate_limit"
	SourceErrorAuth        = "authentication"
	SourceErrorNetwork     = "network"
	SourceErrorInvalidResp = "invalid_response"
	SourceErrorServerError = "server_error"
	SourceErrorOther       = "other"
)

// NormalizeCircuitBreakerReason maps arbitrary reasons to a bounded set.
func NormalizeCircuitBreakerReason(reason string) string {
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "timeout"):
		return ReasonSourceTimeout
	case strings.Contains(lower, "rate") || strings.Contains(lower, "limit"):
		return ReasonSourceRateLimit
	case strings.Contains(lower, "auth"):
		return ReasonSourceAuth
	case strings.Contains(lower, "manual") || strings.Contains(lower, "halt"):
		return ReasonManualHalt
	default:
		return ReasonOther
	}
}

// NormalizeValidationReason maps arbitrary validation failures to a bounded set.
func NormalizeValidationReason(reason string) string {
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "schema") || strings.Contains(lower, "version"):
		return ValidationReasonSchemaInvalid
	case strings.Contains(lower, "missing") || strings.Contains(lower, "required"):
		return ValidationReasonFieldMissing
	case strings.Contains(lower, "range") || strings.Contains(lower, "value") || strings.Contains(lower, "invalid"):
		return ValidationReasonValueOutOfRange
	case strings.Contains(lower, "compatible") || strings.Contains(lower, "migration"):
		return ValidationReasonIncompatible
	default:
		return ValidationReasonOther
	}
}

// NormalizeSourceError maps arbitrary regulatory source fetch errors to a bounded set.
func NormalizeSourceError(err error) string {
	if err == nil {
		return ""
	}
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return SourceErrorTimeout
	case strings.Contains(errStr, "rate") || strings.Contains(errStr, "429"):
		return SourceErrorRateLimit
	case strings.Contains(errStr, "auth") || strings.Contains(errStr, "401") || strings.Contains(errStr, "403"):
		return SourceErrorAuth
	case strings.Contains(errStr, "network") || strings.Contains(errStr, "connection"):
		return SourceErrorNetwork
	case strings.Contains(errStr, "400") || strings.Contains(errStr, "invalid"):
		return SourceErrorInvalidResp
	case strings.Contains(errStr, "500") || strings.Contains(errStr, "502") || strings.Contains(errStr, "503"):
		return SourceErrorServerError
	default:
		return SourceErrorOther
	}
}

// Regulatory Monitor metrics
var (
	ItemsIngestedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "regcoord_items_ingested_total",
		Help: "Total regulatory items ingested, by source",
	}, []string{"source"})

	ItemsDeduplicatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "regcoord_items_deduplicated_total",
		Help: "Total regulatory items skipped as duplicates, by source",
	}, []string{"source"})

	SourcePollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "regcoord_source_poll_duration_ms",
		Help:    "Duration of a regulatory source poll in milliseconds",
		Buckets: prometheus.ExponentialBuckets(10, 2, 12),
	}, []string{"source"})

	SourceFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "regcoord_source_failures_total",
		Help: "Total regulatory source poll failures, by source and error category",
	}, []string{"source", "error_type"})

	SourceCircuitBreakerStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "regcoord_source_circuit_breaker_status",
		Help: "Circuit breaker status per source (0=closed, 1=half-open, 2=open)",
	}, []string{"source"})
)

// Inter-Agent Messenger metrics
var (
	MessagesSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "regcoord_messages_sent_total",
		Help: "Total messages sent, by message type",
	}, []string{"message_type"})

	MessagesDeliveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "regcoord_messages_delivered_total",
		Help: "Total messages delivered, by message type",
	}, []string{"message_type"})

	MessagesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "regcoord_messages_failed_total",
		Help: "Total message delivery failures, by message type",
	}, []string{"message_type"})

	BroadcastFanout = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "regcoord_broadcast_fanout",
		Help:    "Number of recipients per broadcast message",
		Buckets: prometheus.LinearBuckets(1, 5, 10),
	})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "regcoord_message_queue_depth",
		Help: "Current number of undelivered messages per agent",
	}, []string{"agent_id"})
)

// Consensus Engine metrics
var (
	ConsensusProcessesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "regcoord_consensus_processes_started_total",
		Help: "Total consensus processes initiated",
	})

	ConsensusOpinionsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "regcoord_consensus_opinions_submitted_total",
		Help: "Total opinions submitted to consensus rounds, by algorithm",
	}, []string{"algorithm"})

	ConsensusDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "regcoord_consensus_decisions_total",
		Help: "Total consensus decisions reached, by algorithm and confidence tier",
	}, []string{"algorithm", "confidence"})

	ConsensusRoundTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "regcoord_consensus_round_timeouts_total",
		Help: "Total consensus rounds that transitioned to TIMEOUT",
	})

	ConsensusConflictsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "regcoord_consensus_conflicts_detected_total",
		Help: "Total conflicts identified in consensus decisions, by resolution strategy",
	}, []string{"strategy"})

	ConsensusRoundDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "regcoord_consensus_round_duration_ms",
		Help:    "Duration of a consensus round from open to close in milliseconds",
		Buckets: prometheus.ExponentialBuckets(100, 2, 12),
	})
)

// Regulatory Simulator metrics
var (
	SimulationsRunTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "regcoord_simulations_run_total",
		Help: "Total simulations executed, by status",
	}, []string{"status"})

	SimulationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "regcoord_simulation_duration_ms",
		Help:    "Duration of a simulation execution in milliseconds",
		Buckets: prometheus.ExponentialBuckets(10, 2, 14),
	})

	SimulationsRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "regcoord_simulations_rate_limited_total",
		Help: "Total simulation requests rejected by the rate limiter",
	})

	ActiveSimulations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "regcoord_active_simulations",
		Help: "Current number of simulations occupying a concurrency slot",
	})
)

// Vault client metrics
var (
	vaultCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "regcoord_vault_cache_hits_total",
		Help: "Total Vault secret cache hits",
	})

	vaultCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "regcoord_vault_cache_misses_total",
		Help: "Total Vault secret cache misses",
	})

	vaultCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "regcoord_vault_cache_size",
		Help: "Current number of secrets held in the Vault client cache",
	})

	vaultRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "regcoord_vault_request_duration_ms",
		Help:    "Duration of a Vault API request in milliseconds",
		Buckets: prometheus.ExponentialBuckets(5, 2, 12),
	})

	vaultRequestErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "regcoord_vault_request_errors_total",
		Help: "Total Vault API requests that returned an error",
	})
)

// Ambient metrics shared by every component
var (
	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "regcoord_database_connections_active",
		Help: "Active database connections in the pool",
	})

	DatabaseConnectionsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "regcoord_database_connections_idle",
		Help: "Idle database connections in the pool",
	})

	DatabaseQueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "regcoord_database_query_duration_ms",
		Help:    "Duration of a database query in milliseconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	})

	RedisCacheHitRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "regcoord_redis_cache_hit_rate",
		Help: "Rolling Redis cache hit rate (0.0-1.0)",
	})

	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "regcoord_errors_total",
		Help: "Total errors, by error type and originating component",
	}, []string{"error_type", "component"})
)

// RecordItemIngested records a successfully ingested regulatory item.
func RecordItemIngested(source string) {
	ItemsIngestedTotal.WithLabelValues(source).Inc()
}

// RecordItemDeduplicated records a regulatory item skipped as a duplicate.
func RecordItemDeduplicated(source string) {
	ItemsDeduplicatedTotal.WithLabelValues(source).Inc()
}

// RecordSourcePoll records the outcome and duration of one source poll.
func RecordSourcePoll(source string, durationMs float64, err error) {
	SourcePollDuration.WithLabelValues(source).Observe(durationMs)
	if err != nil {
		SourceFailuresTotal.WithLabelValues(source, NormalizeSourceError(err)).Inc()
	}
}

// UpdateSourceCircuitBreaker reports the current state of a source's circuit breaker.
func UpdateSourceCircuitBreaker(source string, state int) {
	SourceCircuitBreakerStatus.WithLabelValues(source).Set(float64(state))
}

// RecordMessageSent records a message dispatch attempt.
func RecordMessageSent(messageType string) {
	MessagesSentTotal.WithLabelValues(messageType).Inc()
}

// RecordMessageDelivered records a confirmed message delivery.
func RecordMessageDelivered(messageType string) {
	MessagesDeliveredTotal.WithLabelValues(messageType).Inc()
}

// RecordMessageFailed records a message delivery failure.
func RecordMessageFailed(messageType string) {
	MessagesFailedTotal.WithLabelValues(messageType).Inc()
}

// RecordBroadcastFanout records the number of recipients of a broadcast.
func RecordBroadcastFanout(recipientCount int) {
	BroadcastFanout.Observe(float64(recipientCount))
}

// UpdateQueueDepth reports an agent's current undelivered message count.
func UpdateQueueDepth(agentID string, depth int) {
	QueueDepth.WithLabelValues(agentID).Set(float64(depth))
}

// RecordConsensusStarted records the initiation of a new consensus process.
func RecordConsensusStarted() {
	ConsensusProcessesStarted.Inc()
}

// RecordConsensusOpinion records one opinion submitted under a given algorithm.
func RecordConsensusOpinion(algorithm string) {
	ConsensusOpinionsSubmitted.WithLabelValues(algorithm).Inc()
}

// RecordConsensusDecision records a reached decision and its confidence tier.
func RecordConsensusDecision(algorithm, confidence string) {
	ConsensusDecisionsTotal.WithLabelValues(algorithm, confidence).Inc()
}

// RecordConsensusRoundTimeout records a round that transitioned to TIMEOUT.
func RecordConsensusRoundTimeout() {
	ConsensusRoundTimeoutsTotal.Inc()
}

// RecordConsensusConflict records a detected conflict and its chosen resolution strategy.
func RecordConsensusConflict(strategy string) {
	ConsensusConflictsDetected.WithLabelValues(strategy).Inc()
}

// RecordConsensusRoundDuration records how long a round stayed open.
func RecordConsensusRoundDuration(durationMs float64) {
	ConsensusRoundDuration.Observe(durationMs)
}

// RecordSimulationRun records the outcome and duration of a simulation execution.
func RecordSimulationRun(status string, durationMs float64) {
	SimulationsRunTotal.WithLabelValues(status).Inc()
	SimulationDuration.Observe(durationMs)
}

// RecordSimulationRateLimited records a simulation request rejected by the rate limiter.
func RecordSimulationRateLimited() {
	SimulationsRateLimited.Inc()
}

// UpdateActiveSimulations reports the current concurrency-slot occupancy.
func UpdateActiveSimulations(count int) {
	ActiveSimulations.Set(float64(count))
}

// RecordVaultCacheHit records a Vault secret served from cache.
func RecordVaultCacheHit() {
	vaultCacheHits.Inc()
}

// RecordVaultCacheMiss records a Vault secret not found in cache.
func RecordVaultCacheMiss() {
	vaultCacheMisses.Inc()
}

// UpdateVaultCacheSize reports the current number of cached secrets.
func UpdateVaultCacheSize(size int) {
	vaultCacheSize.Set(float64(size))
}

// RecordVaultRequest records the duration and outcome of a Vault API call.
func RecordVaultRequest(durationMs float64, err error) {
	vaultRequestDuration.Observe(durationMs)
	if err != nil {
		vaultRequestErrors.Inc()
	}
}

// UpdateDatabaseConnections reports current pool occupancy.
func UpdateDatabaseConnections(active, idle int32) {
	DatabaseConnectionsActive.Set(float64(active))
	DatabaseConnectionsIdle.Set(float64(idle))
}

// RecordDatabaseQuery records the duration of a database query.
func RecordDatabaseQuery(durationMs float64) {
	DatabaseQueryDuration.Observe(durationMs)
}

// RecordError records an error, bucketed by type and originating component.
func RecordError(errorType, component string) {
	ErrorsTotal.WithLabelValues(errorType, component).Inc()
}
