// Package breaker provides circuit-breaker protection for the Durable
// Store and for outbound regulatory-source fetches.
package breaker

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

// Circuit breaker states for Prometheus metrics
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"

	// Metric result labels
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Circuit breaker thresholds - configurable per call path
const (
	// Store circuit breaker settings (Durable Store round trips)
	StoreMinRequests     = 10
	StoreFailureRatio    = 0.6
	StoreOpenTimeout     = 15 * time.Second
	StoreHalfOpenMaxReqs = 5
	StoreCountInterval   = 10 * time.Second

	// Fetch circuit breaker settings (regulatory-source HTTP GETs)
	FetchMinRequests     = 5
	FetchFailureRatio    = 0.6
	FetchOpenTimeout     = 30 * time.Second
	FetchHalfOpenMaxReqs = 3
	FetchCountInterval   = 10 * time.Second
)

// Manager holds the two circuit breakers this module needs: one guarding
// the Durable Store, one guarding outbound source fetches.
type Manager struct {
	store   *gobreaker.CircuitBreaker
	fetch   *gobreaker.CircuitBreaker
	metrics *Metrics
}

// Metrics holds Prometheus metrics for circuit breakers.
type Metrics struct {
	state    *prometheus.GaugeVec
	requests *prometheus.CounterVec
	failures *prometheus.CounterVec
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

func initMetrics() {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			state: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "circuit_breaker_state",
					Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
				},
				[]string{"service"},
			),
			requests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "circuit_breaker_requests_total",
					Help: "Total number of requests through circuit breaker",
				},
				[]string{"service", "result"},
			),
			failures: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "circuit_breaker_failures_total",
					Help: "Total number of failures tracked by circuit breaker",
				},
				[]string{"service"},
			),
		}
	})
}

// Settings holds circuit breaker configuration for a single call path.
type Settings struct {
	MinRequests     uint32
	FailureRatio    float64
	OpenTimeout     time.Duration
	HalfOpenMaxReqs uint32
	CountInterval   time.Duration
}

// ParseDuration parses a duration string, falling back to defaultValue.
func ParseDuration(durationStr string, defaultValue time.Duration) time.Duration {
	if durationStr == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(durationStr)
	if err != nil {
		return defaultValue
	}
	return duration
}

// NewManager creates a circuit breaker manager with default settings.
func NewManager() *Manager {
	return NewManagerWithSettings(nil, nil)
}

// NewManagerWithSettings creates a manager with Prometheus metrics wired
// in. Nil settings fall back to the package defaults.
func NewManagerWithSettings(storeSettings, fetchSettings *Settings) *Manager {
	initMetrics()
	metrics := globalMetrics

	manager := &Manager{metrics: metrics}

	if storeSettings == nil {
		storeSettings = &Settings{
			MinRequests:     StoreMinRequests,
			FailureRatio:    StoreFailureRatio,
			OpenTimeout:     StoreOpenTimeout,
			HalfOpenMaxReqs: StoreHalfOpenMaxReqs,
			CountInterval:   StoreCountInterval,
		}
	}
	if fetchSettings == nil {
		fetchSettings = &Settings{
			MinRequests:     FetchMinRequests,
			FailureRatio:    FetchFailureRatio,
			OpenTimeout:     FetchOpenTimeout,
			HalfOpenMaxReqs: FetchHalfOpenMaxReqs,
			CountInterval:   FetchCountInterval,
		}
	}

	manager.store = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "store",
		MaxRequests: storeSettings.HalfOpenMaxReqs,
		Interval:    storeSettings.CountInterval,
		Timeout:     storeSettings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= storeSettings.MinRequests && failureRatio >= storeSettings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			manager.updateMetrics("store", to)
		},
	})

	manager.fetch = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "fetch",
		MaxRequests: fetchSettings.HalfOpenMaxReqs,
		Interval:    fetchSettings.CountInterval,
		Timeout:     fetchSettings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= fetchSettings.MinRequests && failureRatio >= fetchSettings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			manager.updateMetrics("fetch", to)
		},
	})

	manager.updateMetrics("store", manager.store.State())
	manager.updateMetrics("fetch", manager.fetch.State())

	return manager
}

// NewPassthroughManager creates a manager whose breakers never trip, for
// tests that exercise other components without interference.
func NewPassthroughManager() *Manager {
	initMetrics()
	metrics := globalMetrics

	manager := &Manager{metrics: metrics}

	neverTrip := func(counts gobreaker.Counts) bool { return false }

	manager.store = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "store_passthrough",
		MaxRequests: 1000,
		Timeout:     time.Millisecond,
		ReadyToTrip: neverTrip,
	})

	manager.fetch = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "fetch_passthrough",
		MaxRequests: 1000,
		Timeout:     time.Millisecond,
		ReadyToTrip: neverTrip,
	})

	return manager
}

// Store returns the Durable Store circuit breaker.
func (m *Manager) Store() *gobreaker.CircuitBreaker { return m.store }

// Fetch returns the source-fetch circuit breaker.
func (m *Manager) Fetch() *gobreaker.CircuitBreaker { return m.fetch }

func (m *Manager) updateMetrics(service string, state gobreaker.State) {
	var stateValue float64
	switch state {
	case gobreaker.StateClosed:
		stateValue = 0
	case gobreaker.StateOpen:
		stateValue = 1
	case gobreaker.StateHalfOpen:
		stateValue = 2
	}
	m.metrics.state.WithLabelValues(service).Set(stateValue)
}

// RecordRequest records a request result for metrics.
func (m *Metrics) RecordRequest(service string, success bool) {
	result := ResultSuccess
	if !success {
		result = ResultFailure
		m.failures.WithLabelValues(service).Inc()
	}
	m.requests.WithLabelValues(service, result).Inc()
}

// Metrics returns the metrics instance for manual recording.
func (m *Manager) Metrics() *Metrics { return m.metrics }
