// Package httpfetch implements the HTTP Fetcher external collaborator:
// a single Get operation with retry and per-host pacing, following the
// exponential-backoff shape the reference codebase uses for exchange
// calls.
package httpfetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/compliancefabric/coordinator/internal/breaker"
)

// errCircuitOpen signals that the fetch circuit breaker tripped; Get
// surfaces it as a failed Result instead of burning retries against a
// source that's already known to be down.
var errCircuitOpen = errors.New("source fetch circuit breaker is open")

// Result is the outcome of one fetch attempt.
type Result struct {
	Success bool
	Body    []byte
	Status  int
	Error   string
}

// Fetcher issues HTTP GETs on behalf of the Regulatory Monitor.
type Fetcher struct {
	client         *http.Client
	log            zerolog.Logger
	limiters       map[string]*rate.Limiter
	rps            rate.Limit
	burst          int
	cfg            Config
	circuitBreaker *breaker.Manager
}

// Config controls fetch pacing and retry behavior.
type Config struct {
	Timeout           time.Duration
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffFactor     float64
	RequestsPerSecond float64
	Burst             int
}

func DefaultConfig() Config {
	return Config{
		Timeout:           15 * time.Second,
		MaxRetries:        3,
		InitialBackoff:    200 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffFactor:     2.0,
		RequestsPerSecond: 1,
		Burst:             2,
	}
}

func New(cfg Config, log zerolog.Logger) *Fetcher {
	return &Fetcher{
		client:         &http.Client{Timeout: cfg.Timeout},
		log:            log.With().Str("component", "http_fetcher").Logger(),
		limiters:       make(map[string]*rate.Limiter),
		rps:            rate.Limit(cfg.RequestsPerSecond),
		burst:          cfg.Burst,
		cfg:            cfg,
		circuitBreaker: breaker.NewManager(),
	}
}

func (f *Fetcher) limiterFor(host string) *rate.Limiter {
	if l, ok := f.limiters[host]; ok {
		return l
	}
	l := rate.NewLimiter(f.rps, f.burst)
	f.limiters[host] = l
	return l
}

// do issues req through the fetch circuit breaker, which trips on
// repeated transient failures across all polled sources.
func (f *Fetcher) do(req *http.Request) (*http.Response, error) {
	result, err := f.circuitBreaker.Fetch().Execute(func() (interface{}, error) {
		return f.client.Do(req)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			f.circuitBreaker.Metrics().RecordRequest("fetch", false)
			return nil, errCircuitOpen
		}
		f.circuitBreaker.Metrics().RecordRequest("fetch", false)
		return nil, err
	}

	f.circuitBreaker.Metrics().RecordRequest("fetch", true)
	return result.(*http.Response), nil
}

// Get fetches url, pacing requests per-host and retrying transient
// failures with exponential backoff. It never returns an error: failures
// are reported via Result.Success/Error so the Monitor can treat them as
// a consecutive-failure count rather than an exception.
func (f *Fetcher) Get(ctx context.Context, url string) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}

	limiter := f.limiterFor(req.URL.Host)

	backoff := f.cfg.InitialBackoff
	var lastErr error
	var lastStatus int
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return Result{Success: false, Error: err.Error()}
		}

		resp, err := f.do(req)
		if err != nil {
			lastErr = err
			lastStatus = 0
			if errors.Is(err, errCircuitOpen) {
				f.log.Warn().Str("url", url).Msg("fetch circuit breaker open, failing fast")
				return Result{Success: false, Error: err.Error()}
			}
			f.log.Warn().Err(err).Str("url", url).Int("attempt", attempt+1).Msg("fetch failed, retrying")
		} else {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				lastErr = readErr
			} else if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return Result{Success: true, Body: body, Status: resp.StatusCode}
			} else if resp.StatusCode >= 500 {
				lastErr = errors.New(resp.Status)
				lastStatus = resp.StatusCode
			} else {
				lastErr = nil
				return Result{Success: false, Status: resp.StatusCode, Body: body, Error: resp.Status}
			}
		}

		if attempt == f.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return Result{Success: false, Error: ctx.Err().Error()}
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * f.cfg.BackoffFactor)
		if backoff > f.cfg.MaxBackoff {
			backoff = f.cfg.MaxBackoff
		}
	}

	errMsg := "fetch failed after retries"
	if lastErr != nil {
		errMsg = lastErr.Error()
	}
	return Result{Success: false, Status: lastStatus, Error: errMsg}
}
