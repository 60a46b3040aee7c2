// Command coordinator runs the regulatory compliance coordination core:
// the Regulatory Monitor, Inter-Agent Messenger, Consensus Engine, and
// Regulatory Simulator, wired to a shared Durable Store and Prometheus
// metrics server.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/compliancefabric/coordinator/internal/clock"
	"github.com/compliancefabric/coordinator/internal/config"
	"github.com/compliancefabric/coordinator/internal/consensus"
	"github.com/compliancefabric/coordinator/internal/db"
	"github.com/compliancefabric/coordinator/internal/httpfetch"
	"github.com/compliancefabric/coordinator/internal/messenger"
	"github.com/compliancefabric/coordinator/internal/metrics"
	"github.com/compliancefabric/coordinator/internal/monitor"
	"github.com/compliancefabric/coordinator/internal/notify"
	"github.com/compliancefabric/coordinator/internal/ratelimit"
	"github.com/compliancefabric/coordinator/internal/simulator"
)

// core bundles the four coordination components against a shared
// Durable Store. Monitor and Messenger run their own background loops;
// Consensus and Simulator are request-driven and held here for
// collaborating in-process callers (the process-local test harnesses
// and, eventually, an RPC front end outside this module's scope).
type core struct {
	store     *db.DB
	monitor   *monitor.Monitor
	messenger *messenger.Messenger
	consensus *consensus.Engine
	simulator *simulator.Simulator
}

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if level, levelErr := zerolog.ParseLevel(cfg.App.LogLevel); levelErr == nil {
		zerolog.SetGlobalLevel(level)
	}

	log.Info().
		Str("name", cfg.App.Name).
		Str("version", cfg.App.Version).
		Str("environment", cfg.App.Environment).
		Msg("Starting regulatory coordination core")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, redisClient, err := build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build coordination core")
	}
	defer c.store.Close()
	if redisClient != nil {
		defer redisClient.Close()
	}

	var metricsServer *metrics.Server
	var metricsUpdater *metrics.Updater
	if cfg.Metrics.EnableMetrics {
		metricsServer = metrics.NewServer(cfg.Metrics.Port, log.Logger)
		if err := metricsServer.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start metrics server")
		}
		metricsUpdater = metrics.NewUpdater(c.store.Pool(), 15*time.Second)
		go metricsUpdater.Start(ctx)
	}

	c.monitor.Start(ctx)
	c.messenger.Start(ctx)

	log.Info().
		Int("metrics_port", cfg.Metrics.Port).
		Msg("Coordination core running")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	c.monitor.Stop()
	c.messenger.Stop()
	if metricsUpdater != nil {
		metricsUpdater.Stop()
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error shutting down metrics server")
		}
	}

	cancel()
	log.Info().Msg("Shutdown complete")
}

// build connects to the Durable Store and constructs the four
// coordination components from cfg. It returns the optional Redis
// client separately so main can defer its shutdown alongside the
// store's.
func build(ctx context.Context, cfg *config.Config) (*core, *redis.Client, error) {
	store, err := db.New(ctx)
	if err != nil {
		return nil, nil, err
	}

	notifier := buildNotifier(cfg, log.Logger)
	fetcher := httpfetch.New(httpfetch.DefaultConfig(), log.Logger)
	clk := clock.New()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetRedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var live *messenger.LiveNotifier
	if cfg.NATS.Enabled {
		live, err = messenger.NewLiveNotifier(cfg.NATS.URL, cfg.App.Name, log.Logger)
		if err != nil {
			store.Close()
			return nil, redisClient, err
		}
	}

	mon := monitor.New(store, fetcher, clk, notifier, monitor.Config{
		Interval:               cfg.Monitor.Interval(),
		MaxConsecutiveFailures: cfg.Monitor.MaxConsecutiveFailures,
	}, log.Logger)

	msgr := messenger.New(store, live, messenger.NewRegistry(), clk, messenger.Config{
		MaxRetries:           cfg.Messenger.MaxRetries,
		RetryDelay:           cfg.Messenger.RetryDelay(),
		BatchSize:            cfg.Messenger.BatchSize,
		QueueRefreshInterval: cfg.Messenger.QueueRefreshInterval(),
	}, log.Logger)

	consensusEngine := consensus.New(store, clk, log.Logger)

	limiter := ratelimit.New(
		redisClient,
		cfg.Simulator.RateLimitPerWindow,
		time.Duration(cfg.Simulator.RateLimitWindowMinutes)*time.Minute,
		log.Logger,
	)

	sim := simulator.New(store, clk, limiter, simulator.Config{
		MaxConcurrentSimulations: cfg.Simulator.MaxConcurrentSimulations,
	}, log.Logger)

	return &core{
		store:     store,
		monitor:   mon,
		messenger: msgr,
		consensus: consensusEngine,
		simulator: sim,
	}, redisClient, nil
}

// buildNotifier assembles the Notifier's sinks: a log sink is always
// present, with Telegram added when configured.
func buildNotifier(cfg *config.Config, logger zerolog.Logger) *notify.Notifier {
	sinks := []notify.Sink{notify.NewLogSink(logger)}

	if cfg.Notify.Enabled && cfg.Notify.TelegramToken != "" {
		sink, err := notify.NewTelegramSink(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID, logger)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to configure Telegram notify sink, continuing without it")
		} else {
			sinks = append(sinks, sink)
		}
	}

	return notify.New(logger, sinks...)
}
