package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/broadcast-engine/config"
	"github.com/jwalitptl/broadcast-engine/internal/dispatch"
	"github.com/jwalitptl/broadcast-engine/internal/repository/postgres"
	"github.com/jwalitptl/broadcast-engine/internal/sender"
	"github.com/jwalitptl/broadcast-engine/pkg/logger"
	redisBroker "github.com/jwalitptl/broadcast-engine/pkg/messaging/redis"
	"github.com/jwalitptl/broadcast-engine/pkg/metrics"
	"github.com/jwalitptl/broadcast-engine/pkg/worker"
)

func setupHealthAndMetrics(port int, appLogger *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
			appLogger.Error(err, "health server failed")
			os.Exit(1)
		}
	}()
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	appLogger := logger.FromZerolog(log.Logger)

	db, err := postgres.NewDB(cfg.Database.ToPostgresConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	broker, err := redisBroker.NewRedisBroker(cfg.Redis.ToBrokerConfig(), &log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Redis broker")
	}
	defer broker.Close()

	baseRepo := postgres.NewBaseRepository(db)
	broadcastRepo := postgres.NewBroadcastRepository(baseRepo)
	connectionRepo := postgres.NewConnectionRepository(baseRepo)

	senderRegistry := sender.NewRegistry(connectionRepo, cfg.Providers.ToRegistryConfig())

	dispatchMetrics := metrics.NewMetrics("broadcast_engine", "dispatch")
	runner := dispatch.NewRunner(broadcastRepo, senderRegistry, appLogger, dispatchMetrics)

	dispatcher := worker.NewDispatcher(
		broker,
		runner,
		cfg.Dispatch.ToDispatcherConfig(),
		appLogger,
		dispatchMetrics,
	)

	setupHealthAndMetrics(cfg.Dispatch.HealthPort, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		appLogger.Info("shutdown signal received")
		cancel()
	}()

	if err := dispatcher.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("dispatcher failed")
	}

	appLogger.Info("worker exited properly")
}
