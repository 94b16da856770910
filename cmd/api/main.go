package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/broadcast-engine/config"
	broadcastHandler "github.com/jwalitptl/broadcast-engine/internal/handler/broadcast"
	healthHandler "github.com/jwalitptl/broadcast-engine/internal/handler/health"
	"github.com/jwalitptl/broadcast-engine/internal/middleware"
	"github.com/jwalitptl/broadcast-engine/internal/repository/postgres"
	"github.com/jwalitptl/broadcast-engine/internal/router"
	broadcastService "github.com/jwalitptl/broadcast-engine/internal/service/broadcast"
	"github.com/jwalitptl/broadcast-engine/pkg/auth"
	"github.com/jwalitptl/broadcast-engine/pkg/logger"
	redisBroker "github.com/jwalitptl/broadcast-engine/pkg/messaging/redis"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
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
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer broker.Close()

	baseRepo := postgres.NewBaseRepository(db)
	broadcastRepo := postgres.NewBroadcastRepository(baseRepo)
	connectionRepo := postgres.NewConnectionRepository(baseRepo)

	broadcastSvc := broadcastService.NewService(
		broadcastRepo,
		connectionRepo,
		broker,
		cfg.Dispatch.Queue,
		cfg.Dispatch.ToDefaults(),
		appLogger,
	)

	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
	authMiddleware := middleware.NewAuthMiddleware(jwtSvc)

	routerConfig := router.Config{}
	if cfg.RateLimit.Enabled {
		routerConfig.RateLimit = rate.Limit(cfg.RateLimit.RequestsPerSecond)
		routerConfig.RateBurst = cfg.RateLimit.Burst
	}

	r := router.NewRouter(
		authMiddleware,
		broadcastHandler.NewHandler(broadcastSvc),
		healthHandler.NewHandler(db),
		routerConfig,
		&log.Logger,
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Server.Port).Msg("api server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
