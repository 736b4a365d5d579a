package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	httpapi "github.com/lecture-hub/lecture-hub/internal/api/http"
	appAudit "github.com/lecture-hub/lecture-hub/internal/application/audit"
	appIdentity "github.com/lecture-hub/lecture-hub/internal/application/identity"
	"github.com/lecture-hub/lecture-hub/internal/application/live"
	"github.com/lecture-hub/lecture-hub/internal/config"
	"github.com/lecture-hub/lecture-hub/internal/infrastructure/kafka"
	"github.com/lecture-hub/lecture-hub/internal/infrastructure/postgres"
	"github.com/lecture-hub/lecture-hub/internal/infrastructure/ws"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{
		MaxConns:        cfg.DatabaseMaxConns,
		MinConns:        cfg.DatabaseMinConns,
		MaxConnIdleTime: cfg.DatabaseIdleTime,
	})
	if err != nil {
		log.Fatalf("db error: %v", err)
	}
	defer pool.Close()

	// repositories
	sessionRepo := postgres.NewSessionRepository(pool)
	participantRepo := postgres.NewParticipantRepository(pool)
	controlRepo := postgres.NewControlRepository(pool)
	curriculumReader := postgres.NewCurriculumReader(pool)

	// infrastructure
	hub := ws.NewHub(logger)

	var publisher appAudit.Publisher
	var producer *kafka.Producer
	if cfg.KafkaEnabled {
		producer, err = kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			logger.Error().Err(err).Msg("kafka unavailable, control records stay local")
		} else {
			publisher = producer
			defer producer.Close()
		}
	}

	// services
	auditSvc := appAudit.NewService(controlRepo, publisher, logger)
	resolver := appIdentity.NewResolver(cfg.JWTSecret, cfg.AllowAnonymous, logger)
	registry := live.NewRegistry(logger)
	liveSvc := live.NewService(sessionRepo, participantRepo, curriculumReader, auditSvc, hub, registry, logger)

	// API server
	apiServer := httpapi.NewServer(liveSvc, auditSvc, resolver, hub, logger)

	httpServer := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     apiServer.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
	hub.Stop()
	registry.Close()
	logger.Info().Msg("shutdown complete")
}
