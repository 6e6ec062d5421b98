package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"forms-api/domain"
	"forms-api/infrastructure"
	"forms-api/interfaces"
)

func main() {
	cfg, err := infrastructure.LoadConfig()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := infrastructure.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	ledger, err := newLedger(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialize ledger", zap.Error(err))
	}

	blobs, closeBlobs, err := newBlobPublisher(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialize blob store", zap.Error(err))
	}
	defer closeBlobs()

	verifier := infrastructure.NewTurnstileClient(cfg.TurnstileURL, logger.Named("turnstile"))
	secrets := map[domain.Kind]string{
		domain.KindContact: cfg.ContactSecret,
		domain.KindCareer:  cfg.CareerSecret,
	}

	deps := domain.Dependencies{
		Verifier: verifier,
		Ledger:   ledger,
		Blobs:    blobs,
		Secrets:  secrets,
		LedgerIDs: map[domain.Kind]string{
			domain.KindContact: cfg.ContactSheetID,
			domain.KindCareer:  cfg.CareerSheetID,
		},
		Logger: logger.Named("pipeline"),
	}

	if cfg.RabbitMQURL != "" {
		rmq, err := infrastructure.NewRabbitMQ(cfg.RabbitMQURL, cfg.RabbitMQQueue)
		if err != nil {
			logger.Fatal("failed to connect to RabbitMQ", zap.Error(err))
		}
		defer rmq.Close()
		deps.Events = rmq
		logger.Info("publishing submission events", zap.String("queue", cfg.RabbitMQQueue))
	}

	router := interfaces.NewRouter(logger.Named("http"), cfg.AllowedOrigins)
	pipeline := domain.NewPipeline(deps)
	interfaces.NewHTTPHandler(router, &interfaces.HTTPHandler{
		Pipeline:  pipeline,
		Verifier:  verifier,
		Secrets:   secrets,
		Readiness: pipeline,
		Logger:    logger.Named("http"),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("ledger", cfg.LedgerBackend),
			zap.String("blobs", cfg.BlobBackend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, draining requests")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newLedger(ctx context.Context, cfg *infrastructure.Config) (domain.Ledger, error) {
	if cfg.LedgerBackend == infrastructure.LedgerMySQL {
		return infrastructure.NewMySQLLedger(cfg.DSN)
	}
	return infrastructure.NewSheetsLedger(ctx, cfg.ServiceAccount)
}

func newBlobPublisher(ctx context.Context, cfg *infrastructure.Config) (domain.BlobPublisher, func(), error) {
	if cfg.BlobBackend == infrastructure.BlobS3 {
		p, err := infrastructure.NewS3Publisher(ctx, cfg.S3)
		return p, func() {}, err
	}
	p, err := infrastructure.NewGCSPublisher(ctx, cfg.GCSBucket, cfg.ServiceAccount)
	if err != nil {
		return nil, nil, err
	}
	return p, func() { _ = p.Close() }, nil
}
