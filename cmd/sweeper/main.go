package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/openreward/reward-distributor/internal/adapter"
	"github.com/openreward/reward-distributor/internal/config"
	"github.com/openreward/reward-distributor/internal/ledger"
	"github.com/openreward/reward-distributor/internal/logger"
	"github.com/openreward/reward-distributor/internal/messaging"
	"github.com/openreward/reward-distributor/internal/providers/jetstream"
	"github.com/openreward/reward-distributor/internal/store"
	"github.com/openreward/reward-distributor/internal/sweeper"
	"github.com/openreward/reward-distributor/internal/token"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadSweeperConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:     cfg.Debug,
		SentryDSN: cfg.SentryDSN,
		Tags: map[string]string{
			"service": "distribution-sweeper",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting distribution sweeper")

	// Connect to database
	db, err := store.Open(cfg.Database.DSN(), "")
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	dataStore := store.NewPGStore(db)

	// The sweeper never moves tokens; swept remainders return to the issuer
	// pool, so the local mover suffices
	mover := token.NewNoopMover()

	// Connect the event publisher; sweeps still emit events
	var publisher messaging.Publisher
	if cfg.NATS.URL != "" {
		publisher, err = jetstream.NewPublisher(jetstream.Config{
			URL:            cfg.NATS.URL,
			StreamName:     cfg.NATS.StreamName,
			MaxReconnects:  cfg.NATS.MaxReconnects,
			ReconnectWait:  cfg.NATS.ReconnectWait,
			ConnectionName: cfg.NATS.ConnectionName,
		}, adapter.NewNatsJetStream(), adapter.NewJSON())
		if err != nil {
			logger.FatalCtx(ctx, "Failed to connect to NATS", zap.Error(err), zap.String("url", cfg.NATS.URL))
		}
	} else {
		publisher = messaging.NewNoopPublisher()
		logger.WarnCtx(ctx, "NATS not configured, entitlement events will be dropped")
	}
	defer publisher.Close()

	clock := adapter.NewClock()
	distLedger := ledger.New(ledger.Config{
		LockWait:      cfg.Ledger.LockTimeout,
		PayoutTimeout: cfg.Token.PayoutTimeout,
	}, dataStore, mover, clock, publisher)

	sw := sweeper.NewDistributionSweeper(&sweeper.DistributionSweeperConfig{
		BatchSize: cfg.Sweeper.BatchSize,
		Interval:  cfg.Sweeper.Interval,
	}, distLedger, clock)

	errCh := make(chan error, 1)
	go func() {
		if err := sw.Start(ctx); err != nil {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.ErrorCtx(ctx, err, zap.String("component", sw.Name()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := sw.Stop(shutdownCtx); err != nil {
		logger.ErrorCtx(shutdownCtx, err, zap.String("component", sw.Name()))
	}
	cancel()

	logger.InfoCtx(shutdownCtx, "Sweeper exited")
}
