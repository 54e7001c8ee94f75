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
	"github.com/openreward/reward-distributor/internal/reconciler"
	"github.com/openreward/reward-distributor/internal/store"
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
	cfg, err := config.LoadReconcilerConfig(*configFile, *envPath)
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
			"service": "payout-reconciler",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting payout reconciler")

	// Connect to database
	db, err := store.Open(cfg.Database.DSN(), "")
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	dataStore := store.NewPGStore(db)

	// The reconciler re-drives real transfers, so it needs the same mover
	// selection as the API
	var mover token.Mover
	if cfg.Token.RPCURL != "" {
		ethClient, err := adapter.NewEthClientDialer().Dial(ctx, cfg.Token.RPCURL)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to dial Ethereum RPC", zap.Error(err), zap.String("rpc_url", cfg.Token.RPCURL))
		}
		defer ethClient.Close()

		mover, err = token.NewERC20Mover(ctx, ethClient, token.ERC20Config{
			TokenAddress: cfg.Token.TokenAddress,
			OperatorKey:  cfg.Token.OperatorKey,
			GasLimit:     cfg.Token.GasLimit,
		})
		if err != nil {
			logger.FatalCtx(ctx, "Failed to create ERC-20 mover", zap.Error(err))
		}
	} else {
		mover = token.NewNoopMover()
		logger.WarnCtx(ctx, "No RPC endpoint configured, transfers will be simulated")
	}

	clock := adapter.NewClock()
	distLedger := ledger.New(ledger.Config{
		PayoutTimeout: cfg.Token.PayoutTimeout,
	}, dataStore, mover, clock, messaging.NewNoopPublisher())

	rec := reconciler.New(&reconciler.Config{
		BatchSize:      cfg.Reconciler.BatchSize,
		WorkerPoolSize: cfg.Reconciler.WorkerPoolSize,
		PendingAge:     cfg.Reconciler.PendingAge,
		MaxRetries:     5,
		Interval:       cfg.Reconciler.Interval,
	}, distLedger, clock)

	errCh := make(chan error, 1)
	go func() {
		if err := rec.Start(ctx); err != nil {
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
		logger.ErrorCtx(ctx, err, zap.String("component", rec.Name()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := rec.Stop(shutdownCtx); err != nil {
		logger.ErrorCtx(shutdownCtx, err, zap.String("component", rec.Name()))
	}
	cancel()

	logger.InfoCtx(shutdownCtx, "Reconciler exited")
}
