// Package main is the entry point for the point-of-sale terminal service.
//
// The terminal serves the local checkout API, reserves invoice numbers against
// the shared PostgreSQL sale store and queues sales while that store is unreachable.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"possync/internal/config"
	appctx "possync/internal/core/context"
	"possync/internal/domain/checkout"
	"possync/internal/domain/duplicate"
	"possync/internal/domain/offline"
	"possync/internal/domain/sequence"
	"possync/internal/infrastructure/connectivity"
	v1 "possync/internal/infrastructure/http/v1"
	"possync/internal/infrastructure/storage/local"
	"possync/internal/infrastructure/storage/postgres"
	"possync/internal/infrastructure/storage/postgres/migrations"
	"possync/internal/infrastructure/storage/postgres/sale_repo"
	"possync/pkg/logger"
)

func main() {
	configFile := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Printf("failed to read .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.NewConfig(*configFile)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		Fields:      map[string]any{"service": "possync-terminal"},
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = appctx.EnsureTrace(ctx)

	identity := cfg.Terminal.Identity()
	log.Infow("starting possync terminal",
		"company_id", identity.CompanyID,
		"store_id", identity.StoreID,
		"terminal_id", identity.TerminalID,
	)

	if cfg.Postgres.AutoMigrate {
		if err := migrations.Up(cfg.Postgres.URL()); err != nil {
			log.Warnw("schema migration skipped", "error", err)
		}
	}

	// --- Remote sale store ---
	pool, err := postgres.NewPool(ctx, cfg.Postgres.PoolConfig())
	if err != nil {
		log.Fatalw("failed to configure database pool", "error", err)
	}
	defer pool.Close()

	repo := sale_repo.New(postgres.NewTxManager(pool))

	// --- Local durable state ---
	store, err := local.NewOSFileStore(cfg.Storage.Dir)
	if err != nil {
		log.Fatalw("failed to open local storage", "dir", cfg.Storage.Dir, "error", err)
	}

	// --- Services ---
	oracle := sequence.NewOracle(repo)
	seq := sequence.NewService(sequence.NewCache(store), oracle, cfg.Sequence.ServiceConfig())

	dupCfg, err := cfg.Duplicate.DetectorConfig()
	if err != nil {
		log.Fatalw("invalid duplicate detection config", "error", err)
	}
	detector := duplicate.NewDetector(repo, dupCfg)

	queue := offline.NewQueue(store, oracle, repo, repo)

	orch := checkout.New(checkout.Deps{
		Reservations: seq,
		Duplicates:   detector,
		Processor:    repo,
		Assigner:     repo,
		Queue:        queue,
		Stock:        repo,
	}, checkout.Config{CompensationTimeout: cfg.Checkout.CompensationTimeout})

	state := seq.Sync(ctx, identity.CompanyID, false)
	log.Infow("invoice sequence ready", "last_sequence", state.LastSequence)

	// --- Background workers ---
	monitor := connectivity.NewMonitor(pool, cfg.Connectivity.MonitorConfig())
	monitor.Subscribe(func(online bool) {
		if online {
			seq.Sync(ctx, identity.CompanyID, true)
		}
	})
	monitor.Start(ctx)
	defer monitor.Stop()

	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		queue.Watch(ctx, monitor)
	}()

	listener := postgres.NewListener(pool, postgres.InvoiceAssignedChannel)
	listener.OnNotify(func(ctx context.Context, companyID string) {
		if companyID == identity.CompanyID {
			seq.Sync(ctx, companyID, true)
		}
	})
	listener.Start(ctx)
	defer listener.Stop()

	// --- HTTP Server ---
	router := v1.NewRouter(v1.RouterConfig{
		Terminal:     identity,
		Pool:         pool.Pool,
		Logger:       log,
		Connectivity: monitor,
		Checkout:     orch,
		Queue:        queue,
		Sequence:     seq,
	})

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "address", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down terminal...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}
	<-watchDone
	postgres.LogPoolStats(shutdownCtx, pool.Pool)

	log.Info("terminal stopped")
}
