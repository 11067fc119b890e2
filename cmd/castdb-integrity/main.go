package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/castdb/castdb/internal/config"
	"github.com/castdb/castdb/internal/maintenance"
	"github.com/castdb/castdb/internal/observability"
	duckdbengine "github.com/castdb/castdb/internal/query/duckdb"
	"github.com/castdb/castdb/internal/query/sqldb"
	s3store "github.com/castdb/castdb/internal/storage/s3"
	"github.com/castdb/castdb/internal/store"
)

func main() {
	cfg, err := config.LoadFromEnv("castdb-integrity")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	if cfg.Maintenance.IntegrityInterval <= 0 {
		logger.Error("CASTDB_INTEGRITY_INTERVAL must be > 0 for the integrity worker")
		os.Exit(1)
	}

	svc := &maintenance.Service{
		Dataset: cfg.Fixture.Dataset,
		Config: maintenance.Config{
			IntegrityInterval: cfg.Maintenance.IntegrityInterval,
		},
		Logger: logger,
	}

	if cfg.Store.Engine == config.EngineSQL {
		db, err := store.Open(context.Background(), store.DBConfig{
			Driver:          cfg.Store.Driver,
			DSN:             cfg.Store.DSN,
			MaxOpenConns:    cfg.Store.MaxOpenConns,
			MaxIdleConns:    cfg.Store.MaxIdleConns,
			ConnMaxIdleTime: cfg.Store.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
		})
		if err != nil {
			logger.Error("failed to open store", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()

		dialect, err := store.DialectFor(cfg.Store.Driver)
		if err != nil {
			logger.Error("unsupported store driver", slog.Any("error", err))
			os.Exit(1)
		}
		runner := sqldb.NewRunner(db, dialect)
		runner.Timeout = cfg.Store.QueryTimeout
		svc.Runner = runner
	}

	if cfg.ObjectStore.Enabled {
		objectStore, err := s3store.New(context.Background(), s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		engine := duckdbengine.NewEngine(objectStore, cfg.Fixture.Dataset)
		engine.Timeout = cfg.Store.QueryTimeout
		svc.ObjectStore = objectStore
		svc.FixtureRunner = engine
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("integrity worker started", slog.Duration("interval", cfg.Maintenance.IntegrityInterval))
	if err := svc.Run(ctx); err != nil {
		logger.Error("integrity worker failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("integrity worker stopped")
}
