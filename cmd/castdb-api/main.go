package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/castdb/castdb/internal/api"
	"github.com/castdb/castdb/internal/auth"
	"github.com/castdb/castdb/internal/config"
	"github.com/castdb/castdb/internal/maintenance"
	"github.com/castdb/castdb/internal/movies"
	"github.com/castdb/castdb/internal/observability"
	"github.com/castdb/castdb/internal/query"
	duckdbengine "github.com/castdb/castdb/internal/query/duckdb"
	"github.com/castdb/castdb/internal/query/sqldb"
	"github.com/castdb/castdb/internal/storage"
	s3store "github.com/castdb/castdb/internal/storage/s3"
	"github.com/castdb/castdb/internal/store"
)

func main() {
	cfg, err := config.LoadFromEnv("castdb-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	var objectStore storage.ObjectStore
	if cfg.ObjectStore.Enabled {
		objectStore, err = s3store.New(context.Background(), s3store.Config{
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
	}

	var (
		db            *sql.DB
		runner        query.Runner
		adhocRunner   query.Runner
		fixtureRunner query.Runner
	)
	if objectStore != nil {
		engine := duckdbengine.NewEngine(objectStore, cfg.Fixture.Dataset)
		engine.Timeout = cfg.Store.QueryTimeout
		fixtureRunner = engine
	}

	switch cfg.Store.Engine {
	case config.EngineParquet:
		runner = fixtureRunner
		adhocRunner = fixtureRunner
	default:
		db, err = store.Open(context.Background(), store.DBConfig{
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
		sqlRunner := sqldb.NewRunner(db, dialect)
		sqlRunner.Timeout = cfg.Store.QueryTimeout
		runner = sqlRunner

		readOnlyRunner := sqldb.NewReadOnlyRunner(db, dialect)
		readOnlyRunner.Timeout = cfg.Store.QueryTimeout
		adhocRunner = readOnlyRunner
	}

	maintenanceService := &maintenance.Service{
		Runner:      runner,
		ObjectStore: objectStore,
		Dataset:     cfg.Fixture.Dataset,
		Config: maintenance.Config{
			IntegrityInterval: cfg.Maintenance.IntegrityInterval,
		},
		Logger: logger,
	}
	if cfg.Store.Engine != config.EngineParquet {
		maintenanceService.FixtureRunner = fixtureRunner
	}

	var readiness []api.ReadinessCheck
	readiness = append(readiness, api.CheckStoreConfig(cfg), api.CheckObjectStoreConfig(cfg))
	if db != nil {
		readiness = append(readiness, api.PingStore(db))
	}

	deps := api.Dependencies{
		Logger:            logger,
		Runner:            adhocRunner,
		Exercises:         movies.New(runner, logger),
		Maintenance:       maintenanceService,
		Readiness:         api.CombineReadinessChecks(readiness...),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Maintenance.IntegrityInterval > 0 {
		go func() {
			logger.Info("integrity checker started", slog.Duration("interval", cfg.Maintenance.IntegrityInterval))
			if err := maintenanceService.Run(ctx); err != nil {
				logger.Error("integrity checker failed", slog.Any("error", err))
			}
		}()
	}

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("engine", cfg.Store.Engine),
			slog.String("driver", cfg.Store.Driver),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
