package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/castdb/castdb/internal/config"
	"github.com/castdb/castdb/internal/fixture"
	"github.com/castdb/castdb/internal/migrations"
	"github.com/castdb/castdb/internal/observability"
	s3store "github.com/castdb/castdb/internal/storage/s3"
	"github.com/castdb/castdb/internal/store"
)

func main() {
	path := flag.String("file", "", "YAML fixture to load; defaults to CASTDB_FIXTURE_PATH, then the embedded sample")
	seedStore := flag.Bool("store", true, "insert the fixture into the SQL store")
	migrate := flag.Bool("migrate", false, "apply pending migrations before seeding")
	reset := flag.Bool("reset", false, "delete existing castings, movies and actors before seeding, and the published dataset before publishing")
	publish := flag.Bool("publish", false, "publish the fixture as Parquet to the object store")
	flag.Parse()

	cfg, err := config.LoadFromEnv("castdb-seed")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	source := *path
	if source == "" {
		source = cfg.Fixture.Path
	}
	ds, err := loadDataset(source)
	if err != nil {
		logger.Error("failed to load fixture", slog.String("path", source), slog.Any("error", err))
		os.Exit(1)
	}
	counts := ds.RowCounts()
	logger.Info("fixture loaded",
		slog.String("path", source),
		slog.Int("actors", counts[fixture.TableActors]),
		slog.Int("movies", counts[fixture.TableMovies]),
		slog.Int("castings", counts[fixture.TableCastings]),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if *seedStore {
		if err := seedSQLStore(ctx, cfg, ds, *migrate, *reset, logger); err != nil {
			logger.Error("failed to seed store", slog.Any("error", err))
			os.Exit(1)
		}
	}

	if *publish {
		if !cfg.ObjectStore.Enabled {
			logger.Error("-publish requires CASTDB_OBJECTSTORE_ENABLED=true")
			os.Exit(1)
		}
		objectStore, err := s3store.New(ctx, s3store.Config{
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
		if *reset {
			deleted, err := fixture.Unpublish(ctx, objectStore, cfg.Fixture.Dataset)
			if err != nil {
				logger.Error("failed to unpublish fixture", slog.Any("error", err))
				os.Exit(1)
			}
			logger.Info("fixture unpublished", slog.String("dataset", cfg.Fixture.Dataset), slog.Any("keys", deleted))
		}
		infos, err := fixture.Publish(ctx, objectStore, cfg.Fixture.Dataset, ds)
		if err != nil {
			logger.Error("failed to publish fixture", slog.Any("error", err))
			os.Exit(1)
		}
		for _, info := range infos {
			logger.Info("fixture file published", slog.String("key", info.Key), slog.Int64("size", info.Size))
		}
	}
}

func loadDataset(path string) (fixture.Dataset, error) {
	if path == "" {
		return fixture.Sample(), nil
	}
	file, err := os.Open(path)
	if err != nil {
		return fixture.Dataset{}, err
	}
	defer func() { _ = file.Close() }()
	return fixture.LoadYAML(file)
}

func seedSQLStore(ctx context.Context, cfg config.Config, ds fixture.Dataset, migrate, reset bool, logger *slog.Logger) error {
	dialect, err := store.DialectFor(cfg.Store.Driver)
	if err != nil {
		return err
	}
	db, err := store.Open(ctx, store.DBConfig{Driver: cfg.Store.Driver, DSN: cfg.Store.DSN})
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if migrate {
		applied, err := migrations.NewRunner(dialect).Up(ctx, db, 0)
		if err != nil {
			return err
		}
		logger.Info("migrations applied", slog.Int("count", applied))
	}
	if reset {
		if err := fixture.Reset(ctx, db); err != nil {
			return err
		}
		logger.Info("store reset")
	}
	if err := fixture.Seed(ctx, db, dialect, ds); err != nil {
		return err
	}
	logger.Info("store seeded", slog.String("driver", cfg.Store.Driver))
	return nil
}
