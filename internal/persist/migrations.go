package persist

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationDir = "migrations"

func setupGoose() error {
	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	return nil
}

// SchemaVersion is the newest migration compiled into this binary.
func SchemaVersion() (int64, error) {
	if err := setupGoose(); err != nil {
		return 0, err
	}
	ms, err := goose.CollectMigrations(migrationDir, 0, goose.MaxVersion)
	if err != nil {
		return 0, fmt.Errorf("collect migrations: %w", err)
	}
	last, err := ms.Last()
	if err != nil {
		return 0, fmt.Errorf("last migration: %w", err)
	}
	return last.Version, nil
}

// RunMigrations applies the embedded checkpoint schema and returns the
// version the database ends up at. A database migrated by a newer build is
// left alone but reported, since its checkpoint rows may carry columns this
// build does not write.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, log *zap.Logger) (int64, error) {
	want, err := SchemaVersion()
	if err != nil {
		return 0, err
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	if err := goose.UpContext(ctx, db, migrationDir); err != nil {
		return 0, fmt.Errorf("run migrations: %w", err)
	}
	got, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}

	if got > want {
		log.Warn("checkpoint schema is newer than this build",
			zap.Int64("db_version", got), zap.Int64("build_version", want))
	} else {
		log.Info("checkpoint schema ready", zap.Int64("version", got))
	}
	return got, nil
}
