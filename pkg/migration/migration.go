package migration

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
)

// Config содержит настройки миграций схемы.
type Config struct {
	// MigrationsPath - путь к каталогу миграций внутри MigrationsFS.
	MigrationsPath string
	// MigrationsFS - файловая система с миграциями (обычно embed.FS).
	MigrationsFS fs.FS
}

// Migrator применяет SQL-миграции к базе поверх существующего пула.
type Migrator struct {
	config Config
	pool   *pgxpool.Pool
}

// NewMigrator создаёт Migrator.
func NewMigrator(config Config, pool *pgxpool.Pool) *Migrator {
	return &Migrator{config: config, pool: pool}
}

// Up применяет все недостающие миграции.
func (m *Migrator) Up(ctx context.Context) error {
	migrator, err := m.createMigrator(ctx)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer migrator.Close()

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	log.Info().Msg("database migrations applied successfully")
	return nil
}

// Down откатывает все миграции.
func (m *Migrator) Down(ctx context.Context) error {
	migrator, err := m.createMigrator(ctx)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer migrator.Close()

	if err := migrator.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to rollback migrations: %w", err)
	}

	log.Info().Msg("database migrations rolled back successfully")
	return nil
}

// Version возвращает текущую версию схемы и флаг dirty.
func (m *Migrator) Version(ctx context.Context) (uint, bool, error) {
	migrator, err := m.createMigrator(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create migrator: %w", err)
	}
	defer migrator.Close()

	version, dirty, err := migrator.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

func (m *Migrator) createMigrator(ctx context.Context) (*migrate.Migrate, error) {
	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	db := stdlib.OpenDBFromPool(m.pool)

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable:       "schema_migrations",
		MigrationsTableQuoted: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	source, err := iofs.New(m.config.MigrationsFS, m.config.MigrationsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	migrator.LockTimeout = 30 * time.Second
	return migrator, nil
}
