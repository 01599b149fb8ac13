package datastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/etruckzm/etruck-go/libs/logging"
	"github.com/getsentry/sentry-go"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	// needed for magic migration
	_ "github.com/golang-migrate/migrate/v4/source/file"
	// postgres driver
	_ "github.com/lib/pq"
)

// CurrentMigrationVersion holds the default migration version
var CurrentMigrationVersion = uint(3)

// Datastore holds generic methods
type Datastore interface {
	RawDB() *sqlx.DB
	NewMigrate() (*migrate.Migrate, error)
	Migrate(ctx context.Context, versions ...uint) error
	RollbackTxAndHandle(tx *sqlx.Tx) error
	RollbackTx(tx *sqlx.Tx)
	BeginTx() (*sqlx.Tx, error)
	Ping(ctx context.Context) error
}

// Config describes how to reach and prepare the database
type Config struct {
	URL           string
	MigrationsURL string
	MaxOpenConns  int
	Migrate       bool
	// StatsName labels the sql.DBStats collector, empty disables it
	StatsName string
}

// Postgres is a Datastore wrapper around a postgres database
type Postgres struct {
	*sqlx.DB
	migrationsURL string
}

// RawDB - get the raw db
func (pg *Postgres) RawDB() *sqlx.DB {
	return pg.DB
}

// NewMigrate creates a Migrate instance given a Postgres instance with an active database connection
func (pg *Postgres) NewMigrate() (*migrate.Migrate, error) {
	if pg.migrationsURL == "" {
		return nil, errors.New("no migrations url configured")
	}

	driver, err := postgres.WithInstance(pg.RawDB().DB, &postgres.Config{})
	if err != nil {
		return nil, err
	}

	return migrate.NewWithDatabaseInstance(pg.migrationsURL, "postgres", driver)
}

// Migrate the Postgres instance
func (pg *Postgres) Migrate(ctx context.Context, versions ...uint) error {
	logger := logging.Logger(ctx, "datastore.Migrate")

	logger.Info().Msg("attempting database migration")

	m, err := pg.NewMigrate()
	if err != nil {
		logger.Error().Err(err).Msg("failed to create a new migration")
		return err
	}

	activeMigrationVersion, dirty, err := m.Version()

	currentMigrationVersion := CurrentMigrationVersion
	if len(versions) > 0 {
		currentMigrationVersion = versions[0]
	}

	subLogger := logger.With().
		Bool("dirty", dirty).
		Int("db_version", int(activeMigrationVersion)).
		Uint("code_version", currentMigrationVersion).
		Logger()

	subLogger.Info().Msg("database status")

	if !errors.Is(err, migrate.ErrNilVersion) && err != nil {
		subLogger.Error().Err(err).Msg("failed to get migration version")
		sentry.CaptureMessage(err.Error())
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if currentMigrationVersion < activeMigrationVersion || dirty {
		subLogger.Error().Msg("migration not attempted")
		sentry.CaptureMessage(
			fmt.Sprintf("migration not attempted, dirty: %t; code version: %d; db version: %d",
				dirty, currentMigrationVersion, activeMigrationVersion))
		return nil
	}

	err = m.Migrate(currentMigrationVersion)
	if !errors.Is(err, migrate.ErrNoChange) && err != nil {
		subLogger.Error().Err(err).Msg("migration failed")
		return err
	}

	return nil
}

// NewPostgres creates a new Postgres Datastore
func NewPostgres(ctx context.Context, cfg Config) (*Postgres, error) {
	if cfg.URL == "" {
		return nil, errors.New("no database url configured")
	}

	db, err := sqlx.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}

	if cfg.StatsName != "" {
		collector := collectors.NewDBStatsCollector(db.DB, cfg.StatsName)
		if err := prometheus.Register(collector); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return nil, fmt.Errorf("failed to register db stats: %w", err)
			}
		}
	}

	// if we have a connection longer than 5 minutes, kill it
	db.SetConnMaxLifetime(5 * time.Minute)

	maxOpenConns := cfg.MaxOpenConns
	if maxOpenConns <= 0 {
		maxOpenConns = 20
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns / 2)

	pg := &Postgres{DB: db, migrationsURL: cfg.MigrationsURL}

	if cfg.Migrate {
		if err := pg.Migrate(ctx); err != nil {
			return nil, err
		}
	}

	return pg, nil
}

// Ping checks the database is reachable
func (pg *Postgres) Ping(ctx context.Context) error {
	return pg.RawDB().PingContext(ctx)
}
