// Package postgres provides a durable result cache store backed by a
// PostgreSQL table, for deployments where cached transcriptions should
// survive restarts.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/wikimedia/wikimedia-ocr/cache/postgres/migrations"
	"github.com/wikimedia/wikimedia-ocr/engine"
)

// Storage is a cache.Store backed by PostgreSQL. Open the database through
// the pgx stdlib driver.
type Storage struct {
	db *sql.DB

	databaseName   string
	databaseSchema string
	databasePrefix string

	resultTable string
}

func New(db *sql.DB, options ...Option) *Storage {
	storage := &Storage{
		db:             db,
		databaseName:   "postgres",
		databaseSchema: "public",
		databasePrefix: "wikimedia_ocr_",
	}

	for _, option := range options {
		option(storage)
	}

	storage.resultTable = fmt.Sprintf("%s.%sresult", storage.databaseSchema, storage.databasePrefix)
	return storage
}

// Install makes sure the cache table exists. Safe to run several times.
func (s *Storage) Install(ctx context.Context) error {
	migrator, err := s.migrator()
	if err != nil {
		return err
	}
	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Join(errors.New("error while performing migration on the database"), err)
	}
	return nil
}

// UnInstall removes the cache table and the migration bookkeeping.
func (s *Storage) UnInstall(ctx context.Context) error {
	migrator, err := s.migrator()
	if err != nil {
		return err
	}
	if err := migrator.Down(); err != nil {
		return errors.Join(errors.New("error while performing down migration on the database"), err)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s.%smigrations", s.databaseSchema, s.databasePrefix)); err != nil {
		return errors.Join(errors.New("failed to drop migrations table"), err)
	}
	return nil
}

func (s *Storage) migrator() (*migrate.Migrate, error) {
	migrationFiles, err := migrations.PrepareMigrations(s.databaseSchema, s.databasePrefix)
	if err != nil {
		return nil, errors.Join(errors.New("failed to prepare migration files"), err)
	}

	driver, err := pgmigrate.WithInstance(s.db, &pgmigrate.Config{
		SchemaName:      s.databaseSchema,
		MigrationsTable: fmt.Sprintf("%smigrations", s.databasePrefix),
	})
	if err != nil {
		return nil, errors.Join(errors.New("failed to create postgres migration driver"), err)
	}

	migrationsSource, err := iofs.New(migrationFiles, ".")
	if err != nil {
		return nil, errors.Join(errors.New("failed to open postgres migrations source"), err)
	}

	migrator, err := migrate.NewWithInstance("migrations", migrationsSource, s.databaseName, driver)
	if err != nil {
		return nil, errors.Join(errors.New("failed to create migrator"), err)
	}
	return migrator, nil
}

func (s *Storage) Get(ctx context.Context, key string) (engine.Result, bool, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT result FROM "+s.resultTable+" WHERE fingerprint = $1 AND expires_at > now()",
		key,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Result{}, false, nil
	}
	if err != nil {
		return engine.Result{}, false, errors.Join(errors.New("failed to read cached result"), err)
	}

	var result engine.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return engine.Result{}, false, errors.Join(errors.New("malformed cached result"), err)
	}
	return result, true, nil
}

func (s *Storage) Set(ctx context.Context, key string, result engine.Result, ttl time.Duration) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return errors.Join(errors.New("failed to marshal result for caching"), err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO "+s.resultTable+" (fingerprint, result, expires_at) VALUES ($1, $2, $3)"+
			" ON CONFLICT (fingerprint) DO UPDATE SET result = EXCLUDED.result, expires_at = EXCLUDED.expires_at",
		key, raw, time.Now().Add(ttl),
	)
	if err != nil {
		return errors.Join(errors.New("failed to write cached result"), err)
	}
	return nil
}

// Prune deletes expired entries and returns how many were removed.
func (s *Storage) Prune(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM "+s.resultTable+" WHERE expires_at <= now()")
	if err != nil {
		return 0, errors.Join(errors.New("failed to prune expired cache entries"), err)
	}
	return result.RowsAffected()
}
