// Package sqlite implements the domain repositories on an embedded SQLite
// database, for single-machine installs that have no PostgreSQL server.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"liveauth/internal/adapter/sqlite/migrations"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// DB wraps a *sql.DB and implements domain repository interfaces.
type DB struct {
	sql *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at dsn and applies pending
// migrations. Use ":memory:" for a throwaway database.
func Open(ctx context.Context, dsn string, log *zap.Logger) (*DB, error) {
	s, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers; one connection also keeps ":memory:"
	// databases alive across queries.
	s.SetMaxOpenConns(1)

	if _, err := s.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := RunMigrations(ctx, s, log); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &DB{sql: s, now: time.Now}, nil
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(gooseLogger{log.Sugar()})
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.sql.Close()
}

type gooseLogger struct {
	s *zap.SugaredLogger
}

func (l gooseLogger) Printf(format string, v ...any) { l.s.Infof(format, v...) }
func (l gooseLogger) Fatalf(format string, v ...any) { l.s.Fatalf(format, v...) }
