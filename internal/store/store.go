// Package store provides SQL persistence for geosync.
// It manages one JSON document table per record kind, the audit trail
// (rawchanges) and the raw data archive, on SQLite or PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/models"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a row does not exist or is not visible
var ErrNotFound = errors.New("not found")

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Store represents the database store
type Store struct {
	db      *sql.DB
	dialect dialect
}

// New opens a store. driver is "sqlite" (dsn is a file path) or "postgres".
func New(driver, dsn string) (*Store, error) {
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	switch d {
	case sqliteDialect:
		db, err = sql.Open("sqlite", dsn+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	case postgresDialect:
		db, err = sql.Open("pgx", dsn)
		if err == nil {
			db.SetMaxOpenConns(10)
			db.SetMaxIdleConns(5)
			db.SetConnMaxLifetime(30 * time.Minute)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Store{db: db, dialect: d}, nil
}

// Ping verifies the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to reach database: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the name of the SQL dialect in use
func (s *Store) Driver() string {
	return string(s.dialect)
}

// Initialize creates the tables of every record kind, the audit trail and
// the raw data archive
func (s *Store) Initialize(ctx context.Context) error {
	stmts := []string{s.dialect.rawChangesSchema(), s.dialect.rawDataSchema(), s.dialect.versionSchema()}
	for _, k := range models.Kinds {
		stmts = append(stmts, s.dialect.recordSchema(k.MustDescriptor().Table)...)
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	if err := s.setSchemaVersion(ctx, currentSchemaVersion); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}

// DB returns the underlying database connection for advanced queries
func (s *Store) DB() *sql.DB {
	return s.db
}

// Records returns record operations outside of a transaction
func (s *Store) Records() *Records {
	return &Records{q: s.db, d: s.dialect}
}

// Tx is a transaction scoped to one batch
type Tx struct {
	tx      *sql.Tx
	Records *Records
}

// Begin starts a transaction
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelDefault})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{tx: tx, Records: &Records{q: tx, d: s.dialect}}, nil
}

// Commit commits the transaction
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback aborts the transaction. Rolling back a finished transaction is a no-op.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

func checkTable(table string) error {
	if !tableName.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	return nil
}

// parseTimestamp parses a timestamp scanned from either driver
func parseTimestamp(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case []byte:
		return parseTimestampString(string(t))
	case string:
		return parseTimestampString(t)
	}
	return time.Time{}
}

func parseTimestampString(s string) time.Time {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999 -0700 MST",
		"2006-01-02 15:04:05.999999-07:00",
		"2006-01-02 15:04:05-07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05Z",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
