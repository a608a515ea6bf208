package store

import (
	"context"
	"fmt"

	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/models"
)

const currentSchemaVersion = 2

// RunMigrations applies any pending database migrations
func (s *Store) RunMigrations(ctx context.Context) error {
	version, err := s.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	if version < 2 {
		if err := s.migrateToV2(ctx); err != nil {
			return fmt.Errorf("migration to v2 failed: %w", err)
		}
	}

	return nil
}

// EnsureSchema migrates an existing database and creates whatever is
// missing
func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.RunMigrations(ctx); err != nil {
		return err
	}
	return s.Initialize(ctx)
}

// getSchemaVersion returns the current schema version, 1 if not set
func (s *Store) getSchemaVersion(ctx context.Context) (int, error) {
	if _, err := s.db.ExecContext(ctx, s.dialect.versionSchema()); err != nil {
		return 0, fmt.Errorf("failed to create version table: %w", err)
	}
	var version int
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 1) FROM geosync_schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) setSchemaVersion(ctx context.Context, version int) error {
	query := fmt.Sprintf("INSERT INTO geosync_schema_version (version) VALUES (%s) ON CONFLICT (version) DO NOTHING", s.dialect.ph(1))
	_, err := s.db.ExecContext(ctx, query, version)
	return err
}

// migrateToV2 adds the rawdataid column to record tables created before the
// raw data archive existed
func (s *Store) migrateToV2(ctx context.Context) error {
	for _, k := range models.Kinds {
		table := k.MustDescriptor().Table
		exists, err := s.hasColumn(ctx, table, "id")
		if err != nil {
			return err
		}
		has, err := s.hasColumn(ctx, table, "rawdataid")
		if err != nil {
			return err
		}
		if !exists || has {
			continue
		}
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN rawdataid BIGINT", table)); err != nil {
			return fmt.Errorf("failed to add rawdataid to %s: %w", table, err)
		}
	}
	return s.setSchemaVersion(ctx, 2)
}

func (s *Store) hasColumn(ctx context.Context, table, column string) (bool, error) {
	var query string
	if s.dialect == postgresDialect {
		query = "SELECT COUNT(*) FROM information_schema.columns WHERE table_name = $1 AND column_name = $2"
	} else {
		query = "SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?"
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, table, column).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	return n > 0, nil
}
