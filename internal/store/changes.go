package store

import (
	"context"
	"fmt"

	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/models"
)

// InsertChange appends an audit trail entry and sets its id
func (s *Store) InsertChange(ctx context.Context, c *models.RawChange) error {
	d := s.dialect
	query := fmt.Sprintf(`INSERT INTO rawchanges (editsource, editedby, date, datasource, changes, sourceid, type, license)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s) RETURNING id`,
		d.ph(1), d.ph(2), d.ph(3), d.ph(4), d.ph(5), d.ph(6), d.ph(7), d.ph(8))

	err := s.db.QueryRowContext(ctx, query,
		c.EditSource, c.EditedBy, c.Date.UTC(), c.DataSource, d.jsonArg(c.Changes), c.SourceID, c.Type, c.License,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to insert change for %s: %w", c.SourceID, err)
	}
	return nil
}

// ListChanges returns the audit trail of a record, newest first
func (s *Store) ListChanges(ctx context.Context, sourceID string, limit int) ([]*models.RawChange, error) {
	if limit <= 0 {
		limit = 100
	}
	d := s.dialect
	query := fmt.Sprintf(`SELECT id, editsource, editedby, date, datasource, changes, sourceid, type, license
		FROM rawchanges WHERE sourceid = %s ORDER BY id DESC LIMIT %d`, d.ph(1), limit)

	rows, err := s.db.QueryContext(ctx, query, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query changes: %w", err)
	}
	defer rows.Close()

	var changes []*models.RawChange
	for rows.Next() {
		var (
			c       models.RawChange
			date    any
			patch   []byte
			source  *string
			editor  *string
			origin  *string
			typ     *string
			license *string
		)
		if err := rows.Scan(&c.ID, &origin, &editor, &date, &source, &patch, &c.SourceID, &typ, &license); err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		c.Date = parseTimestamp(date)
		c.Changes = patch
		c.EditSource = deref(origin)
		c.EditedBy = deref(editor)
		c.DataSource = deref(source)
		c.Type = deref(typ)
		c.License = deref(license)
		changes = append(changes, &c)
	}
	return changes, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
