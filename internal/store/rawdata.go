package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/noi-techpark/opendatahub-content-api-sub001/internal/models"
)

// InsertRawData archives a source payload and sets its id
func (s *Store) InsertRawData(ctx context.Context, r *models.RawData) error {
	d := s.dialect
	query := fmt.Sprintf(`INSERT INTO rawdata (type, datasource, sourceinterface, sourceid, sourceurl, importdate, license, rawformat, raw, blobkey)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s) RETURNING id`,
		d.ph(1), d.ph(2), d.ph(3), d.ph(4), d.ph(5), d.ph(6), d.ph(7), d.ph(8), d.ph(9), d.ph(10))

	err := s.db.QueryRowContext(ctx, query,
		r.Type, r.DataSource, r.SourceInterface, r.SourceID, r.SourceURL, r.ImportDate.UTC(),
		r.License, r.RawFormat, r.Raw, r.BlobKey,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("failed to insert raw data: %w", err)
	}
	return nil
}

// GetRawData returns an archived payload
func (s *Store) GetRawData(ctx context.Context, id int64) (*models.RawData, error) {
	query := fmt.Sprintf(`SELECT id, type, datasource, sourceinterface, sourceid, sourceurl, importdate, license, rawformat, raw, blobkey
		FROM rawdata WHERE id = %s`, s.dialect.ph(1))

	var (
		r    models.RawData
		date any
		raw  sql.NullString
		key  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&r.ID, &r.Type, &r.DataSource, &r.SourceInterface, &r.SourceID, &r.SourceURL,
		&date, &r.License, &r.RawFormat, &raw, &key,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get raw data %d: %w", id, err)
	}
	r.ImportDate = parseTimestamp(date)
	r.Raw = raw.String
	r.BlobKey = key.String
	return &r, nil
}
