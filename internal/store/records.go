package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Row is a stored record document
type Row struct {
	ID          string
	Data        []byte
	AccessRoles []string
	RawDataID   *int64
}

// Records performs record reads and writes on a connection or transaction
type Records struct {
	q querier
	d dialect
}

// Get returns the document stored under id. Non-empty roles restrict the
// lookup to rows sharing one of them; ErrNotFound covers both cases.
func (r *Records) Get(ctx context.Context, table, id string, roles []string) ([]byte, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT data FROM %s WHERE id = %s", table, r.d.ph(1))
	args := []any{id}
	if len(roles) > 0 {
		pred, rargs := r.d.roleFilter(roles, 2)
		query += " AND " + pred
		args = append(args, rargs...)
	}

	var data []byte
	err := r.q.QueryRowContext(ctx, query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", table, id, err)
	}
	return data, nil
}

// GetMany returns the visible documents for ids in one query, keyed by the
// lower-cased id
func (r *Records) GetMany(ctx context.Context, table string, ids []string, roles []string) (map[string][]byte, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	result := make(map[string][]byte, len(ids))
	for start := 0; start < len(ids); start += maxIDsPerQuery {
		end := min(start+maxIDsPerQuery, len(ids))
		if err := r.getChunk(ctx, table, ids[start:end], roles, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// maxIDsPerQuery bounds the bind variables of one bulk read. SQLite rejects
// statements with more than 32766 of them.
var maxIDsPerQuery = 500

func (r *Records) getChunk(ctx context.Context, table string, ids []string, roles []string, result map[string][]byte) error {
	pred, args := r.d.idIn(ids, 1)
	query := fmt.Sprintf("SELECT id, data FROM %s WHERE %s", table, pred)
	if len(roles) > 0 {
		rpred, rargs := r.d.roleFilter(roles, len(args)+1)
		query += " AND " + rpred
		args = append(args, rargs...)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		result[strings.ToLower(id)] = data
	}
	return rows.Err()
}

// Insert writes a new row and returns the number of rows affected
func (r *Records) Insert(ctx context.Context, table string, row Row) (int64, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	roles, err := marshalRoles(row.AccessRoles)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf("INSERT INTO %s (id, data, accessroles, rawdataid) VALUES (%s, %s, %s, %s)",
		table, r.d.ph(1), r.d.ph(2), r.d.ph(3), r.d.ph(4))
	res, err := r.q.ExecContext(ctx, query, row.ID, r.d.jsonArg(row.Data), roles, row.RawDataID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s/%s: %w", table, row.ID, err)
	}
	return res.RowsAffected()
}

// Update replaces the document of an existing row and returns the number of
// rows affected. A nil RawDataID keeps the stored value.
func (r *Records) Update(ctx context.Context, table string, row Row) (int64, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	roles, err := marshalRoles(row.AccessRoles)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf("UPDATE %s SET data = %s, accessroles = %s, rawdataid = COALESCE(%s, rawdataid) WHERE id = %s",
		table, r.d.ph(1), r.d.ph(2), r.d.ph(3), r.d.ph(4))
	res, err := r.q.ExecContext(ctx, query, r.d.jsonArg(row.Data), roles, row.RawDataID, row.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s/%s: %w", table, row.ID, err)
	}
	return res.RowsAffected()
}

// Delete removes a row and returns the number of rows affected
func (r *Records) Delete(ctx context.Context, table, id string) (int64, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	res, err := r.q.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = %s", table, r.d.ph(1)), id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s/%s: %w", table, id, err)
	}
	return res.RowsAffected()
}

// IDsBySource lists the ids of all rows whose metadata source is source
func (r *Records) IDsBySource(ctx context.Context, table, source string) ([]string, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT id FROM %s WHERE %s = %s ORDER BY id", table, r.d.sourceExpr(), r.d.ph(1))
	rows, err := r.q.QueryContext(ctx, query, source)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s ids: %w", table, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of rows in table
func (r *Records) Count(ctx context.Context, table string) (int, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	var n int
	if err := r.q.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

func marshalRoles(roles []string) (string, error) {
	if roles == nil {
		roles = []string{}
	}
	data, err := json.Marshal(roles)
	if err != nil {
		return "", fmt.Errorf("failed to encode access roles: %w", err)
	}
	return string(data), nil
}
