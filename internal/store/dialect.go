package store

import (
	"fmt"
	"strings"
)

// dialect holds the SQL differences between the supported databases
type dialect string

const (
	sqliteDialect   dialect = "sqlite"
	postgresDialect dialect = "postgres"
)

func dialectFor(driver string) (dialect, error) {
	switch strings.ToLower(driver) {
	case "", "sqlite", "sqlite3":
		return sqliteDialect, nil
	case "postgres", "postgresql", "pgx":
		return postgresDialect, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", driver)
}

// ph returns the n-th (1-based) bind placeholder
func (d dialect) ph(n int) string {
	if d == postgresDialect {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (d dialect) recordSchema(table string) []string {
	if d == postgresDialect {
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				data JSONB NOT NULL,
				accessroles JSONB NOT NULL DEFAULT '[]'::jsonb,
				rawdataid BIGINT
			)`, table),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_source ON %s ((data->'_Meta'->>'Source'))`, table, table),
		}
	}
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			data JSON NOT NULL,
			accessroles JSON NOT NULL DEFAULT '[]',
			rawdataid INTEGER
		)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_source ON %s (json_extract(data, '$._Meta.Source'))`, table, table),
	}
}

func (d dialect) rawChangesSchema() string {
	if d == postgresDialect {
		return `CREATE TABLE IF NOT EXISTS rawchanges (
			id BIGSERIAL PRIMARY KEY,
			editsource TEXT,
			editedby TEXT,
			date TIMESTAMPTZ NOT NULL,
			datasource TEXT,
			changes JSONB,
			sourceid TEXT NOT NULL,
			type TEXT,
			license TEXT
		)`
	}
	return `CREATE TABLE IF NOT EXISTS rawchanges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		editsource TEXT,
		editedby TEXT,
		date TIMESTAMP NOT NULL,
		datasource TEXT,
		changes JSON,
		sourceid TEXT NOT NULL,
		type TEXT,
		license TEXT
	)`
}

func (d dialect) rawDataSchema() string {
	if d == postgresDialect {
		return `CREATE TABLE IF NOT EXISTS rawdata (
			id BIGSERIAL PRIMARY KEY,
			type TEXT,
			datasource TEXT,
			sourceinterface TEXT,
			sourceid TEXT,
			sourceurl TEXT,
			importdate TIMESTAMPTZ NOT NULL,
			license TEXT,
			rawformat TEXT,
			raw TEXT,
			blobkey TEXT
		)`
	}
	return `CREATE TABLE IF NOT EXISTS rawdata (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT,
		datasource TEXT,
		sourceinterface TEXT,
		sourceid TEXT,
		sourceurl TEXT,
		importdate TIMESTAMP NOT NULL,
		license TEXT,
		rawformat TEXT,
		raw TEXT,
		blobkey TEXT
	)`
}

func (d dialect) versionSchema() string {
	return `CREATE TABLE IF NOT EXISTS geosync_schema_version (version INTEGER PRIMARY KEY)`
}

// roleFilter returns a predicate restricting rows to those sharing at least
// one access role, with its arguments. next is the first free placeholder.
func (d dialect) roleFilter(roles []string, next int) (string, []any) {
	if d == postgresDialect {
		return fmt.Sprintf("jsonb_exists_any(accessroles, %s::text[])", d.ph(next)), []any{roles}
	}
	marks := make([]string, len(roles))
	args := make([]any, len(roles))
	for i, r := range roles {
		marks[i] = "?"
		args[i] = r
	}
	return fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(accessroles) WHERE json_each.value IN (%s))", strings.Join(marks, ", ")), args
}

// idIn returns a predicate matching any of ids, with its arguments
func (d dialect) idIn(ids []string, next int) (string, []any) {
	if d == postgresDialect {
		return fmt.Sprintf("id = ANY(%s::text[])", d.ph(next)), []any{ids}
	}
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id
	}
	return fmt.Sprintf("id IN (%s)", strings.Join(marks, ", ")), args
}

// sourceExpr extracts the metadata source of a record
func (d dialect) sourceExpr() string {
	if d == postgresDialect {
		return "data->'_Meta'->>'Source'"
	}
	return "json_extract(data, '$._Meta.Source')"
}

// jsonArg adapts a JSON document for binding into a JSON column
func (d dialect) jsonArg(doc []byte) any {
	if doc == nil {
		return nil
	}
	return string(doc)
}
