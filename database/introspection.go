package database

import (
	"context"
	"fmt"
	"strings"
)

// gooseVersionTable is the bookkeeping table goose keeps in every migrated database
const gooseVersionTable = "goose_db_version"

// IntrospectionService provides schema and server catalog introspection
type IntrospectionService struct {
	db *DB
}

// NewIntrospectionService creates a new introspection service
func NewIntrospectionService(db *DB) *IntrospectionService {
	return &IntrospectionService{db: db}
}

// TableInfo represents information about a database table
type TableInfo struct {
	Name    string       `json:"name" db:"table_name"`
	Schema  string       `json:"schema" db:"table_schema"`
	Columns []ColumnInfo `json:"columns,omitempty"`
}

// ColumnInfo represents information about a table column
type ColumnInfo struct {
	Name       string `json:"name" db:"column_name"`
	DataType   string `json:"data_type" db:"data_type"`
	IsNullable bool   `json:"is_nullable" db:"is_nullable"`
}

// GetTables retrieves the user tables of the connected database, leaving out
// the migration bookkeeping table
func (is *IntrospectionService) GetTables(ctx context.Context) ([]TableInfo, error) {
	var tables []TableInfo
	err := is.db.db.SelectContext(ctx, &tables, `
		SELECT table_name, table_schema
		FROM information_schema.tables
		WHERE table_schema NOT IN ('information_schema', 'pg_catalog')
		AND table_type = 'BASE TABLE'
		AND table_name <> $1
		ORDER BY table_schema, table_name
	`, gooseVersionTable)
	if err != nil {
		return nil, WrapError(err, ErrCodeQueryFailed, "get_tables", "failed to get tables")
	}

	for i := range tables {
		columns, err := is.GetTableColumns(ctx, tables[i].Schema, tables[i].Name)
		if err != nil {
			return nil, WrapError(err, ErrCodeQueryFailed, "get_tables",
				fmt.Sprintf("failed to get columns for table %s.%s", tables[i].Schema, tables[i].Name))
		}
		tables[i].Columns = columns
	}

	return tables, nil
}

// GetTableColumns retrieves columns for a specific table in ordinal order
func (is *IntrospectionService) GetTableColumns(ctx context.Context, schema, tableName string) ([]ColumnInfo, error) {
	var columns []ColumnInfo
	err := is.db.db.SelectContext(ctx, &columns, `
		SELECT
			column_name,
			data_type,
			CASE WHEN is_nullable = 'YES' THEN true ELSE false END AS is_nullable
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`, schema, tableName)
	if err != nil {
		return nil, WrapError(err, ErrCodeQueryFailed, "get_table_columns", "failed to get table columns")
	}
	return columns, nil
}

// ListDatabases returns the databases on the server whose name starts with
// prefix, ordered by name
func (is *IntrospectionService) ListDatabases(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	err := is.db.db.SelectContext(ctx, &names, `
		SELECT datname
		FROM pg_database
		WHERE NOT datistemplate
		AND datname LIKE $1
		ORDER BY datname
	`, escapeLike(prefix)+"%")
	if err != nil {
		return nil, WrapError(err, ErrCodeQueryFailed, "list_databases", "failed to list databases")
	}
	return names, nil
}

// DatabaseExists reports whether a database with the given name exists
func (is *IntrospectionService) DatabaseExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := is.db.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", name)
	if err != nil {
		return false, WrapError(err, ErrCodeQueryFailed, "database_exists", "failed to check database")
	}
	return exists, nil
}

// CountSessions returns the number of backends connected to the named
// database, excluding the current one
func (is *IntrospectionService) CountSessions(ctx context.Context, name string) (int, error) {
	var count int
	err := is.db.db.GetContext(ctx, &count, `
		SELECT count(*)
		FROM pg_stat_activity
		WHERE pid <> pg_backend_pid() AND datname = $1
	`, name)
	if err != nil {
		return 0, WrapError(err, ErrCodeQueryFailed, "count_sessions", "failed to count sessions")
	}
	return count, nil
}

// escapeLike escapes the LIKE wildcards in s using the default escape character
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
