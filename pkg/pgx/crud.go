package pgx

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
)

type queryBuilder struct {
	schema    string
	table     string
	columns   []string
	values    []any
	nextIndex int
}

func newQueryBuilder(tableName string, schema ...string) *queryBuilder {
	schemaName := "public"
	if len(schema) > 0 && schema[0] != "" {
		schemaName = schema[0]
	}
	return &queryBuilder{
		schema:    schemaName,
		table:     tableName,
		nextIndex: 1,
	}
}

func (qb *queryBuilder) addValue(column string, value any) {
	qb.columns = append(qb.columns, pgx.Identifier{column}.Sanitize())
	qb.values = append(qb.values, value)
}

func (qb *queryBuilder) placeholder() string {
	placeholder := fmt.Sprintf("$%d", qb.nextIndex)
	qb.nextIndex++
	return placeholder
}

func (qb *queryBuilder) tableIdentifier() string {
	return pgx.Identifier{qb.schema, qb.table}.Sanitize()
}

// TableIdentifier returns the quoted, schema-qualified name of a table, e.g. "public"."heartbeat rate".
// An empty or missing schema means public.
func TableIdentifier(tableName string, schema ...string) string {
	return newQueryBuilder(tableName, schema...).tableIdentifier()
}

// buildInsert renders an INSERT ... RETURNING statement. Columns are emitted in sorted order
// so the statement text is stable for a given set of fields.
func buildInsert(tableName string, fields map[string]any, returning string, schema ...string) (string, []any) {
	qb := newQueryBuilder(tableName, schema...)

	placeholders := make([]string, 0, len(fields))
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		qb.addValue(key, fields[key])
		placeholders = append(placeholders, qb.placeholder())
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		qb.tableIdentifier(),
		strings.Join(qb.columns, ", "),
		strings.Join(placeholders, ", "),
		pgx.Identifier{returning}.Sanitize(),
	)
	return query, qb.values
}

// Insert adds one row to tableName and returns the generated value of the returning column.
// Values are always sent as positional parameters; only identifiers end up in the SQL text.
func Insert(ctx context.Context, conn Conn, tableName string, fields map[string]any, returning string, schema ...string) (int64, error) {
	if len(fields) == 0 {
		return 0, fmt.Errorf("pgx: insert %s: no fields", tableName)
	}

	query, args := buildInsert(tableName, fields, returning, schema...)

	var id int64
	if err := conn.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, &DataAccessError{Op: "insert", Table: tableName, Err: err}
	}
	return id, nil
}

// Query runs a parameterized statement and scans every row with scan.
// The result is never nil; an empty table yields an empty slice.
func Query[T any](ctx context.Context, conn Conn, sql string, scan pgx.RowToFunc[T], args ...any) ([]T, error) {
	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, &DataAccessError{Op: "query", Err: err}
	}

	items, err := pgx.CollectRows(rows, scan)
	if err != nil {
		return nil, &DataAccessError{Op: "query", Err: err}
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// QueryOne is Query for statements returning at most one row.
// found is false, with a nil error, when the statement matched nothing.
func QueryOne[T any](ctx context.Context, conn Conn, sql string, scan pgx.RowToFunc[T], args ...any) (item T, found bool, err error) {
	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return item, false, &DataAccessError{Op: "query", Err: err}
	}

	item, err = pgx.CollectOneRow(rows, scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return item, false, nil
	}
	if err != nil {
		return item, false, &DataAccessError{Op: "query", Err: err}
	}
	return item, true, nil
}
