package telemetry

import (
	"context"
	"fmt"

	pg "github.com/edgeflare/quakebridge/pkg/pgx"
	"github.com/jackc/pgx/v5"
)

// schemaStatements creates the three tables when they are missing. Existing tables are left
// untouched, so a database created by an earlier deployment keeps its data and column types.
func schemaStatements(schema string) []string {
	id, ts := quote(ColumnID), quote(ColumnTimestamp)

	table := func(name, valueColumn, valueType string) string {
		return fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s (%s BIGSERIAL PRIMARY KEY, %s %s NOT NULL, %s TIMESTAMP NOT NULL)",
			pg.TableIdentifier(name, schema), id, quote(valueColumn), valueType, ts)
	}
	index := func(name, indexName string) string {
		return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s DESC)",
			pgx.Identifier{indexName}.Sanitize(), pg.TableIdentifier(name, schema), ts)
	}

	return []string{
		table(TableAlerts, ColumnData, "TEXT"),
		table(TableMagnitude, ColumnMagnitude, "DOUBLE PRECISION"),
		table(TableHeartbeat, ColumnHeartbeat, "DOUBLE PRECISION"),
		index(TableAlerts, "alerts_timestamp_idx"),
		index(TableMagnitude, "magnitude_timestamp_idx"),
		index(TableHeartbeat, "heartbeat_rate_timestamp_idx"),
	}
}

// EnsureSchema creates the telemetry tables and their timestamp indexes if they do not exist.
func EnsureSchema(ctx context.Context, conn pg.Conn, schema string) error {
	for _, stmt := range schemaStatements(schema) {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return &pg.DataAccessError{Op: "ensure schema", Err: err}
		}
	}
	return nil
}
