package telemetry

import (
	"context"
	"fmt"
	"time"

	pg "github.com/edgeflare/quakebridge/pkg/pgx"
	"github.com/jackc/pgx/v5"
)

// Store reads and writes telemetry rows. Every failure it returns is a *pg.DataAccessError.
type Store struct {
	conn   pg.Conn
	schema string

	latestAlertsSQL    string
	alertByIDSQL       string
	latestMagnitudeSQL string
	latestHeartbeatSQL string
}

// NewStore returns a Store backed by conn. An empty schema means public.
func NewStore(conn pg.Conn, schema string) *Store {
	alerts := pg.TableIdentifier(TableAlerts, schema)
	magnitude := pg.TableIdentifier(TableMagnitude, schema)
	heartbeat := pg.TableIdentifier(TableHeartbeat, schema)

	id, ts := quote(ColumnID), quote(ColumnTimestamp)
	order := fmt.Sprintf("ORDER BY %s DESC, %s DESC", ts, id)

	return &Store{
		conn:   conn,
		schema: schema,

		latestAlertsSQL: fmt.Sprintf("SELECT %s, %s, %s FROM %s %s LIMIT $1",
			id, quote(ColumnData), ts, alerts, order),
		alertByIDSQL: fmt.Sprintf("SELECT %s, %s, %s FROM %s WHERE %s = $1",
			id, quote(ColumnData), ts, alerts, id),
		latestMagnitudeSQL: fmt.Sprintf("SELECT %s, %s, %s FROM %s %s LIMIT $1",
			id, quote(ColumnMagnitude), ts, magnitude, order),
		latestHeartbeatSQL: fmt.Sprintf("SELECT %s, %s, %s FROM %s %s LIMIT $1",
			id, quote(ColumnHeartbeat), ts, heartbeat, order),
	}
}

func quote(column string) string {
	return pgx.Identifier{column}.Sanitize()
}

// InsertAlert stores data verbatim, empty strings included, and returns the generated id.
func (s *Store) InsertAlert(ctx context.Context, data string, ts time.Time) (int64, error) {
	return pg.Insert(ctx, s.conn, TableAlerts, map[string]any{
		ColumnData:      data,
		ColumnTimestamp: ts,
	}, ColumnID, s.schema)
}

func (s *Store) InsertMagnitude(ctx context.Context, value float64, ts time.Time) (int64, error) {
	return pg.Insert(ctx, s.conn, TableMagnitude, map[string]any{
		ColumnMagnitude: value,
		ColumnTimestamp: ts,
	}, ColumnID, s.schema)
}

func (s *Store) InsertHeartbeat(ctx context.Context, value float64, ts time.Time) (int64, error) {
	return pg.Insert(ctx, s.conn, TableHeartbeat, map[string]any{
		ColumnHeartbeat: value,
		ColumnTimestamp: ts,
	}, ColumnID, s.schema)
}

// AlertByID re-reads a single alert. found is false when no row has that id.
func (s *Store) AlertByID(ctx context.Context, id int64) (alert Alert, found bool, err error) {
	return pg.QueryOne(ctx, s.conn, s.alertByIDSQL, scanAlert, id)
}

// LatestAlerts returns up to limit alerts, newest first.
func (s *Store) LatestAlerts(ctx context.Context, limit int) ([]Alert, error) {
	return pg.Query(ctx, s.conn, s.latestAlertsSQL, scanAlert, limit)
}

// LatestMagnitude returns up to limit magnitude readings, newest first.
func (s *Store) LatestMagnitude(ctx context.Context, limit int) ([]MagnitudeReading, error) {
	return pg.Query(ctx, s.conn, s.latestMagnitudeSQL, scanMagnitude, limit)
}

// LatestHeartbeat returns up to limit heartbeat readings, newest first.
func (s *Store) LatestHeartbeat(ctx context.Context, limit int) ([]HeartbeatReading, error) {
	return pg.Query(ctx, s.conn, s.latestHeartbeatSQL, scanHeartbeat, limit)
}

// Latest returns the newest row of each table. The first failing read aborts the snapshot.
func (s *Store) Latest(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	alert, found, err := pg.QueryOne(ctx, s.conn, s.latestAlertsSQL, scanAlert, 1)
	if err != nil {
		return Snapshot{}, err
	}
	if found {
		snap.Alerts = &alert
	}

	heartbeat, found, err := pg.QueryOne(ctx, s.conn, s.latestHeartbeatSQL, scanHeartbeat, 1)
	if err != nil {
		return Snapshot{}, err
	}
	if found {
		snap.Heartbeat = &heartbeat
	}

	magnitude, found, err := pg.QueryOne(ctx, s.conn, s.latestMagnitudeSQL, scanMagnitude, 1)
	if err != nil {
		return Snapshot{}, err
	}
	if found {
		snap.Magnitude = &magnitude
	}

	return snap, nil
}

func scanAlert(row pgx.CollectableRow) (Alert, error) {
	var a Alert
	err := row.Scan(&a.ID, &a.Data, &a.Timestamp)
	return a, err
}

func scanMagnitude(row pgx.CollectableRow) (MagnitudeReading, error) {
	var m MagnitudeReading
	err := row.Scan(&m.ID, &m.Value, &m.Timestamp)
	return m, err
}

func scanHeartbeat(row pgx.CollectableRow) (HeartbeatReading, error) {
	var h HeartbeatReading
	err := row.Scan(&h.ID, &h.Value, &h.Timestamp)
	return h, err
}
