package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/edgeflare/quakebridge/internal/testutil/pgtest"
	pg "github.com/edgeflare/quakebridge/pkg/pgx"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreStatements(t *testing.T) {
	s := NewStore(nil, "")

	assert.Equal(t,
		`SELECT "ID", "DATA", "TIMESTAMP" FROM "public"."alerts" ORDER BY "TIMESTAMP" DESC, "ID" DESC LIMIT $1`,
		s.latestAlertsSQL)
	assert.Equal(t,
		`SELECT "ID", "DATA", "TIMESTAMP" FROM "public"."alerts" WHERE "ID" = $1`,
		s.alertByIDSQL)
	assert.Equal(t,
		`SELECT "ID", "SR", "TIMESTAMP" FROM "public"."magnitude" ORDER BY "TIMESTAMP" DESC, "ID" DESC LIMIT $1`,
		s.latestMagnitudeSQL)
	assert.Equal(t,
		`SELECT "ID", "HR", "TIMESTAMP" FROM "public"."heartbeat rate" ORDER BY "TIMESTAMP" DESC, "ID" DESC LIMIT $1`,
		s.latestHeartbeatSQL)
}

func TestSchemaStatements(t *testing.T) {
	stmts := schemaStatements("telemetry")
	require.Len(t, stmts, 6)
	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS "telemetry"."heartbeat rate" ("ID" BIGSERIAL PRIMARY KEY, "HR" DOUBLE PRECISION NOT NULL, "TIMESTAMP" TIMESTAMP NOT NULL)`,
		stmts[2])
	assert.Contains(t, stmts[3], `ON "telemetry"."alerts" ("TIMESTAMP" DESC)`)
}

func TestRowJSON(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	b, err := json.Marshal(Alert{ID: 3, Data: "quake", Timestamp: ts})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ID":3,"DATA":"quake","TIMESTAMP":"2024-05-01T10:00:00Z"}`, string(b))

	b, err = json.Marshal(Snapshot{Magnitude: &MagnitudeReading{ID: 1, Value: 4.2, Timestamp: ts}})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"alerts":null,"heartbeat":null,"magnitude":{"ID":1,"SR":4.2,"TIMESTAMP":"2024-05-01T10:00:00Z"}}`,
		string(b))
}

// newTestStore creates an isolated schema holding fresh telemetry tables.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	pool := pgtest.Pool(ctx, t)

	schema := fmt.Sprintf("quakebridge_test_%d", time.Now().UnixNano())
	_, err := pool.Exec(ctx, "CREATE SCHEMA "+pgx.Identifier{schema}.Sanitize())
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), "DROP SCHEMA "+pgx.Identifier{schema}.Sanitize()+" CASCADE")
	})

	require.NoError(t, EnsureSchema(ctx, pool, schema))
	// idempotent
	require.NoError(t, EnsureSchema(ctx, pool, schema))

	return NewStore(pool, schema)
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("empty snapshot", func(t *testing.T) {
		snap, err := s.Latest(ctx)
		require.NoError(t, err)
		assert.Nil(t, snap.Alerts)
		assert.Nil(t, snap.Heartbeat)
		assert.Nil(t, snap.Magnitude)

		alerts, err := s.LatestAlerts(ctx, 10)
		require.NoError(t, err)
		assert.NotNil(t, alerts)
		assert.Empty(t, alerts)
	})

	t.Run("alerts round trip", func(t *testing.T) {
		id, err := s.InsertAlert(ctx, "M6.1 offshore", base)
		require.NoError(t, err)

		alert, found, err := s.AlertByID(ctx, id)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "M6.1 offshore", alert.Data)
		assert.True(t, base.Equal(alert.Timestamp))

		emptyID, err := s.InsertAlert(ctx, "", base.Add(time.Second))
		require.NoError(t, err)
		empty, found, err := s.AlertByID(ctx, emptyID)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "", empty.Data)

		_, found, err = s.AlertByID(ctx, -1)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("readings newest first with limit", func(t *testing.T) {
		for i := range 5 {
			_, err := s.InsertMagnitude(ctx, float64(i)+0.5, base.Add(time.Duration(i)*time.Second))
			require.NoError(t, err)
		}

		rows, err := s.LatestMagnitude(ctx, 3)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.InDelta(t, 4.5, rows[0].Value, 1e-9)
		for i := 1; i < len(rows); i++ {
			assert.False(t, rows[i].Timestamp.After(rows[i-1].Timestamp), "timestamps must be descending")
		}

		_, err = s.InsertHeartbeat(ctx, 72, base)
		require.NoError(t, err)
		hr, err := s.LatestHeartbeat(ctx, 10)
		require.NoError(t, err)
		require.Len(t, hr, 1)
		assert.InDelta(t, 72.0, hr[0].Value, 1e-9)
	})

	t.Run("same second ties broken by id", func(t *testing.T) {
		ts := base.Add(time.Hour)
		first, err := s.InsertHeartbeat(ctx, 60, ts)
		require.NoError(t, err)
		second, err := s.InsertHeartbeat(ctx, 61, ts)
		require.NoError(t, err)

		rows, err := s.LatestHeartbeat(ctx, 2)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, second, rows[0].ID)
		assert.Equal(t, first, rows[1].ID)
	})

	t.Run("snapshot", func(t *testing.T) {
		snap, err := s.Latest(ctx)
		require.NoError(t, err)
		require.NotNil(t, snap.Alerts)
		require.NotNil(t, snap.Heartbeat)
		require.NotNil(t, snap.Magnitude)
		assert.InDelta(t, 61.0, snap.Heartbeat.Value, 1e-9)
	})

	t.Run("concurrent alert inserts get distinct ids", func(t *testing.T) {
		const n = 50
		ids := make(chan int64, n)
		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				id, err := s.InsertAlert(ctx, fmt.Sprintf("alert-%d", i), base)
				assert.NoError(t, err)
				ids <- id
			}()
		}
		wg.Wait()
		close(ids)

		seen := make(map[int64]bool, n)
		for id := range ids {
			assert.False(t, seen[id], "duplicate id %d", id)
			seen[id] = true
		}
		assert.Len(t, seen, n)

		alerts, err := s.LatestAlerts(ctx, 1000)
		require.NoError(t, err)
		assert.Len(t, alerts, n+2)
	})
}

func TestStoreMissingTables(t *testing.T) {
	ctx := context.Background()
	pool := pgtest.Pool(ctx, t)

	s := NewStore(pool, fmt.Sprintf("missing_schema_%d", time.Now().UnixNano()))
	_, err := s.LatestAlerts(ctx, 10)
	require.Error(t, err)
	assert.True(t, pg.IsDataAccess(err))

	_, err = s.Latest(ctx)
	assert.True(t, pg.IsDataAccess(err))

	_, err = s.InsertAlert(ctx, "x", time.Now())
	assert.True(t, pg.IsDataAccess(err))
}
