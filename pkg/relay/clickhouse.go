package relay

import (
	"cmp"
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/edgeflare/quakebridge/pkg/telemetry"
)

// ClickHouseConfig configures the ClickHouse sink, which appends every message to an
// append-only events table for analytics.
type ClickHouseConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Addr        []string      `mapstructure:"addr"`
	Database    string        `mapstructure:"database"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	Table       string        `mapstructure:"table"`
	CreateTable bool          `mapstructure:"createTable"`
	DialTimeout time.Duration `mapstructure:"dialTimeout"`
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// chConn is the part of driver.Conn the sink uses.
type chConn interface {
	Exec(ctx context.Context, query string, args ...any) error
	Close() error
}

// ClickHouseSink inserts one row per message into <database>.<table>.
type ClickHouseSink struct {
	conn   chConn
	insert string
}

// OpenClickHouse connects, pings and optionally creates the events table.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseSink, error) {
	if len(cfg.Addr) == 0 {
		cfg.Addr = []string{"localhost:9000"}
	}
	cfg.Database = cmp.Or(cfg.Database, "default")
	cfg.Username = cmp.Or(cfg.Username, "default")
	cfg.Table = cmp.Or(cfg.Table, "telemetry_events")
	if !identifier.MatchString(cfg.Database) || !identifier.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid ClickHouse identifier %q.%q", cfg.Database, cfg.Table)
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addr,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: cmp.Or(cfg.DialTimeout, 5*time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	s := newClickHouseSink(conn, cfg.Database, cfg.Table)
	if cfg.CreateTable {
		if err := conn.Exec(ctx, createEventsTable(cfg.Database, cfg.Table)); err != nil {
			conn.Close()
			return nil, fmt.Errorf("create table: %w", err)
		}
	}
	return s, nil
}

func newClickHouseSink(conn chConn, database, table string) *ClickHouseSink {
	return &ClickHouseSink{
		conn:   conn,
		insert: fmt.Sprintf("INSERT INTO %s.%s (topic, payload, received_at) VALUES (?, ?, ?)", database, table),
	}
}

func createEventsTable(database, table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
	topic LowCardinality(String),
	payload String,
	received_at DateTime('UTC')
) ENGINE = MergeTree
ORDER BY (topic, received_at)`, database, table)
}

func (s *ClickHouseSink) Name() string { return "clickhouse" }

func (s *ClickHouseSink) Publish(ctx context.Context, msg telemetry.Message) error {
	if err := s.conn.Exec(ctx, s.insert, msg.Topic, msg.Payload, msg.ReceivedAt); err != nil {
		return fmt.Errorf("failed to insert into ClickHouse: %w", err)
	}
	return nil
}

func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}
