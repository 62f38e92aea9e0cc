// Package telemetry holds the persisted entities of the bridge and the typed store that reads
// and writes them through the pgx gateway.
package telemetry

import "time"

// Bus topics. They are fixed; nothing reconfigures them at runtime.
const (
	TopicAlerts    = "earthquake/alerts"
	TopicMagnitude = "earthquake/magnitude"
	TopicHeartbeat = "heartbeat/rate"
)

// Topics lists the subscribed topics in a stable order.
var Topics = []string{TopicAlerts, TopicMagnitude, TopicHeartbeat}

// Table and column names are kept exactly as the existing database uses them.
const (
	TableAlerts    = "alerts"
	TableMagnitude = "magnitude"
	TableHeartbeat = "heartbeat rate"

	ColumnID        = "ID"
	ColumnData      = "DATA"
	ColumnTimestamp = "TIMESTAMP"
	ColumnMagnitude = "SR"
	ColumnHeartbeat = "HR"
)

// Alert is one row of the alerts table. Data is the trimmed payload, stored verbatim.
type Alert struct {
	ID        int64     `json:"ID"`
	Data      string    `json:"DATA"`
	Timestamp time.Time `json:"TIMESTAMP"`
}

// MagnitudeReading is one row of the magnitude table.
type MagnitudeReading struct {
	ID        int64     `json:"ID"`
	Value     float64   `json:"SR"`
	Timestamp time.Time `json:"TIMESTAMP"`
}

// HeartbeatReading is one row of the heartbeat rate table.
type HeartbeatReading struct {
	ID        int64     `json:"ID"`
	Value     float64   `json:"HR"`
	Timestamp time.Time `json:"TIMESTAMP"`
}

// Snapshot is the most recent row of each table; a nil field means the table is empty.
type Snapshot struct {
	Alerts    *Alert            `json:"alerts"`
	Heartbeat *HeartbeatReading `json:"heartbeat"`
	Magnitude *MagnitudeReading `json:"magnitude"`
}

// Message is one inbound bus message after trimming, stamped with the time it was handled.
type Message struct {
	Topic      string    `json:"topic"`
	Payload    string    `json:"payload"`
	ReceivedAt time.Time `json:"receivedAt"`
}
