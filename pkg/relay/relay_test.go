package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/edgeflare/quakebridge/pkg/metrics"
	"github.com/edgeflare/quakebridge/pkg/telemetry"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	name     string
	err      error
	closeErr error

	mu     sync.Mutex
	got    []telemetry.Message
	closed bool
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Publish(_ context.Context, msg telemetry.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, msg)
	return f.err
}

func (f *fakeSink) Close() error {
	f.closed = true
	return f.closeErr
}

var sample = telemetry.Message{
	Topic:      telemetry.TopicMagnitude,
	Payload:    "5.6",
	ReceivedAt: time.Date(2024, 11, 5, 8, 30, 12, 0, time.UTC),
}

func TestFanoutPublishesToEverySink(t *testing.T) {
	a, b := &fakeSink{name: "a"}, &fakeSink{name: "b"}
	f := NewFanout(nil, a, b)
	assert.Equal(t, 2, f.Len())

	require.NoError(t, f.Publish(context.Background(), sample))
	assert.Equal(t, []telemetry.Message{sample}, a.got)
	assert.Equal(t, []telemetry.Message{sample}, b.got)
}

func TestFanoutKeepsGoingAfterFailure(t *testing.T) {
	boom := errors.New("broker down")
	bad := &fakeSink{name: "fanout-test-bad", err: boom}
	good := &fakeSink{name: "fanout-test-good"}
	f := NewFanout(nil, bad, good)

	before := testutil.ToFloat64(metrics.RelayErrors.WithLabelValues("fanout-test-bad"))
	err := f.Publish(context.Background(), sample)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "fanout-test-bad")
	assert.Len(t, good.got, 1)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.RelayErrors.WithLabelValues("fanout-test-bad")))
}

func TestFanoutClose(t *testing.T) {
	a := &fakeSink{name: "a", closeErr: errors.New("already closed")}
	b := &fakeSink{name: "b"}
	err := NewFanout(nil, a, b).Close()
	assert.Error(t, err)
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestEmptyFanout(t *testing.T) {
	f, err := Open(context.Background(), Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, f.Len())
	assert.NoError(t, f.Publish(context.Background(), sample))
	assert.NoError(t, f.Close())
}

func TestOpenInvalidConfig(t *testing.T) {
	cfg := Config{}
	cfg.ClickHouse.Enabled = true
	cfg.ClickHouse.Table = "events; DROP TABLE x"
	_, err := Open(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay clickhouse")

	cfg = Config{}
	cfg.Kafka.Enabled = true
	cfg.Kafka.Version = "not-a-version"
	_, err = Open(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay kafka")
}

func TestNATSSubject(t *testing.T) {
	tests := []struct {
		prefix, topic, want string
	}{
		{"quakebridge", telemetry.TopicAlerts, "quakebridge.earthquake.alerts"},
		{"quakebridge", telemetry.TopicHeartbeat, "quakebridge.heartbeat.rate"},
		{"", telemetry.TopicMagnitude, "earthquake.magnitude"},
		{"qb", "/leading//slashes/", "qb.leading.slashes"},
		{"qb", "v1.2/heart rate/*", "qb.v1_2.heart_rate._"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, natsSubject(tt.prefix, tt.topic), tt.topic)
	}
}

func TestKafkaTopic(t *testing.T) {
	tests := []struct {
		prefix, topic, want string
	}{
		{"quakebridge", telemetry.TopicAlerts, "quakebridge.earthquake.alerts"},
		{"quakebridge", telemetry.TopicHeartbeat, "quakebridge.heartbeat.rate"},
		{"", telemetry.TopicMagnitude, "earthquake.magnitude"},
		{"qb", "heartbeat rate", "qb.heartbeat_rate"},
		{"qb", "/a/b/", "qb.a.b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, kafkaTopic(tt.prefix, tt.topic), tt.topic)
	}
}

func TestNATSSinkPublish(t *testing.T) {
	var subject string
	var data []byte
	s := &NATSSink{prefix: "quakebridge", publish: func(subj string, d []byte) error {
		subject, data = subj, d
		return nil
	}}

	require.NoError(t, s.Publish(context.Background(), sample))
	assert.Equal(t, "quakebridge.earthquake.magnitude", subject)
	assert.JSONEq(t, `{"topic":"earthquake/magnitude","payload":"5.6","receivedAt":"2024-11-05T08:30:12Z"}`, string(data))

	s.publish = func(string, []byte) error { return errors.New("slow consumer") }
	assert.Error(t, s.Publish(context.Background(), sample))

	assert.ErrorIs(t, (&NATSSink{}).Publish(context.Background(), sample), errNATSNotConnected)
	assert.NoError(t, (&NATSSink{}).Close())
}
