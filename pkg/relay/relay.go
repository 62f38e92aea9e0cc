// Package relay mirrors handled telemetry messages to optional secondary systems
// (NATS, Kafka, ClickHouse). Relays never affect the primary store or the push channel:
// a failed publish is counted and reported to the caller, which only logs it.
package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgeflare/quakebridge/pkg/metrics"
	"github.com/edgeflare/quakebridge/pkg/telemetry"
	"go.uber.org/zap"
)

// Sink is one relay destination.
type Sink interface {
	Name() string
	Publish(ctx context.Context, msg telemetry.Message) error
	Close() error
}

// Config enables and configures each sink. All sinks are disabled by default.
type Config struct {
	NATS       NATSConfig       `mapstructure:"nats"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
}

// Fanout publishes every message to all of its sinks.
type Fanout struct {
	sinks  []Sink
	logger *zap.Logger
}

// NewFanout wraps already-connected sinks.
func NewFanout(logger *zap.Logger, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{sinks: sinks, logger: logger}
}

// Open connects every enabled sink in cfg. If one fails, the ones already opened are closed.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Fanout, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var sinks []Sink
	fail := func(name string, err error) (*Fanout, error) {
		for _, s := range sinks {
			_ = s.Close()
		}
		return nil, fmt.Errorf("relay %s: %w", name, err)
	}

	if cfg.NATS.Enabled {
		s, err := OpenNATS(cfg.NATS, logger)
		if err != nil {
			return fail("nats", err)
		}
		sinks = append(sinks, s)
	}
	if cfg.Kafka.Enabled {
		s, err := OpenKafka(cfg.Kafka)
		if err != nil {
			return fail("kafka", err)
		}
		sinks = append(sinks, s)
	}
	if cfg.ClickHouse.Enabled {
		s, err := OpenClickHouse(ctx, cfg.ClickHouse)
		if err != nil {
			return fail("clickhouse", err)
		}
		sinks = append(sinks, s)
	}

	for _, s := range sinks {
		logger.Info("relay enabled", zap.String("sink", s.Name()))
	}
	return NewFanout(logger, sinks...), nil
}

// Len is the number of sinks.
func (f *Fanout) Len() int { return len(f.sinks) }

// Publish sends msg to every sink. Every sink is tried; the failures are joined.
func (f *Fanout) Publish(ctx context.Context, msg telemetry.Message) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publish(ctx, msg); err != nil {
			metrics.RelayErrors.WithLabelValues(s.Name()).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (f *Fanout) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
