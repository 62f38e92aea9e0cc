package relay

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/edgeflare/quakebridge/pkg/telemetry"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSConfig configures the NATS sink. With Stream set, messages go through JetStream and the
// stream is created when missing.
type NATSConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Servers       []string `mapstructure:"servers"`
	SubjectPrefix string   `mapstructure:"subjectPrefix"`
	Stream        string   `mapstructure:"stream"`
	Username      string   `mapstructure:"username"`
	Password      string   `mapstructure:"password"`
	Token         string   `mapstructure:"token"`
	TLS           struct {
		Enabled  bool   `mapstructure:"enabled"`
		CertFile string `mapstructure:"certFile"`
		KeyFile  string `mapstructure:"keyFile"`
		CAFile   string `mapstructure:"caFile"`
	} `mapstructure:"tls"`
}

// NATSSink publishes each message as JSON on <prefix>.<topic tokens>.
type NATSSink struct {
	nc      *nats.Conn
	publish func(subject string, data []byte) error
	prefix  string
}

var errNATSNotConnected = errors.New("NATS connection not initialized")

// OpenNATS connects to the first reachable server.
func OpenNATS(cfg NATSConfig, logger *zap.Logger) (*NATSSink, error) {
	if len(cfg.Servers) == 0 {
		cfg.Servers = []string{nats.DefaultURL}
	}
	cfg.SubjectPrefix = cmp.Or(cfg.SubjectPrefix, "quakebridge")

	opts := natsOptions(cfg, logger)
	var nc *nats.Conn
	var err error
	for _, server := range cfg.Servers {
		nc, err = nats.Connect(server, opts...)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to NATS server: %w", err)
	}

	s := &NATSSink{nc: nc, prefix: cfg.SubjectPrefix, publish: nc.Publish}
	if cfg.Stream != "" {
		js, err := nc.JetStream()
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create JetStream context: %w", err)
		}
		if err := ensureStream(js, cfg.Stream, cfg.SubjectPrefix+".>", logger); err != nil {
			nc.Close()
			return nil, fmt.Errorf("ensure stream: %w", err)
		}
		s.publish = func(subject string, data []byte) error {
			_, err := js.Publish(subject, data)
			return err
		}
	}
	return s, nil
}

func (s *NATSSink) Name() string { return "nats" }

// Publish sends msg. Core NATS publishes are buffered; JetStream publishes wait for the ack.
func (s *NATSSink) Publish(_ context.Context, msg telemetry.Message) error {
	if s.publish == nil {
		return errNATSNotConnected
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := s.publish(natsSubject(s.prefix, msg.Topic), data); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

// Close drains pending publishes and closes the connection.
func (s *NATSSink) Close() error {
	if s.nc == nil {
		return nil
	}
	return s.nc.Drain()
}

func ensureStream(js nats.JetStreamContext, name, subject string, logger *zap.Logger) error {
	config := &nats.StreamConfig{
		Name:     name,
		Subjects: []string{subject},
		Storage:  nats.FileStorage,
		Replicas: 1,
	}

	info, err := js.StreamInfo(name)
	if err == nil {
		if len(info.Config.Subjects) == 1 && info.Config.Subjects[0] == subject {
			return nil
		}
		if _, err := js.UpdateStream(config); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		logger.Info("updated NATS stream", zap.String("stream", name))
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("get stream info: %w", err)
	}

	if _, err := js.AddStream(config); err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	logger.Info("created NATS stream", zap.String("stream", name))
	return nil
}

func natsOptions(c NATSConfig, logger *zap.Logger) []nats.Option {
	opts := []nats.Option{
		nats.Name("quakebridge"),
		nats.Timeout(5 * time.Second),
		nats.PingInterval(10 * time.Second),
		nats.MaxPingsOutstanding(3),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	switch {
	case c.Token != "":
		opts = append(opts, nats.Token(c.Token))
	case c.Username != "" && c.Password != "":
		opts = append(opts, nats.UserInfo(c.Username, c.Password))
	}

	if c.TLS.Enabled {
		if c.TLS.CAFile != "" {
			opts = append(opts, nats.RootCAs(c.TLS.CAFile))
		}
		if c.TLS.CertFile != "" && c.TLS.KeyFile != "" {
			opts = append(opts, nats.ClientCert(c.TLS.CertFile, c.TLS.KeyFile))
		}
		if c.TLS.CAFile == "" && c.TLS.CertFile == "" {
			opts = append(opts, nats.Secure())
		}
	}

	return opts
}
