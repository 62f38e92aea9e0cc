package relay

import (
	"cmp"
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/IBM/sarama"
	"github.com/edgeflare/quakebridge/pkg/telemetry"
	"github.com/xdg-go/scram"
)

// KafkaConfig configures the Kafka sink.
type KafkaConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topicPrefix"`
	Version     string   `mapstructure:"version"`
	ClientID    string   `mapstructure:"clientID"`
	SASL        struct {
		Enabled   bool   `mapstructure:"enabled"`
		Username  string `mapstructure:"username"`
		Password  string `mapstructure:"password"`
		Algorithm string `mapstructure:"algorithm"` // sha256, sha512 or plain
	} `mapstructure:"sasl"`
	TLS struct {
		Enabled    bool   `mapstructure:"enabled"`
		CertFile   string `mapstructure:"certFile"`
		KeyFile    string `mapstructure:"keyFile"`
		CAFile     string `mapstructure:"caFile"`
		SkipVerify bool   `mapstructure:"skipVerify"`
	} `mapstructure:"tls"`
}

var (
	SHA256 scram.HashGeneratorFcn = sha256.New
	SHA512 scram.HashGeneratorFcn = sha512.New
)

// XDGSCRAMClient adapts xdg-go/scram to sarama.SCRAMClient.
type XDGSCRAMClient struct {
	*scram.Client
	*scram.ClientConversation
	scram.HashGeneratorFcn
}

func (x *XDGSCRAMClient) Begin(userName, password, authzID string) error {
	client, err := x.HashGeneratorFcn.NewClient(userName, password, authzID)
	if err != nil {
		return err
	}
	x.Client = client
	x.ClientConversation = client.NewConversation()
	return nil
}

func (x *XDGSCRAMClient) Step(challenge string) (string, error) {
	return x.ClientConversation.Step(challenge)
}

func (x *XDGSCRAMClient) Done() bool {
	return x.ClientConversation.Done()
}

// saramaConfig builds a producer config: every send waits for all in-sync replicas.
func (c KafkaConfig) saramaConfig() (*sarama.Config, error) {
	conf := sarama.NewConfig()

	if c.Version != "" {
		version, err := sarama.ParseKafkaVersion(c.Version)
		if err != nil {
			return nil, fmt.Errorf("error parsing Kafka version: %w", err)
		}
		conf.Version = version
	}

	if c.SASL.Enabled {
		conf.Net.SASL.Enable = true
		conf.Net.SASL.User = c.SASL.Username
		conf.Net.SASL.Password = c.SASL.Password
		conf.Net.SASL.Handshake = true

		switch cmp.Or(c.SASL.Algorithm, "sha512") {
		case "sha512":
			conf.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient { return &XDGSCRAMClient{HashGeneratorFcn: SHA512} }
			conf.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
		case "sha256":
			conf.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient { return &XDGSCRAMClient{HashGeneratorFcn: SHA256} }
			conf.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
		case "plain":
			conf.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		default:
			return nil, fmt.Errorf("invalid SASL algorithm: %s", c.SASL.Algorithm)
		}
	}

	if c.TLS.Enabled {
		tlsConfig, err := c.tlsConfig()
		if err != nil {
			return nil, err
		}
		conf.Net.TLS.Enable = true
		conf.Net.TLS.Config = tlsConfig
	}

	conf.ClientID = cmp.Or(c.ClientID, "quakebridge")
	conf.Producer.RequiredAcks = sarama.WaitForAll
	conf.Producer.Retry.Max = 3
	conf.Producer.Retry.Backoff = 250 * time.Millisecond
	conf.Producer.Return.Successes = true
	conf.Producer.Partitioner = sarama.NewHashPartitioner

	return conf, nil
}

func (c KafkaConfig) tlsConfig() (*tls.Config, error) {
	t := &tls.Config{
		InsecureSkipVerify: c.TLS.SkipVerify,
		MinVersion:         tls.VersionTLS12,
	}
	if c.TLS.CAFile != "" {
		caCert, err := os.ReadFile(c.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("no certificates in %s", c.TLS.CAFile)
		}
		t.RootCAs = pool
	}
	if c.TLS.CertFile != "" && c.TLS.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.TLS.CertFile, c.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		t.Certificates = []tls.Certificate{cert}
	}
	return t, nil
}

// KafkaSink produces each message as JSON, keyed by the bus topic so one topic keeps its order
// within a partition.
type KafkaSink struct {
	producer sarama.SyncProducer
	prefix   string
}

// OpenKafka creates a synchronous producer against cfg.Brokers.
func OpenKafka(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		cfg.Brokers = []string{"localhost:9092"}
	}
	conf, err := cfg.saramaConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create sarama config: %w", err)
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync producer: %w", err)
	}
	return NewKafkaSink(producer, cmp.Or(cfg.TopicPrefix, "quakebridge")), nil
}

// NewKafkaSink wraps an existing producer.
func NewKafkaSink(producer sarama.SyncProducer, topicPrefix string) *KafkaSink {
	return &KafkaSink{producer: producer, prefix: topicPrefix}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Publish(_ context.Context, msg telemetry.Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	_, _, err = s.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     kafkaTopic(s.prefix, msg.Topic),
		Key:       sarama.StringEncoder(msg.Topic),
		Value:     sarama.ByteEncoder(value),
		Timestamp: msg.ReceivedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
