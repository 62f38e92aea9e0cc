// Package config loads the bridge configuration from a YAML file, QUAKEBRIDGE_* environment
// variables and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/edgeflare/quakebridge/pkg/mqtt"
	"github.com/edgeflare/quakebridge/pkg/relay"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Version is set at build time with -ldflags "-X github.com/edgeflare/quakebridge/pkg/config.Version=...".
var Version = "dev"

const EnvPrefix = "QUAKEBRIDGE"

// Config holds application-wide configuration
type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Relay    relay.Config   `mapstructure:"relay"`
	Log      LogConfig      `mapstructure:"log"`
}

type HTTPConfig struct {
	ListenAddr      string        `mapstructure:"listenAddr"`
	StaticDir       string        `mapstructure:"staticDir"`
	MaxConns        int           `mapstructure:"maxConns"`
	AllowedOrigins  []string      `mapstructure:"allowedOrigins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

type PostgresConfig struct {
	ConnString     string        `mapstructure:"connString"`
	Schema         string        `mapstructure:"schema"`
	MaxConns       int32         `mapstructure:"maxConns"`
	ConnectTimeout time.Duration `mapstructure:"connectTimeout"`
	InitSchema     bool          `mapstructure:"initSchema"`
}

type MQTTConfig struct {
	Servers        []string         `mapstructure:"servers"`
	ClientID       string           `mapstructure:"clientID"`
	KeepAlive      time.Duration    `mapstructure:"keepAlive"`
	ConnectTimeout time.Duration    `mapstructure:"connectTimeout"`
	QoS            byte             `mapstructure:"qos"`
	TLS            *mqtt.TLSOptions `mapstructure:"tls"`
}

type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listenAddr"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// SetDefaults registers every default on v. Keys must be registered for environment variables
// to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("http.listenAddr", ":3002")
	v.SetDefault("http.staticDir", "")
	v.SetDefault("http.maxConns", 0)
	v.SetDefault("http.allowedOrigins", []string{})
	v.SetDefault("http.shutdownTimeout", 10*time.Second)

	v.SetDefault("postgres.connString", "postgres://postgres@localhost:5432/datajam")
	v.SetDefault("postgres.schema", "public")
	v.SetDefault("postgres.maxConns", 10)
	v.SetDefault("postgres.connectTimeout", 30*time.Second)
	v.SetDefault("postgres.initSchema", false)

	v.SetDefault("mqtt.servers", []string{mqtt.DefaultBroker})
	v.SetDefault("mqtt.clientID", "")
	v.SetDefault("mqtt.keepAlive", 30*time.Second)
	v.SetDefault("mqtt.connectTimeout", 30*time.Second)
	v.SetDefault("mqtt.qos", 0)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listenAddr", ":9100")

	v.SetDefault("relay.nats.enabled", false)
	v.SetDefault("relay.nats.servers", []string{})
	v.SetDefault("relay.nats.subjectPrefix", "quakebridge")
	v.SetDefault("relay.nats.stream", "")
	v.SetDefault("relay.kafka.enabled", false)
	v.SetDefault("relay.kafka.brokers", []string{})
	v.SetDefault("relay.kafka.topicPrefix", "quakebridge")
	v.SetDefault("relay.clickhouse.enabled", false)
	v.SetDefault("relay.clickhouse.addr", []string{})
	v.SetDefault("relay.clickhouse.database", "default")
	v.SetDefault("relay.clickhouse.table", "telemetry_events")
	v.SetDefault("relay.clickhouse.createTable", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// New returns a viper instance with defaults and environment binding applied, ready for flags
// to be bound and a config file to be read.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile reads cfgFile, or searches $HOME/.config and . for quakebridge.yaml when empty. A
// missing default file is not an error; it returns the path that was used, if any.
func ReadFile(v *viper.Viper, cfgFile string) (string, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("quakebridge")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("error reading config file: %w", err)
	}
	return v.ConfigFileUsed(), nil
}

// Decode unmarshals v into a Config and validates it.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads config from file or environment
func Load(cfgFile string) (*Config, error) {
	v := New()
	if _, err := ReadFile(v, cfgFile); err != nil {
		return nil, err
	}
	return Decode(v)
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch {
	case c.HTTP.ListenAddr == "":
		return errors.New("config: http.listenAddr is required")
	case c.Postgres.ConnString == "":
		return errors.New("config: postgres.connString is required")
	case len(c.MQTT.Servers) == 0:
		return errors.New("config: mqtt.servers needs at least one broker")
	case c.MQTT.QoS > 2:
		return fmt.Errorf("config: mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	case c.Metrics.Enabled && c.Metrics.ListenAddr == "":
		return errors.New("config: metrics.listenAddr is required when metrics are enabled")
	case c.HTTP.MaxConns < 0:
		return errors.New("config: http.maxConns must not be negative")
	}
	return nil
}

// ClientOptions converts the MQTT section into subscriber options.
func (c MQTTConfig) ClientOptions() (*mqtt.ClientOptions, error) {
	servers, err := mqtt.ParseServers(c.Servers)
	if err != nil {
		return nil, err
	}
	opts := mqtt.DefaultClientOptions()
	opts.Servers = servers
	if c.ClientID != "" {
		opts.ClientID = c.ClientID
	}
	if c.KeepAlive > 0 {
		opts.KeepAlive = int64(c.KeepAlive / time.Second)
	}
	if c.ConnectTimeout > 0 {
		opts.ConnectTimeout = c.ConnectTimeout
	}
	opts.QoS = c.QoS
	opts.TLS = c.TLS
	return opts, nil
}
