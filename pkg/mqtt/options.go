package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/url"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	// DefaultBroker is the public broker the sensor network publishes to.
	DefaultBroker = "tcp://broker.emqx.io:1883"
	// ReconnectInterval is the fixed delay between connection attempts.
	ReconnectInterval = time.Second
)

// TLSOptions holds TLS configuration that can be marshaled from JSON/YAML
type TLSOptions struct {
	InsecureSkipVerify bool   `json:"insecureSkipVerify" yaml:"insecureSkipVerify" mapstructure:"insecureSkipVerify"`
	ServerName         string `json:"serverName,omitempty" yaml:"serverName,omitempty" mapstructure:"serverName"`
	CAFile             string `json:"caFile,omitempty" yaml:"caFile,omitempty" mapstructure:"caFile"`
	CertFile           string `json:"certFile,omitempty" yaml:"certFile,omitempty" mapstructure:"certFile"`
	KeyFile            string `json:"keyFile,omitempty" yaml:"keyFile,omitempty" mapstructure:"keyFile"`
}

// ClientOptions is the subset of paho options the bridge exposes. Connections are anonymous.
type ClientOptions struct {
	TLS              *TLSOptions
	OnConnect        mqtt.OnConnectHandler
	OnConnectionLost mqtt.ConnectionLostHandler
	OnReconnecting   mqtt.ReconnectHandler
	ClientID         string
	Servers          []*url.URL
	ConnectTimeout   time.Duration
	KeepAlive        int64 // seconds
	QoS              byte
	CleanSession     bool
}

// DefaultClientOptions returns options pointing at DefaultBroker with a random client id.
func DefaultClientOptions() *ClientOptions {
	broker, _ := url.Parse(DefaultBroker)
	return &ClientOptions{
		Servers:        []*url.URL{broker},
		ClientID:       newClientID(),
		ConnectTimeout: 30 * time.Second,
		KeepAlive:      30,
		CleanSession:   true,
	}
}

// ParseServers turns broker URLs such as tcp://host:1883 or ssl://host:8883 into servers.
func ParseServers(servers []string) ([]*url.URL, error) {
	urls := make([]*url.URL, 0, len(servers))
	for _, server := range servers {
		u, err := url.Parse(server)
		if err != nil {
			return nil, fmt.Errorf("failed to parse server URL %s: %w", server, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("server URL %q needs a scheme and host, e.g. tcp://host:1883", server)
		}
		urls = append(urls, u)
	}
	return urls, nil
}

func newClientID() string {
	return "quakebridge-" + uuid.NewString()[:8]
}

func convertToPahoOptions(opts *ClientOptions) (*mqtt.ClientOptions, error) {
	pahoOpts := mqtt.NewClientOptions()

	for _, server := range opts.Servers {
		pahoOpts.AddBroker(server.String())
	}
	if len(opts.Servers) == 0 {
		pahoOpts.AddBroker(DefaultBroker)
	}

	if opts.ClientID != "" {
		pahoOpts.SetClientID(opts.ClientID)
	} else {
		pahoOpts.SetClientID(newClientID())
	}

	if opts.TLS != nil {
		tlsConfig, err := createTLSConfig(opts.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		pahoOpts.SetTLSConfig(tlsConfig)
	}
	if opts.KeepAlive > 0 {
		pahoOpts.SetKeepAlive(time.Duration(opts.KeepAlive) * time.Second)
	}
	if opts.ConnectTimeout > 0 {
		pahoOpts.SetConnectTimeout(opts.ConnectTimeout)
	}

	// reconnect forever, once per second, both for the first connection and after a loss
	pahoOpts.SetAutoReconnect(true)
	pahoOpts.SetConnectRetry(true)
	pahoOpts.SetConnectRetryInterval(ReconnectInterval)
	pahoOpts.SetMaxReconnectInterval(ReconnectInterval)

	pahoOpts.SetCleanSession(opts.CleanSession)
	// handlers run concurrently; the pool and hub are safe for that
	pahoOpts.SetOrderMatters(false)

	if opts.OnConnect != nil {
		pahoOpts.SetOnConnectHandler(opts.OnConnect)
	}
	if opts.OnConnectionLost != nil {
		pahoOpts.SetConnectionLostHandler(opts.OnConnectionLost)
	}
	if opts.OnReconnecting != nil {
		pahoOpts.SetReconnectingHandler(opts.OnReconnecting)
	}

	return pahoOpts, nil
}

func createTLSConfig(tlsOpts *TLSOptions) (*tls.Config, error) {
	config := &tls.Config{
		InsecureSkipVerify: tlsOpts.InsecureSkipVerify,
		ServerName:         tlsOpts.ServerName,
		MinVersion:         tls.VersionTLS12,
	}

	if tlsOpts.CAFile != "" {
		caCert, err := os.ReadFile(tlsOpts.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		config.RootCAs = caCertPool
	}

	if tlsOpts.CertFile != "" && tlsOpts.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(tlsOpts.CertFile, tlsOpts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		config.Certificates = []tls.Certificate{cert}
	}

	return config, nil
}
