// Package mqtt connects to the sensor network's MQTT broker and hands every message
// received on the telemetry topics to a MessageHandler.
package mqtt

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const disconnectQuiesce = 250 // milliseconds

// Client is a thin wrapper around a paho client.
type Client struct {
	opts   *mqtt.ClientOptions
	client mqtt.Client
	logger *zap.Logger
}

// NewClient creates a new MQTT client with the given options and logger.
func NewClient(opts *ClientOptions, logger *zap.Logger) (*Client, error) {
	if opts == nil {
		opts = DefaultClientOptions()
	}
	pahoOpts, err := convertToPahoOptions(opts)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{opts: pahoOpts, logger: logger}, nil
}

// Connect starts the connection to the broker. With connect-retry enabled paho keeps
// trying in the background, so Connect only waits up to timeout for the first attempt
// and returns nil if it is still pending.
func (c *Client) Connect(timeout time.Duration) error {
	c.client = mqtt.NewClient(c.opts)
	token := c.client.Connect()
	if !token.WaitTimeout(timeout) {
		c.logger.Warn("broker not reachable yet, retrying in background",
			zap.Strings("servers", c.servers()))
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("broker connection error: %w", err)
	}
	return nil
}

// IsConnected reports whether the underlying client currently holds a connection.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}

// Disconnect closes the connection to the MQTT broker.
func (c *Client) Disconnect() {
	if c.client == nil {
		return
	}
	c.client.Disconnect(disconnectQuiesce)
	c.logger.Info("disconnected from MQTT broker")
}

func (c *Client) servers() []string {
	out := make([]string, 0, len(c.opts.Servers))
	for _, s := range c.opts.Servers {
		out = append(out, s.String())
	}
	return out
}
