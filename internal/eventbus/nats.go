package eventbus

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Client owns the NATS connection and its JetStream context
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// Connect dials NATS and opens a JetStream context
func Connect(url string, logger *zap.Logger) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.Name("codegen-api"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(3),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &Client{conn: nc, js: js}, nil
}

// JetStream returns the JetStream context
func (c *Client) JetStream() nats.JetStreamContext {
	return c.js
}

// Healthy reports whether the connection is usable
func (c *Client) Healthy() error {
	if c.conn == nil || !c.conn.IsConnected() {
		return nats.ErrConnectionClosed
	}
	return nil
}

// Drain flushes pending publishes and closes the connection
func (c *Client) Drain() error {
	if c.conn == nil {
		return nil
	}
	if err := c.conn.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return err
	}
	return nil
}
