package natsutil

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/pulsefeed/project/internal/messaging"
	"github.com/pulsefeed/project/internal/platform/logger"
)

const retryInterval = 500 * time.Millisecond

type Options struct {
	URL            string
	Name           string
	ConnectTimeout time.Duration
	Log            *logger.Logger
}

// Client is a JetStream-enabled connection whose streams are guaranteed to exist.
type Client struct {
	Conn *nats.Conn
	JS   nats.JetStreamContext
}

func connect(opts Options) (*Client, error) {
	log := logger.OrNop(opts.Log).With("component", "nats", "client", opts.Name)
	conn, err := nats.Connect(opts.URL,
		nats.Name(opts.Name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, err
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := messaging.EnsureStreams(js); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ensure streams: %w", err)
	}
	return &Client{Conn: conn, JS: js}, nil
}

// Connect retries until the server accepts the connection and the pulse streams exist,
// or until ConnectTimeout elapses or ctx is done.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	var lastErr error
	for {
		client, err := connect(opts)
		if err == nil {
			return client, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect jetstream %s after %s: %w", opts.URL, opts.ConnectTimeout, lastErr)
		case <-time.After(retryInterval):
		}
	}
}

func (c *Client) Close() {
	if c == nil || c.Conn == nil {
		return
	}
	_ = c.Conn.Drain()
}

func (c *Client) Ready() error {
	if c == nil || c.Conn == nil {
		return fmt.Errorf("nats connection is nil")
	}
	if c.Conn.Status() != nats.CONNECTED {
		return fmt.Errorf("nats is not connected: %s", c.Conn.Status().String())
	}
	return nil
}

// EventPublisher publishes JSON events to JetStream. When the payload carries an
// event_id it is used as the message id so the stream drops redelivered duplicates.
type EventPublisher struct {
	JS      nats.JetStreamContext
	Timeout time.Duration
}

func (p EventPublisher) Publish(subject string, payload []byte) error {
	opts := make([]nats.PubOpt, 0, 2)
	var envelope struct {
		EventID string `json:"event_id"`
	}
	if json.Unmarshal(payload, &envelope) == nil && envelope.EventID != "" {
		opts = append(opts, nats.MsgId(envelope.EventID))
	}
	if p.Timeout > 0 {
		opts = append(opts, nats.AckWait(p.Timeout))
	}
	if _, err := p.JS.Publish(subject, payload, opts...); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
