// Package websocket is a realtime.Stream implementation on top of a single
// multiplexed websocket connection.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/pulseboard/feedmirror/internal/realtime"
)

var log = logrus.WithField("package", "websocket")

const writeTimeout = 10 * time.Second

type command struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

// Client keeps one connection open, re-dialing with exponential backoff, and
// re-subscribes its active channels after every reconnect.
type Client struct {
	url   string
	token string

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[string]func(realtime.Envelope)

	cancel context.CancelFunc
	done   chan struct{}
}

// Dial connects to url and starts the read loop.
func Dial(ctx context.Context, url, token string) (*Client, error) {
	c := &Client{
		url:      url,
		token:    token,
		handlers: map[string]func(realtime.Envelope){},
		done:     make(chan struct{}),
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.conn = conn

	ctx, c.cancel = context.WithCancel(ctx)
	go c.readLoop(ctx)

	return c, nil
}

// Subscribe registers fn for a channel and announces the subscription to the
// server.
func (c *Client) Subscribe(ctx context.Context, channel string, fn func(realtime.Envelope)) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.handlers[channel]; ok {
		return nil, fmt.Errorf("channel %s is already subscribed", channel)
	}

	if err := c.send(command{Action: "subscribe", Channel: channel}); err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	c.handlers[channel] = fn

	release := func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		delete(c.handlers, channel)

		if err := c.send(command{Action: "unsubscribe", Channel: channel}); err != nil {
			log.WithError(err).WithField("channel", channel).Warn("failed to announce unsubscribe")
		}
	}

	return release, nil
}

// Close tears the connection down and stops the read loop.
func (c *Client) Close() error {
	c.cancel()

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			return fmt.Errorf("failed to close connection: %w", err)
		}
	}

	<-c.done

	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, h)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", c.url, err)
	}

	return conn, nil
}

// send must be called with mu held.
func (c *Client) send(cmd command) error {
	if c.conn == nil {
		return fmt.Errorf("connection is down")
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	return c.conn.WriteJSON(cmd)
}

func (c *Client) readLoop(ctx context.Context) {
	defer close(c.done)

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			log.WithError(err).Warn("connection lost, reconnecting")

			if !c.reconnect(ctx) {
				return
			}
			continue
		}

		var env realtime.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.WithError(err).Warn("skip malformed frame")
			continue
		}

		c.mu.Lock()
		fn := c.handlers[env.Channel]
		c.mu.Unlock()

		if fn != nil {
			fn(env)
		}
	}
}

func (c *Client) reconnect(ctx context.Context) bool {
	b := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)

	conn, err := backoff.RetryWithData(func() (*websocket.Conn, error) {
		return c.dial(ctx)
	}, b)
	if err != nil {
		log.WithError(err).Error("failed to reconnect")
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn = conn

	for channel := range c.handlers {
		if err := c.send(command{Action: "subscribe", Channel: channel}); err != nil {
			log.WithError(err).WithField("channel", channel).Error("failed to restore subscription")
		}
	}

	return true
}
