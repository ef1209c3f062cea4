// Package rosbridge is a client for the rosbridge v2 JSON protocol over a websocket.
package rosbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"go.viam.com/gridnav/logging"
	"go.viam.com/gridnav/utils"
)

const (
	defaultWriteTimeout = 5 * time.Second
	handshakeTimeout    = 5 * time.Second
)

// Handler receives the raw "msg" body of a publish on a subscribed topic. Handlers run on the
// client's read goroutine and must not block for long.
type Handler func(ctx context.Context, msg json.RawMessage)

type envelope struct {
	Op    string          `json:"op"`
	ID    string          `json:"id,omitempty"`
	Topic string          `json:"topic,omitempty"`
	Type  string          `json:"type,omitempty"`
	Msg   json.RawMessage `json:"msg,omitempty"`
	Level string          `json:"level,omitempty"`
}

type publishOp struct {
	Op    string      `json:"op"`
	ID    string      `json:"id,omitempty"`
	Topic string      `json:"topic"`
	Msg   interface{} `json:"msg"`
}

// Client holds one rosbridge connection.
type Client struct {
	conn   *websocket.Conn
	logger logging.Logger

	writeMu sync.Mutex
	ids     atomic.Uint64

	mu         sync.RWMutex
	handlers   map[string][]Handler
	advertised map[string]string

	workers   utils.StoppableWorkers
	closeOnce sync.Once
	closing   atomic.Bool
	done      chan struct{}
}

// Dial connects to a rosbridge server such as ws://localhost:9090 and starts reading from it.
func Dial(ctx context.Context, url string, logger logging.Logger) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		//nolint:errcheck
		resp.Body.Close()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "cannot connect to rosbridge at %s", url)
	}
	c := &Client{
		conn:       conn,
		logger:     logger.WithFields("url", url),
		handlers:   map[string][]Handler{},
		advertised: map[string]string{},
		done:       make(chan struct{}),
	}
	c.workers = utils.NewStoppableWorkers(c.readLoop)
	return c, nil
}

// Subscribe asks the server for messages on topic and routes each to handler.
func (c *Client) Subscribe(ctx context.Context, topic, msgType string, handler Handler) error {
	c.mu.Lock()
	c.handlers[topic] = append(c.handlers[topic], handler)
	c.mu.Unlock()
	return c.write(ctx, envelope{Op: "subscribe", ID: c.nextID("subscribe"), Topic: topic, Type: msgType})
}

// Unsubscribe drops every handler for topic and tells the server to stop sending it.
func (c *Client) Unsubscribe(ctx context.Context, topic string) error {
	c.mu.Lock()
	delete(c.handlers, topic)
	c.mu.Unlock()
	return c.write(ctx, envelope{Op: "unsubscribe", ID: c.nextID("unsubscribe"), Topic: topic})
}

// Advertise declares that this client publishes msgType on topic.
func (c *Client) Advertise(ctx context.Context, topic, msgType string) error {
	c.mu.Lock()
	c.advertised[topic] = msgType
	c.mu.Unlock()
	return c.write(ctx, envelope{Op: "advertise", ID: c.nextID("advertise"), Topic: topic, Type: msgType})
}

// Publish sends msg, which must encode to the JSON form of the advertised type. Publishing on a
// topic that was never advertised fails.
func (c *Client) Publish(ctx context.Context, topic string, msg interface{}) error {
	c.mu.RLock()
	_, ok := c.advertised[topic]
	c.mu.RUnlock()
	if !ok {
		return utils.NewTopicNotBoundError(topic)
	}
	return c.write(ctx, publishOp{Op: "publish", Topic: topic, Msg: msg})
}

// Close shuts the connection and waits for the read goroutine to exit.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		c.writeMu.Lock()
		//nolint:errcheck
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		err = c.conn.Close()
		c.workers.Stop()
	})
	return err
}

// Done is closed once the connection stops delivering messages.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) nextID(op string) string {
	return fmt.Sprintf("%s:%d", op, c.ids.Add(1))
}

func (c *Client) write(ctx context.Context, op interface{}) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteTimeout)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return errors.Wrap(c.conn.WriteJSON(op), "rosbridge write failed")
}

func (c *Client) readLoop(ctx context.Context) {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closing.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.logger.Warnw("rosbridge connection lost", "error", err)
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Debugw("ignoring undecodable rosbridge frame", "error", err)
			continue
		}
		switch env.Op {
		case "publish":
			c.mu.RLock()
			handlers := c.handlers[env.Topic]
			c.mu.RUnlock()
			for _, handler := range handlers {
				handler(ctx, env.Msg)
			}
		case "status":
			c.logger.Infow("rosbridge status", "level", env.Level, "id", env.ID, "msg", string(env.Msg))
		default:
			c.logger.Debugw("ignoring rosbridge op", "op", env.Op)
		}
	}
}
