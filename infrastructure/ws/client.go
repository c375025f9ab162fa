// Package ws is the websocket transport adapter. It owns connection
// lifecycle and framing; everything above it reasons in connection ids and
// outbound events.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chat-hub/domain/chat"
	"chat-hub/domain/event"
	"chat-hub/errors"
)

const writeWait = 5 * time.Second

// envelope is the outbound wire frame: the event name the client switches
// on plus the event payload.
type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Client is one live websocket connection. Consume never blocks: frames go
// through a buffered send channel drained by the write pump, and a full
// buffer is reported as backpressure so fan-out can move on.
type Client struct {
	id   chat.ConnID
	log  *slog.Logger
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func NewClient(log *slog.Logger, conn *websocket.Conn, bufferSize int) *Client {
	return &Client{
		id:   chat.ConnID(uuid.NewString()),
		log:  log,
		conn: conn,
		send: make(chan []byte, bufferSize),
	}
}

func (c *Client) ID() chat.ConnID { return c.id }

// Consume implements contract.EventSink.
func (c *Client) Consume(_ context.Context, e event.Outbound) error {
	data, err := json.Marshal(envelope{Event: e.Kind(), Data: e})
	if err != nil {
		return err
	}
	return c.trySend(data)
}

func (c *Client) trySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.ErrConnectionClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errors.ErrBackpressure
	}
}

// Close is safe to call from any goroutine and more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

// writePump drains the send channel to the network. It owns all writes to
// the underlying connection.
func (c *Client) writePump(ctx context.Context) {
	defer c.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.log.Debug("write deadline failed", "conn", c.id, "error", err)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug("write failed, closing connection", "conn", c.id, "error", err)
				return
			}
		}
	}
}

// readPump forwards inbound frames to handle until the connection dies.
// It runs on the caller's goroutine; its return is the disconnect signal.
func (c *Client) readPump(ctx context.Context, handle func(data []byte)) {
	defer c.Close()
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				c.log.Debug("read stopped", "conn", c.id, "error", err)
				return
			}
			handle(data)
		}
	}
}
