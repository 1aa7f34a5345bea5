// Package client is a small Go client for the reverser WebSocket endpoint.
//
//	c, err := client.NewClient().WithURL("ws://localhost:5000/ws").Build()
//	if err != nil { ... }
//	if err := c.Dial(ctx); err != nil { ... }
//	defer c.Close()
//
//	reversed, err := c.Reverse(ctx, "hello") // "olleh"
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/tsarna/reverser/pkg/reverser/wire"
	"go.uber.org/zap"
)

// ErrClosed is returned when the client is used without a live connection.
var ErrClosed = errors.New("client is not connected")

// Client sends input events and waits for the matching response. Calls to
// Reverse are serialized, so each one owns the connection until its reply
// arrives.
type Client struct {
	url         string
	logger      *zap.Logger
	dialTimeout time.Duration
	event       string
	headers     http.Header

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID int64
}

// Dial establishes the WebSocket connection.
func (c *Client) Dial(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return fmt.Errorf("client is already connected")
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, c.url, &websocket.DialOptions{
		HTTPHeader: c.headers,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	c.conn = conn
	c.logger.Debug("Reverser client connected", zap.String("url", c.url))
	return nil
}

// Reverse sends text and returns the server's reversal of it. Frames that
// are not the response to this request are skipped. Any I/O error, including
// ctx ending, drops the connection; Dial again to continue.
func (c *Client) Reverse(ctx context.Context, text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return "", ErrClosed
	}

	msg, err := wire.NewMessage(c.event, wire.InputPayload{Text: &text})
	if err != nil {
		return "", err
	}
	c.nextID++
	id := c.nextID
	msg.Id = id

	data, err := wire.Encode(msg)
	if err != nil {
		return "", fmt.Errorf("failed to encode input: %w", err)
	}

	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.drop()
		return "", fmt.Errorf("failed to send input: %w", err)
	}

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			c.drop()
			return "", fmt.Errorf("failed to read response: %w", err)
		}

		reply, err := wire.Decode(data)
		if err != nil {
			c.logger.Warn("Ignoring undecodable frame", zap.Error(err))
			continue
		}
		if reply.Event != wire.EventResponse || !matchesID(reply.Id, id) {
			c.logger.Debug("Ignoring unrelated frame",
				zap.String("event", reply.Event),
				zap.Any("id", reply.Id))
			continue
		}

		var payload wire.ResponsePayload
		if err := json.Unmarshal(reply.Data, &payload); err != nil {
			return "", fmt.Errorf("invalid response payload: %w", err)
		}
		return payload.Reversed, nil
	}
}

// Close closes the connection with a normal closure. Closing a client that
// is not connected is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	err := c.conn.Close(websocket.StatusNormalClosure, "client disconnect")
	c.conn = nil
	c.logger.Debug("Reverser client disconnected", zap.String("url", c.url))
	return err
}

// drop discards a connection that failed mid-request. Callers hold c.mu.
func (c *Client) drop() {
	c.conn.CloseNow()
	c.conn = nil
}

// matchesID compares an echoed id with the one that was sent. JSON numbers
// decode as float64.
func matchesID(echoed any, sent int64) bool {
	n, ok := echoed.(float64)
	return ok && n == float64(sent)
}
