// Package client is a thin signaling-protocol client used by the test
// suite to dial and drive a session the way a real peer would.
package client

import (
	"context"
	"net/http"
	"time"

	"sevenquiz-backend/api"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

var defaultTimeout = 5 * time.Second

type Client struct {
	conn    *websocket.Conn
	timeout time.Duration
}

func NewClient(conn *websocket.Conn, timeout time.Duration) *Client {
	return &Client{conn: conn, timeout: timeout}
}

// Dial upgrades u (expected to end in /{token}) to a WebSocket connection.
func Dial(ctx context.Context, u string, opts *websocket.DialOptions) (*Client, *http.Response, error) {
	conn, res, err := websocket.Dial(ctx, u, opts)
	if err != nil {
		return nil, nil, err
	}
	return &Client{conn: conn, timeout: defaultTimeout}, res, nil
}

func (c *Client) Close() {
	c.conn.Close(websocket.StatusNormalClosure, "client closure")
}

func (c *Client) SendSignal(receiver string, data any) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	msg := api.ClientMessage{Signal: &api.SignalPayload{Receiver: receiver, Data: data}}
	return wsjson.Write(ctx, c.conn, msg)
}

func (c *Client) SendKeepAlive() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return wsjson.Write(ctx, c.conn, "KeepAlive")
}

// ReadServerMessage blocks until the server sends a message or the read
// times out.
func (c *Client) ReadServerMessage() (api.ServerMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	var msg api.ServerMessage
	err := wsjson.Read(ctx, c.conn, &msg)
	return msg, err
}

// ReadServerMessageWithTimeout is ReadServerMessage with a caller-chosen
// deadline, used by tests that need to assert the absence of a message.
func (c *Client) ReadServerMessageWithTimeout(timeout time.Duration) (api.ServerMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	var msg api.ServerMessage
	err := wsjson.Read(ctx, c.conn, &msg)
	return msg, err
}
