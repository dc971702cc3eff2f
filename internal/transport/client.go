package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"workchat/internal/models"

	"github.com/gorilla/websocket"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Client maintains a single live websocket connection and dispatches
// inbound events through its Registry. The registry outlives the
// connection: Disconnect tears down the socket but keeps every
// registration, so a later Connect restores identical behavior without
// the caller re-subscribing.
type Client struct {
	url string
	reg *Registry

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func NewClient(socketURL string, reg *Registry) *Client {
	return &Client{
		url: socketURL,
		reg: reg,
	}
}

func (c *Client) On(kind EventKind, h Handler) Subscription {
	return c.reg.On(kind, h)
}

func (c *Client) Off(sub Subscription) {
	c.reg.Off(sub)
}

// Connect dials the socket endpoint authenticated by the bearer token.
// It is a no-op when a connection is already live. Connection drops
// after a successful dial surface as disconnect events, not errors.
func (c *Client) Connect(ctx context.Context, token string) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.conn != nil {
		// Lost the race against a concurrent Connect.
		c.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	c.conn = conn
	c.mu.Unlock()

	slog.Info("socket connected", "url", c.url)
	go c.readLoop(conn)
	c.reg.Dispatch(EventConnect, nil)

	return nil
}

// Disconnect tears down the live connection. The listener registry is
// intentionally preserved.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
		slog.Info("socket disconnected", "url", c.url)
		c.reg.Dispatch(EventDisconnect, nil)
	}
}

// Connected reports whether a connection is currently live.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Emit writes an event envelope on the current connection. Emitting
// while disconnected is a silent no-op: there is no queueing and
// callers must not assume delivery.
func (c *Client) Emit(kind EventKind, payload any) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return
	}

	c.writeMu.Lock()
	err := conn.WriteJSON(outEnvelope{Event: string(kind), Data: payload})
	c.writeMu.Unlock()

	if err != nil {
		slog.Warn("socket write failed", "event", kind, "error", err)
		c.dropConn(conn)
	}
}

func (c *Client) JoinConversation(conversationID string) {
	c.Emit(EventJoinConversation, conversationID)
}

func (c *Client) LeaveConversation(conversationID string) {
	c.Emit(EventLeaveConversation, conversationID)
}

func (c *Client) SendMessage(conversationID, content, clientID string) {
	c.Emit(EventSendMessage, models.SendPayload{
		ConversationID: conversationID,
		Content:        content,
		ClientID:       clientID,
	})
}

func (c *Client) Typing(conversationID, userID string, isTyping bool) {
	c.Emit(EventTyping, models.TypingPayload{
		ConversationID: conversationID,
		UserID:         userID,
		IsTyping:       isTyping,
	})
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			c.dropConn(conn)
			return
		}
		c.reg.Dispatch(EventKind(env.Event), env.Data)
	}
}

// dropConn clears the connection if it is still the current one and
// announces the disconnect. Stale drops from an already replaced
// connection are ignored.
func (c *Client) dropConn(conn *websocket.Conn) {
	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
	}
	c.mu.Unlock()

	if current {
		_ = conn.Close()
		slog.Info("socket disconnected", "url", c.url)
		c.reg.Dispatch(EventDisconnect, nil)
	}
}
