// Package peerlink provides a Go client for the peerlink realtime core:
// the WebSocket event connection plus the synchronous REST fallbacks.
package peerlink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client talks to a peerlink server. REST calls work without Connect;
// event delivery requires a live connection.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client

	mu       sync.Mutex
	conn     *websocket.Conn
	handlers map[string]func(json.RawMessage)
	done     chan struct{}
}

// Frame mirrors the server's wire shape.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewClient creates a new peerlink client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		handlers:   make(map[string]func(json.RawMessage)),
	}
}

// On registers a handler for a server event. Must be called before
// Connect; handlers run on the read goroutine, one at a time.
func (c *Client) On(event string, handler func(json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = handler
}

// Connect opens the persistent connection and starts dispatching events.
func (c *Client) Connect() error {
	wsURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return err
	}
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = "/ws"
	wsURL.RawQuery = url.Values{"token": {c.Token}}.Encode()

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("connect: token rejected")
		}
		return fmt.Errorf("connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

// Close shuts the persistent connection down.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Done is closed when the connection ends for any reason.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		if c.done != nil {
			close(c.done)
			c.done = nil
		}
		c.mu.Unlock()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		c.mu.Lock()
		handler := c.handlers[frame.Event]
		c.mu.Unlock()
		if handler != nil {
			handler(frame.Data)
		}
	}
}

// Emit sends an event over the persistent connection.
func (c *Client) Emit(event string, data any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("emit: not connected")
	}

	var raw json.RawMessage
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return err
		}
		raw = encoded
	}
	frame, err := json.Marshal(Frame{Event: event, Data: raw})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("emit: not connected")
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// SendMessage sends a chat message over the event connection.
func (c *Client) SendMessage(receiverID, content, messageType string) error {
	return c.Emit("send_message", map[string]string{
		"receiverId":  receiverID,
		"content":     content,
		"messageType": messageType,
	})
}

// MarkRead acknowledges a received message.
func (c *Client) MarkRead(messageID string) error {
	return c.Emit("mark_as_read", map[string]string{"messageId": messageID})
}

// InitiateCall rings another user.
func (c *Client) InitiateCall(userID, roomID, callType string) error {
	return c.Emit("call:initiate", map[string]string{
		"userId":   userID,
		"roomId":   roomID,
		"callType": callType,
	})
}

// JoinRoom enters a signaling room after a call has been accepted.
func (c *Client) JoinRoom(roomID string) error {
	return c.Emit("webrtc:join", map[string]string{"roomId": roomID})
}

// PostMessage sends a chat message through the synchronous REST path.
// It triggers the same transport algorithm as SendMessage; resending the
// same content within the dedup window returns the original message.
func (c *Client) PostMessage(receiverID, content, messageType string) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]string{
		"receiverId":  receiverID,
		"content":     content,
		"messageType": messageType,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("post message: HTTP %d: %s", resp.StatusCode, data)
	}
	return data, nil
}

// History fetches the decrypted conversation with another user.
func (c *Client) History(userID string, limit int) (json.RawMessage, error) {
	u := fmt.Sprintf("%s/conversations/%s?limit=%d", c.BaseURL, url.PathEscape(userID), limit)
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history: HTTP %d: %s", resp.StatusCode, data)
	}
	return data, nil
}
