package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/peerlink/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 64 * 1024
	sendBufferSize = 64
)

// Client is one authenticated persistent connection. It implements
// presence.Conn. All writes to the socket go through the send channel and
// the write pump, keeping to gorilla's single-writer rule.
type Client struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan []byte
	log    zerolog.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

func newClient(id, userID string, conn *websocket.Conn, log zerolog.Logger) *Client {
	return &Client{
		id:     id,
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		log:    log.With().Str("conn", id).Str("user", userID).Logger(),
		closed: make(chan struct{}),
	}
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userID }

// Send queues an event frame for the write pump. A closed connection or a
// full buffer reports false and, for a full buffer, drops the connection:
// a client that cannot drain its socket is treated as gone.
func (c *Client) Send(event string, data any) bool {
	frame, err := encodeFrame(event, data)
	if err != nil {
		c.log.Error().Err(err).Str("event", event).Msg("encode frame")
		return false
	}

	select {
	case <-c.closed:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		c.log.Warn().Str("event", event).Msg("send buffer full, dropping connection")
		c.close()
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}

// writePump drains the send channel onto the socket and keeps the
// connection alive with pings. One goroutine per connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

func encodeFrame(event string, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = encoded
	}
	return json.Marshal(models.Frame{Event: event, Data: raw})
}
