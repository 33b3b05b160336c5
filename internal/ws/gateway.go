// Package ws is the connection gate and event dispatcher: it
// authenticates each persistent-connection attempt before any event
// handler runs, keeps the Presence Registry current, and routes frames to
// the chat transport and the call signaling components.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/peerlink/internal/call"
	"github.com/eldtechnologies/peerlink/internal/chat"
	"github.com/eldtechnologies/peerlink/internal/crypto"
	"github.com/eldtechnologies/peerlink/internal/metrics"
	"github.com/eldtechnologies/peerlink/internal/models"
	"github.com/eldtechnologies/peerlink/internal/presence"
	"github.com/eldtechnologies/peerlink/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Browser clients connect from the platform's own origins; CORS for
	// the REST surface is handled by the router, and the token is the
	// actual gate here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Gateway upgrades, authenticates and serves persistent connections.
type Gateway struct {
	secret   []byte
	registry *presence.Registry
	chat     *chat.Service
	calls    *call.Coordinator
	rooms    *call.Rooms
	store    store.DataStore
	redis    *store.RedisStore
	log      zerolog.Logger
}

func NewGateway(secret []byte, registry *presence.Registry, chatSvc *chat.Service, calls *call.Coordinator, rooms *call.Rooms, ds store.DataStore, redis *store.RedisStore, log zerolog.Logger) *Gateway {
	return &Gateway{
		secret:   secret,
		registry: registry,
		chat:     chatSvc,
		calls:    calls,
		rooms:    rooms,
		store:    ds,
		redis:    redis,
		log:      log.With().Str("component", "gateway").Logger(),
	}
}

// ServeHTTP handles GET /ws. The bearer credential comes from the
// ?token query parameter or the Authorization header; a malformed or
// expired token rejects the attempt with 401 before any event handler
// runs, and no state is created.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}

	userID, err := crypto.VerifyToken(g.secret, token)
	if err != nil {
		metrics.AuthFailures.Inc()
		g.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("connection rejected")
		http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		g.log.Debug().Err(err).Msg("upgrade failed")
		return
	}

	client := newClient(crypto.NewConnectionID(), userID, conn, g.log)
	go client.writePump()

	g.registry.Register(client)
	metrics.Connections.Inc()
	metrics.OnlineUsers.Set(float64(len(g.registry.Online())))
	g.registry.Broadcast(models.EventUserOnline, models.PresencePayload{UserID: userID}, client.ID())
	g.log.Info().Str("user", userID).Str("conn", client.ID()).Msg("connected")

	g.readLoop(client)
	g.disconnect(client)
}

func (g *Gateway) readLoop(c *Client) {
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("read error")
			}
			return
		}

		var frame models.Frame
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Event == "" {
			c.Send(models.EventError, models.ErrorPayload{Code: models.CodeBadPayload, Message: "malformed frame"})
			continue
		}
		g.dispatch(c, frame)
	}
}

// dispatch runs one event handler to completion. Handler failures are
// scoped to this connection: they answer with an error event and the
// loop keeps reading.
func (g *Gateway) dispatch(c *Client, frame models.Frame) {
	switch frame.Event {
	case models.EventSendMessage:
		var p models.SendMessagePayload
		if !decode(c, frame.Data, &p) {
			return
		}
		g.handleSendMessage(c, p)

	case models.EventMarkAsRead:
		var p models.MarkReadPayload
		if !decode(c, frame.Data, &p) {
			return
		}
		if err := g.chat.MarkRead(context.Background(), p.MessageID, c.UserID()); err != nil {
			c.log.Error().Err(err).Str("message", p.MessageID).Msg("mark read")
		}

	case models.EventTyping:
		var p models.TypingPayload
		if !decode(c, frame.Data, &p) {
			return
		}
		g.chat.Typing(c.UserID(), p.ReceiverID, p.IsTyping)

	case models.EventCallInitiate:
		var p models.CallInitiatePayload
		if !decode(c, frame.Data, &p) {
			return
		}
		g.calls.Initiate(c.UserID(), p.UserID, p.RoomID, p.CallType)

	case models.EventCallAccept:
		var p models.CallEventPayload
		if !decode(c, frame.Data, &p) {
			return
		}
		g.calls.Accept(p.RoomID, p.CallerID, c.UserID())

	case models.EventCallDecline:
		var p models.CallEventPayload
		if !decode(c, frame.Data, &p) {
			return
		}
		g.calls.Decline(p.RoomID, p.CallerID, c.UserID())

	case models.EventRTCJoin:
		var p models.RoomPayload
		if !decode(c, frame.Data, &p) {
			return
		}
		g.rooms.Join(c, p.RoomID)

	case models.EventRTCOffer, models.EventRTCAnswer, models.EventRTCIce:
		var p models.SignalPayload
		if !decode(c, frame.Data, &p) {
			return
		}
		g.rooms.Relay(c, p.RoomID, frame.Event, p.SDP, p.Candidate)

	case models.EventRTCLeave:
		var p models.RoomPayload
		if !decode(c, frame.Data, &p) {
			return
		}
		g.rooms.Leave(c, p.RoomID)

	default:
		c.Send(models.EventError, models.ErrorPayload{Code: models.CodeBadPayload, Message: "unknown event " + frame.Event})
	}
}

func (g *Gateway) handleSendMessage(c *Client, p models.SendMessagePayload) {
	msg, duplicate, err := g.chat.Send(context.Background(), c.UserID(), p.ReceiverID, p.Content, p.MessageType, p.ReplyTo)
	if err != nil {
		code := models.CodeBadPayload
		if errors.Is(err, chat.ErrRecipientNotFound) {
			code = models.CodeRecipientNotFound
		}
		c.Send(models.EventError, models.ErrorPayload{Code: code, Message: err.Error()})
		return
	}

	if duplicate {
		// The original send already delivered; ack idempotently with the
		// same message so both paths observe one identifier.
		c.Send(models.EventMessageSent, msg)
		return
	}
	metrics.MessagesSent.WithLabelValues("ws").Inc()
}

// disconnect tears down everything the connection touched: signaling
// rooms first (peers get webrtc:peer-left per room), then pending calls,
// then the registry. A disconnect mid-send does not abort persistence,
// only delivery.
func (g *Gateway) disconnect(c *Client) {
	c.close()
	g.rooms.LeaveAll(c)

	last := g.registry.Deregister(c)
	metrics.Connections.Dec()
	metrics.OnlineUsers.Set(float64(len(g.registry.Online())))

	if last {
		g.calls.CancelByUser(c.UserID())

		now := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.store.UpdateLastSeen(ctx, c.UserID(), now); err != nil {
			g.log.Error().Err(err).Str("user", c.UserID()).Msg("persist last seen")
		}
		if g.redis != nil {
			g.redis.CacheLastSeen(ctx, c.UserID(), now)
		}

		g.registry.Broadcast(models.EventUserOffline, models.PresencePayload{
			UserID:   c.UserID(),
			LastSeen: now.UnixMilli(),
		}, c.ID())
	}

	g.log.Info().Str("user", c.UserID()).Str("conn", c.ID()).Bool("last", last).Msg("disconnected")
}

func decode(c *Client, raw json.RawMessage, v any) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		c.Send(models.EventError, models.ErrorPayload{Code: models.CodeBadPayload, Message: "malformed payload"})
		return false
	}
	return true
}
