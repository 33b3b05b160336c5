package models

import "encoding/json"

// Event names on the persistent connection. Client-to-server events run a
// handler; server-to-client events are fan-out notifications.
const (
	// Chat
	EventSendMessage    = "send_message"
	EventReceiveMessage = "receive_message"
	EventMessageSent    = "message_sent"
	EventMarkAsRead     = "mark_as_read"
	EventMessageRead    = "message_read"
	EventTyping         = "typing"

	// Presence
	EventUserOnline  = "presence:online"
	EventUserOffline = "presence:offline"

	// Call invitation handshake
	EventCallInitiate  = "call:initiate"
	EventCallIncoming  = "call:incoming"
	EventCallAccept    = "call:accept"
	EventCallAccepted  = "call:accepted"
	EventCallDecline   = "call:decline"
	EventCallDeclined  = "call:declined"
	EventCallFailed    = "call:failed"
	EventCallCancelled = "call:cancelled"

	// Room signaling
	EventRTCJoin       = "webrtc:join"
	EventRTCJoined     = "webrtc:joined"
	EventRTCFull       = "webrtc:full"
	EventRTCReady      = "webrtc:ready"
	EventRTCInit       = "webrtc:init"
	EventRTCPeerJoined = "webrtc:peer-joined"
	EventRTCPeerLeft   = "webrtc:peer-left"
	EventRTCOffer      = "webrtc:offer"
	EventRTCAnswer     = "webrtc:answer"
	EventRTCIce        = "webrtc:ice"
	EventRTCLeave      = "webrtc:leave"

	EventError = "error"
)

// Frame is the wire shape of every event in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Error codes carried in ErrorPayload.
const (
	CodeRecipientNotFound = "RECIPIENT_NOT_FOUND"
	CodeRoomFull          = "ROOM_FULL"
	CodeCallFailed        = "CALL_FAILED"
	CodeBadPayload        = "BAD_PAYLOAD"
)

// SendMessagePayload is the client request for send_message.
type SendMessagePayload struct {
	ReceiverID  string `json:"receiverId"`
	Content     string `json:"content"`
	MessageType string `json:"messageType,omitempty"`
	ReplyTo     string `json:"replyTo,omitempty"`
}

// MarkReadPayload is the client request for mark_as_read.
type MarkReadPayload struct {
	MessageID string `json:"messageId"`
}

// MessageReadPayload notifies the original sender of a read receipt.
type MessageReadPayload struct {
	MessageID string `json:"messageId"`
	ReaderID  string `json:"readerId"`
}

// TypingPayload is relayed ephemerally, never persisted.
type TypingPayload struct {
	SenderID   string `json:"senderId,omitempty"`
	ReceiverID string `json:"receiverId"`
	IsTyping   bool   `json:"isTyping"`
}

// PresencePayload announces a user coming online or going offline.
// LastSeen is set only on offline.
type PresencePayload struct {
	UserID   string `json:"userId"`
	LastSeen int64  `json:"lastSeen,omitempty"` // Unix ms
}

// CallInitiatePayload is the client request for call:initiate.
type CallInitiatePayload struct {
	UserID   string `json:"userId"` // callee
	RoomID   string `json:"roomId"`
	CallType string `json:"callType"` // "audio" or "video"
}

// CallEventPayload carries call handshake notifications in both directions.
type CallEventPayload struct {
	CallerID string `json:"callerId,omitempty"`
	CalleeID string `json:"calleeId,omitempty"`
	RoomID   string `json:"roomId"`
	CallType string `json:"callType,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// RoomPayload identifies a signaling room for join/leave and the
// membership notifications.
type RoomPayload struct {
	RoomID string `json:"roomId"`
}

// SignalPayload carries SDP or ICE data through the relay. SDP and
// Candidate are opaque: the server forwards them verbatim.
type SignalPayload struct {
	RoomID    string          `json:"roomId"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// ErrorPayload reports a per-event failure back to the requesting
// connection. Nothing in this core is fatal to the process.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
