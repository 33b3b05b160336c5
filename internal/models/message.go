package models

import "time"

// Message kinds accepted over the wire.
const (
	KindText     = "text"
	KindImage    = "image"
	KindDocument = "document"
	KindSystem   = "system"
)

// ValidKind reports whether k is a known message kind.
func ValidKind(k string) bool {
	switch k {
	case KindText, KindImage, KindDocument, KindSystem:
		return true
	}
	return false
}

// Message is a persisted direct message. At rest Body holds the encrypted
// envelope (see crypto.Encrypt); it is decrypted only at the delivery
// boundary, so a Message loaded from the store never carries plaintext.
type Message struct {
	ID             string     `json:"id"` // ULID
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	ReceiverID     string     `json:"receiver_id"`
	Body           string     `json:"body"`
	ContentHash    string     `json:"-"` // SHA-256 of plaintext, dedup key
	Kind           string     `json:"kind"`
	ReplyTo        string     `json:"reply_to,omitempty"`
	IsRead         bool       `json:"is_read"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	IsEdited       bool       `json:"is_edited"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
	Timestamp      int64      `json:"ts"` // Unix ms
}

// Clone returns a copy of m. Delivery paths clone before decrypting so the
// stored ciphertext form is never mutated in place.
func (m *Message) Clone() *Message {
	c := *m
	return &c
}
