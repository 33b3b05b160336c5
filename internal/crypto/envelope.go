package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const envelopeContext = "peerlink-msg-v1"

// envelope is the at-rest form of an encrypted message body. All three
// fields are hex-encoded; authTag is the 16-byte Poly1305 tag.
type envelope struct {
	IV      string `json:"iv"`
	Content string `json:"content"`
	AuthTag string `json:"authTag"`
}

// MessageCipher encrypts message bodies at rest with ChaCha20-Poly1305.
// The key is derived once from the configured secret via HKDF-SHA256.
type MessageCipher struct {
	key []byte
}

// NewMessageCipher derives the message key from secret.
func NewMessageCipher(secret string) (*MessageCipher, error) {
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(envelopeContext))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return &MessageCipher{key: key}, nil
}

// Encrypt seals plaintext with a random per-message nonce and returns the
// JSON envelope string stored in place of the plaintext.
func (c *MessageCipher) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)
	tagStart := len(sealed) - aead.Overhead()

	out, err := json.Marshal(envelope{
		IV:      hex.EncodeToString(nonce),
		Content: hex.EncodeToString(sealed[:tagStart]),
		AuthTag: hex.EncodeToString(sealed[tagStart:]),
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Decrypt is the exact inverse of Encrypt and is total: any input that
// does not parse as a well-formed envelope, or fails authentication, is
// returned unchanged. Legacy plaintext records and corrupted rows read
// back as-is instead of breaking the read path.
func (c *MessageCipher) Decrypt(stored string) string {
	var env envelope
	if err := json.Unmarshal([]byte(stored), &env); err != nil {
		return stored
	}
	if env.IV == "" || env.AuthTag == "" {
		return stored
	}

	nonce, err := hex.DecodeString(env.IV)
	if err != nil || len(nonce) != chacha20poly1305.NonceSize {
		return stored
	}
	content, err := hex.DecodeString(env.Content)
	if err != nil {
		return stored
	}
	tag, err := hex.DecodeString(env.AuthTag)
	if err != nil {
		return stored
	}

	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return stored
	}

	plaintext, err := aead.Open(nil, nonce, append(content, tag...), nil)
	if err != nil {
		return stored
	}
	return string(plaintext)
}

// ContentHash returns the hex SHA-256 digest of plaintext. The transport
// uses it to detect duplicate sends without comparing ciphertexts.
func ContentHash(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
