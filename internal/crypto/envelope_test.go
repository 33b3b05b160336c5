package crypto

import (
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"
)

func newTestCipher(t *testing.T) *MessageCipher {
	t.Helper()
	c, err := NewMessageCipher("test-secret")
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestEnvelopeRoundTrip(t *testing.T) {
	c := newTestCipher(t)

	for _, msg := range []string{"hello", "", "Hello \U0001F30D❤️ 日本語", strings.Repeat("A", 8000)} {
		ct, err := c.Encrypt(msg)
		if err != nil {
			t.Fatal(err)
		}
		if got := c.Decrypt(ct); got != msg {
			t.Fatalf("round trip: expected %q, got %q", msg, got)
		}
	}
}

func TestEnvelopeShape(t *testing.T) {
	c := newTestCipher(t)

	ct, err := c.Encrypt("shape")
	if err != nil {
		t.Fatal(err)
	}

	var env struct {
		IV      string `json:"iv"`
		Content string `json:"content"`
		AuthTag string `json:"authTag"`
	}
	if err := json.Unmarshal([]byte(ct), &env); err != nil {
		t.Fatalf("envelope is not JSON: %v", err)
	}

	iv, err := hex.DecodeString(env.IV)
	if err != nil || len(iv) != 12 {
		t.Fatalf("expected 12-byte hex iv, got %q", env.IV)
	}
	tag, err := hex.DecodeString(env.AuthTag)
	if err != nil || len(tag) != 16 {
		t.Fatalf("expected 16-byte hex auth tag, got %q", env.AuthTag)
	}
}

func TestEnvelopeRandomized(t *testing.T) {
	c := newTestCipher(t)

	ct1, _ := c.Encrypt("same")
	ct2, _ := c.Encrypt("same")
	if ct1 == ct2 {
		t.Fatal("ciphertexts should differ for same plaintext")
	}
}

func TestDecryptPlaintextPassthrough(t *testing.T) {
	c := newTestCipher(t)

	// Legacy records predating encryption come back unchanged.
	for _, raw := range []string{"just plain text", "", `{"iv":"zz","content":"zz","authTag":"zz"}`, `{"not":"an envelope"}`} {
		if got := c.Decrypt(raw); got != raw {
			t.Fatalf("expected %q unchanged, got %q", raw, got)
		}
	}
}

func TestDecryptTamperedPassthrough(t *testing.T) {
	c := newTestCipher(t)

	ct, err := c.Encrypt("secret")
	if err != nil {
		t.Fatal(err)
	}
	tampered := strings.Replace(ct, `"authTag":"`, `"authTag":"00`, 1)
	if got := c.Decrypt(tampered); got != tampered {
		t.Fatal("tampered envelope should be returned unchanged, not decrypted")
	}
}

func TestDecryptWrongKeyPassthrough(t *testing.T) {
	c1 := newTestCipher(t)
	c2, err := NewMessageCipher("other-secret")
	if err != nil {
		t.Fatal(err)
	}

	ct, err := c1.Encrypt("secret")
	if err != nil {
		t.Fatal(err)
	}
	if got := c2.Decrypt(ct); got != ct {
		t.Fatal("foreign envelope should be returned unchanged")
	}
}

func TestContentHashStable(t *testing.T) {
	if ContentHash("hello") != ContentHash("hello") {
		t.Fatal("hash must be deterministic")
	}
	if ContentHash("hello") == ContentHash("hello ") {
		t.Fatal("distinct content must hash differently")
	}
	if len(ContentHash("x")) != 64 {
		t.Fatal("expected hex SHA-256 digest")
	}
}
