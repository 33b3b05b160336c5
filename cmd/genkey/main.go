package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Generates fresh secrets for TOKEN_SECRET and MESSAGE_SECRET.
func main() {
	token := make([]byte, 32)
	message := make([]byte, 32)
	if _, err := rand.Read(token); err != nil {
		panic(err)
	}
	if _, err := rand.Read(message); err != nil {
		panic(err)
	}

	fmt.Printf("TOKEN_SECRET=%s\n", base64.StdEncoding.EncodeToString(token))
	fmt.Printf("MESSAGE_SECRET=%s\n", base64.StdEncoding.EncodeToString(message))
}
