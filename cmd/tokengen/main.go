package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/eldtechnologies/peerlink/internal/crypto"
)

func main() {
	secret := flag.String("secret", os.Getenv("TOKEN_SECRET"), "Token signing secret")
	userID := flag.String("user", "", "User ID to mint a token for")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	if *secret == "" || *userID == "" {
		fmt.Fprintln(os.Stderr, "Usage: tokengen -user <user-id> [-secret <secret>] [-ttl 24h]")
		fmt.Fprintln(os.Stderr, "  Secret falls back to the TOKEN_SECRET environment variable")
		os.Exit(1)
	}

	token, err := crypto.SignToken([]byte(*secret), *userID, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
