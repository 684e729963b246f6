package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/carelink/clinic-chat-go/internal/auth"
	"github.com/carelink/clinic-chat-go/internal/model"
)

// Mints an identity token the way the identity service does, for local
// testing against a dev server. The secret comes from the environment so it
// never lands in shell history.
func main() {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "Usage: IDENTITY_JWT_SECRET=... go run scripts/mint-token.go <identity-id> <patient|staff> [ttl]\n")
		os.Exit(1)
	}

	secret := os.Getenv("IDENTITY_JWT_SECRET")
	if secret == "" {
		fmt.Fprintf(os.Stderr, "Error: IDENTITY_JWT_SECRET is not set\n")
		os.Exit(1)
	}

	id, err := strconv.ParseInt(os.Args[1], 10, 64)
	if err != nil || id <= 0 {
		fmt.Fprintf(os.Stderr, "Error: identity id must be a positive integer\n")
		os.Exit(1)
	}

	kind := model.IdentityKind(os.Args[2])
	if !kind.Valid() {
		fmt.Fprintf(os.Stderr, "Error: kind must be patient or staff\n")
		os.Exit(1)
	}

	ttl := time.Hour
	if len(os.Args) > 3 {
		ttl, err = time.ParseDuration(os.Args[3])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	token, err := auth.SignIdentityToken(secret, "carelink-identity", model.Identity{ID: id, Kind: kind}, ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
