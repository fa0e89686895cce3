package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"collab-hub/auth"
	"collab-hub/domain"
	"collab-hub/internal"

	"github.com/google/uuid"
)

// tokengen prints a development session token signed with JWT_SECRET.
func main() {
	userID := flag.String("user", "", "User id (random when empty)")
	username := flag.String("name", "", "Username")
	displayName := flag.String("display", "", "Display name")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	config, err := internal.Load(".env")
	if err != nil {
		log.Fatal(err)
	}
	if *userID == "" {
		*userID = uuid.NewString()
	}
	identity := domain.Identity{UserID: *userID, Username: *username, DisplayName: *displayName}
	if err := auth.ValidateIdentity(identity); err != nil {
		fmt.Fprintln(os.Stderr, "usage: tokengen -name <username> [-user <id>] [-ttl 24h]")
		log.Fatal(err)
	}

	token, err := auth.NewTokenIssuer(config.JwtSecret, config.JwtIssuer).GenerateToken(identity, *ttl)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(token)
}
