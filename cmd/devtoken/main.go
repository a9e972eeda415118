// Command devtoken prints a bearer token for calling the API locally.
//
//	devtoken -sub student-1 -email s1@college.edu
//	devtoken -sub office -role admin -ttl 1h
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/college-bus-booking/internal/token"
)

func main() {
	sub := flag.String("sub", "", "holder id (required)")
	role := flag.String("role", "student", "role claim")
	email := flag.String("email", "", "email claim")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}

	tok, err := token.NewAccessToken(secret, token.Claims{Subject: *sub, Role: *role, Email: *email}, *ttl)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(tok.Token)
}
