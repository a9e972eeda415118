// Package token mints access tokens in the shape the college auth provider
// issues them.  The API only verifies tokens; minting exists for local
// development and tests.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessToken is a signed JWT and its expiry.
type AccessToken struct {
	Token string
	Exp   time.Time
}

// Claims describe the caller.  Subject becomes the seat holder id.
type Claims struct {
	Subject string
	Role    string
	Email   string
}

// NewAccessToken signs an HS256 token valid for ttl.
func NewAccessToken(secret string, c Claims, ttl time.Duration) (AccessToken, error) {
	if secret == "" {
		return AccessToken{}, errors.New("token: empty secret")
	}
	if c.Subject == "" {
		return AccessToken{}, errors.New("token: empty subject")
	}
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub": c.Subject,
		"exp": exp.Unix(),
		"iat": now.Unix(),
	}
	if c.Role != "" {
		claims["role"] = c.Role
	}
	if c.Email != "" {
		claims["email"] = c.Email
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: s, Exp: exp}, nil
}
