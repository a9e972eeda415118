package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAccessToken(t *testing.T) {
	tok, err := NewAccessToken("s3cret", Claims{Subject: "student-9", Role: "student", Email: "s9@college.edu"}, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.Exp, 5*time.Second)

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(tok.Token, claims, func(*jwt.Token) (interface{}, error) { return []byte("s3cret"), nil })
	require.NoError(t, err)
	assert.Equal(t, "student-9", claims["sub"])
	assert.Equal(t, "student", claims["role"])
	assert.Equal(t, "s9@college.edu", claims["email"])
}

func TestNewAccessToken_Rejects(t *testing.T) {
	_, err := NewAccessToken("", Claims{Subject: "x"}, time.Hour)
	assert.Error(t, err)
	_, err = NewAccessToken("s", Claims{}, time.Hour)
	assert.Error(t, err)
}
