package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Context keys set by JWTAuth.
const (
	KeyHolderID = "holder_id"
	KeyEmail    = "email"
	KeyRole     = "role"
)

// JWTAuth validates an HS256 Bearer token issued by the college's auth
// provider.  The subject becomes the seat holder id; the optional email and
// role claims are stored alongside it.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			claims := jwt.MapClaims{}
			tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, echo.ErrUnauthorized
				}
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			sub, err := claims.GetSubject()
			if err != nil || sub == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			}
			c.Set(KeyHolderID, sub)
			if v, ok := claims["email"].(string); ok {
				c.Set(KeyEmail, v)
			}
			if v, ok := claims["role"].(string); ok {
				c.Set(KeyRole, v)
			}
			return next(c)
		}
	}
}

// HolderID returns the authenticated holder, or "" on public routes.
func HolderID(c echo.Context) string {
	s, _ := c.Get(KeyHolderID).(string)
	return s
}

// Email returns the email claim of the caller, if any.
func Email(c echo.Context) string {
	s, _ := c.Get(KeyEmail).(string)
	return s
}
