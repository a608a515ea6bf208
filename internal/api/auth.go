package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const ctxClaimsKey = "auth_claims"

// Claims are the bearer token claims the API reads. The editor is
// preferred_username, falling back to sub.
type Claims struct {
	PreferredUsername string   `json:"preferred_username,omitempty"`
	Roles             []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Editor returns the name recorded as the author of a change
func (c *Claims) Editor() string {
	if c == nil {
		return ""
	}
	if c.PreferredUsername != "" {
		return c.PreferredUsername
	}
	return c.Subject
}

// TokenService signs and verifies HS256 tokens
type TokenService struct {
	Secret   []byte
	Issuer   string
	Duration time.Duration
}

// Sign issues a token for subject carrying roles
func (ts TokenService) Sign(subject string, roles []string) (string, error) {
	now := time.Now()
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   ts.Issuer,
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ts.Duration > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ts.Duration))
	}

	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ts.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

// Parse verifies a token and returns its claims
func (ts TokenService) Parse(tokenString string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ts.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

func bearer(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	if len(h) < len("Bearer ") || !strings.EqualFold(h[:len("Bearer ")], "bearer ") {
		return "", false
	}
	return strings.TrimSpace(h[len("Bearer "):]), true
}

// optionalAuth attaches claims when a valid token is present. Invalid
// tokens are rejected; missing tokens pass as anonymous.
func optionalAuth(tokens TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearer(c)
		if !ok {
			c.Next()
			return
		}
		claims, err := tokens.Parse(raw)
		if err != nil {
			abortJSON(c, http.StatusUnauthorized, "auth_failed", "invalid token")
			return
		}
		c.Set(ctxClaimsKey, claims)
		c.Next()
	}
}

// requireAuth rejects requests without a valid bearer token
func requireAuth(tokens TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearer(c)
		if !ok {
			abortJSON(c, http.StatusUnauthorized, "auth_failed", "missing or invalid Authorization header")
			return
		}
		claims, err := tokens.Parse(raw)
		if err != nil {
			abortJSON(c, http.StatusUnauthorized, "auth_failed", "invalid token")
			return
		}
		c.Set(ctxClaimsKey, claims)
		c.Next()
	}
}

func claimsOf(c *gin.Context) *Claims {
	v, ok := c.Get(ctxClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*Claims)
	return claims
}

func rolesOf(c *gin.Context) []string {
	if claims := claimsOf(c); claims != nil {
		return claims.Roles
	}
	return nil
}
