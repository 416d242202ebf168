package auth

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dinhduclinh/sever-retrotrade/internal/apperr"
)

// Claims is the token payload issued by the account service. Tokens carry
// either the primary id or the public guid; identity resolution prefers
// the primary id.
type Claims struct {
	UserID   string `json:"_id,omitempty"`
	UserGuid string `json:"userGuid,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the stable identity carried by the token.
func (c *Claims) Identity() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.UserGuid
}

type Authenticator struct {
	secret []byte
}

func New(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// ParseBearer extracts the token from an "Authorization: Bearer <token>" value.
func ParseBearer(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header empty")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", errors.New("invalid authorization header format")
	}
	return parts[1], nil
}

// Verify validates signature and expiry and returns the claims.
func (a *Authenticator) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Identity() == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Authenticate resolves a credential from the Authorization header or, when
// absent, a query-carried token, then verifies it. EventSource clients cannot
// set custom headers, so the query fallback is required on the SSE route.
func (a *Authenticator) Authenticate(authHeader, queryToken string) (*Claims, error) {
	token := queryToken
	if authHeader != "" {
		if t, err := ParseBearer(authHeader); err == nil {
			token = t
		}
	}
	if token == "" {
		return nil, apperr.ErrUnauthorized
	}
	claims, err := a.Verify(token)
	if err != nil {
		return nil, apperr.ErrUnauthorized
	}
	return claims, nil
}
