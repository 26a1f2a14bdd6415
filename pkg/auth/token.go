package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims the host IdP issues for poolrun callers.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

// Validator validates HMAC-signed bearer tokens from the host IdP.
type Validator struct {
	secret []byte
}

// NewValidator creates a validator for the shared HMAC secret.
func NewValidator(secret []byte) *Validator {
	if len(secret) == 0 {
		return nil
	}
	return &Validator{secret: secret}
}

// Validate parses a token and returns the caller Principal. The subject
// claim is the caller identity.
func (v *Validator) Validate(tokenStr string) (Principal, error) {
	if v == nil {
		return Principal{}, fmt.Errorf("validator uninitialized")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil {
		return Principal{}, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return Principal{}, fmt.Errorf("invalid token")
	}
	return Principal{ID: claims.Subject, Roles: claims.Roles}, nil
}

// IssueToken signs a token for the given identity. Used by tests and local
// tooling; production tokens come from the host IdP.
func IssueToken(secret []byte, identity string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles: roles,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
