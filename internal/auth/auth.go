// Package auth issues and validates the bearer tokens agents present to
// the gateway. Tokens are HS256 JWTs signed with a shared secret; the
// subject claim is the agent identity the policy engine resolves.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "bastion"

// ErrNoSecret means auth was requested without a signing secret.
var ErrNoSecret = errors.New("auth secret not configured")

// IdentityClaims are the claims Bastion issues.
type IdentityClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// TokenManager signs and validates agent tokens with a shared HMAC
// secret.
type TokenManager struct {
	secret []byte
}

func NewTokenManager(secret string) (*TokenManager, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	return &TokenManager{secret: []byte(secret)}, nil
}

// Generate issues a token for one agent identity.
func (tm *TokenManager) Generate(agentID, role string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   agentID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
		Role: role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secret)
}

// Validate parses a token string and returns its claims. Anything but an
// HS256 token signed by our secret, from our issuer, and not yet expired
// is rejected.
func (tm *TokenManager) Validate(tokenString string) (*IdentityClaims, error) {
	claims := &IdentityClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return tm.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
