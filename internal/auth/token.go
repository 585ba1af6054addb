// Package auth verifies the identity tokens presented on the push-channel
// handshake and the REST surface. Token issuance belongs to the marketplace
// identity service; this side only validates.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"LegalWise/internal/model"
)

var (
	ErrInvalidToken = errors.New("invalid identity token")
	ErrExpiredToken = errors.New("identity token expired")
)

// Identity is the verified subject of a token: who they are and which side
// of a consultation they sit on. Call sites always receive identity
// explicitly; it is never inferred from ambient request state.
type Identity struct {
	ID   string
	Role string
}

// Verifier validates an identity token before any frame or request is
// processed on its behalf.
type Verifier interface {
	Verify(token string) (*Identity, error)
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HMAC-signed tokens.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(token string) (*Identity, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || c.Subject == "" {
		return nil, ErrInvalidToken
	}
	if c.Role != model.RoleClient && c.Role != model.RoleLawyer {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, c.Role)
	}

	return &Identity{ID: c.Subject, Role: c.Role}, nil
}

// Mint signs a token for a participant. Production tokens come from the
// identity service; this is used by tests and local tooling.
func Mint(secret, subject, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString([]byte(secret))
}
