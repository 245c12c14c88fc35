package realtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated is returned when a stream request carries no usable
// credentials.
var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is the authenticated caller of a stream request.
type Identity struct {
	UserID string
	Name   string
	Role   string
}

// ScopeResolver computes the scopes a user may receive events for. Backed
// by the store's memberships read.
type ScopeResolver interface {
	ScopesForUser(ctx context.Context, userID string) ([]string, error)
}

// streamClaims is the token shape issued by the surrounding platform for
// stream access.
type streamClaims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator validates HS256 stream tokens signed with the shared
// platform secret.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Authenticate parses and validates a raw bearer token, returning the
// caller's identity. All failures collapse to ErrUnauthenticated so the
// handler leaks nothing about why a token was rejected.
func (a *Authenticator) Authenticate(raw string) (Identity, error) {
	if raw == "" {
		return Identity{}, ErrUnauthenticated
	}

	parsed, err := jwt.ParseWithClaims(raw, &streamClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(30*time.Second))
	if err != nil {
		return Identity{}, ErrUnauthenticated
	}

	claims, ok := parsed.Claims.(*streamClaims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return Identity{}, ErrUnauthenticated
	}

	return Identity{
		UserID: claims.UserID,
		Name:   claims.Name,
		Role:   claims.Role,
	}, nil
}
