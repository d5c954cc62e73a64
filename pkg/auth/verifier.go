// Package auth verifies bearer tokens on the MCP endpoint. Verification
// is optional: sidecar deployments usually run with it disabled.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates bearer JWTs. Exactly one of the two modes is
// active: HS256 with a shared secret, or RS256 against a JWKS endpoint.
type Verifier struct {
	secret []byte
	jwks   keyfunc.Keyfunc
}

// Config selects the verification mode. SharedSecret wins when both are
// set.
type Config struct {
	SharedSecret string
	JWKSURL      string
}

// NewVerifier creates a Verifier, fetching the JWKS when configured.
// Returns nil when neither mode is configured (auth disabled).
func NewVerifier(ctx context.Context, cfg Config) (*Verifier, error) {
	if cfg.SharedSecret != "" {
		return &Verifier{secret: []byte(cfg.SharedSecret)}, nil
	}
	if cfg.JWKSURL != "" {
		jwks, err := keyfunc.NewDefaultCtx(ctx, []string{cfg.JWKSURL})
		if err != nil {
			return nil, fmt.Errorf("failed to load JWKS from %s: %w", cfg.JWKSURL, err)
		}
		return &Verifier{jwks: jwks}, nil
	}
	return nil, nil
}

// Claims are the token claims the engine cares about.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// Verify parses and validates a token string and returns its claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	var token *jwt.Token
	var err error

	if v.secret != nil {
		token, err = jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return v.secret, nil
		})
	} else {
		token, err = jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return v.jwks.Keyfunc(t)
		})
	}
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

type contextKey struct{}

// WithClaims stores verified claims in the context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}

// GetClaims returns the verified claims from the context, if any.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(contextKey{}).(*Claims)
	return claims, ok
}
