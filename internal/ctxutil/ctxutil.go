// Package ctxutil carries request identity between the HTTP server and the
// MCP tool handlers, which cannot import each other.
package ctxutil

import (
	"context"

	"github.com/ashita-ai/conductor/internal/auth"
)

type contextKey string

const (
	keyClaims        contextKey = "claims"
	keyAuthorization contextKey = "authorization"
)

// WithClaims returns a new context carrying the given claims.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, keyClaims, claims)
}

// ClaimsFromContext extracts the JWT claims from the context.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	if v, ok := ctx.Value(keyClaims).(*auth.Claims); ok {
		return v
	}
	return nil
}

// WithAuthorization stores the caller's raw Authorization header so it can
// be forwarded to downstream agents.
func WithAuthorization(ctx context.Context, header string) context.Context {
	return context.WithValue(ctx, keyAuthorization, header)
}

// AuthorizationFromContext returns the header stored by WithAuthorization.
func AuthorizationFromContext(ctx context.Context) string {
	v, _ := ctx.Value(keyAuthorization).(string)
	return v
}
