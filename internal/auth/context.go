package auth

import (
	"context"
	"crypto/subtle"
	"strings"
)

type ownerKey struct{}

// WithOwner returns a copy of ctx carrying the authenticated owner id.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey{}, ownerID)
}

// OwnerFrom returns the owner id stored by WithOwner, or "" when the request
// is unauthenticated.
func OwnerFrom(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}

// TokenResolver maps bearer tokens to owner ids.
type TokenResolver struct {
	tokens map[string]string
}

// NewTokenResolver copies tokens (token -> owner id). Entries with an empty
// token or owner are ignored.
func NewTokenResolver(tokens map[string]string) *TokenResolver {
	r := &TokenResolver{tokens: make(map[string]string, len(tokens))}
	for tok, owner := range tokens {
		if tok != "" && owner != "" {
			r.tokens[tok] = owner
		}
	}
	return r
}

// Resolve returns the owner authenticated by token. Every configured token is
// compared in constant time.
func (r *TokenResolver) Resolve(token string) (string, bool) {
	if r == nil || token == "" {
		return "", false
	}
	var owner string
	for tok, o := range r.tokens {
		if subtle.ConstantTimeCompare([]byte(tok), []byte(token)) == 1 {
			owner = o
		}
	}
	return owner, owner != ""
}

// Len returns the number of configured tokens.
func (r *TokenResolver) Len() int {
	if r == nil {
		return 0
	}
	return len(r.tokens)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value. The scheme is matched case-insensitively.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
