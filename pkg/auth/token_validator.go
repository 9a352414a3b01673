package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// TokenValidator abstracts token validation so the promotion endpoint does
// not depend on the signing scheme.
type TokenValidator interface {
	// ValidateToken validates a token and returns claims.
	// Returns error if token is invalid, expired, or malformed.
	ValidateToken(ctx context.Context, token string) (*Claims, error)

	// Name returns the validator name for logging/debugging
	Name() string
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

// AuthorizePromotion validates the request's bearer token and checks it was
// issued for node.
func AuthorizePromotion(r *http.Request, v TokenValidator, node string) (*Claims, error) {
	token, ok := BearerToken(r)
	if !ok {
		return nil, fmt.Errorf("%w: missing bearer token", ErrInvalidToken)
	}

	claims, err := v.ValidateToken(r.Context(), token)
	if err != nil {
		return nil, err
	}

	if claims.Node != node {
		return nil, fmt.Errorf("%w: %q", ErrWrongNode, claims.Node)
	}
	return claims, nil
}
