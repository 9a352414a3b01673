// Package auth signs and verifies the short-lived bearer tokens that can
// guard a node's promotion endpoint. Both sides share one HS256 secret.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token has expired")
	ErrInvalidClaims = errors.New("invalid token claims")
	ErrEmptyNode     = errors.New("target node cannot be empty")
	ErrEmptyIssuer   = errors.New("issuer cannot be empty")
	ErrWrongNode     = errors.New("token was issued for another node")
	ErrShortSecret   = errors.New("secret must be at least 32 characters")
)

// ActionPromote is the only action a promotion token authorizes
const ActionPromote = "promote"

// Claims represents promotion token claims
type Claims struct {
	ID        string    `json:"jti"`
	Issuer    string    `json:"iss"`
	Node      string    `json:"node"`
	Action    string    `json:"action"`
	ExpiresAt time.Time `json:"expires_at"`
	IssuedAt  time.Time `json:"issued_at"`
}

// JWTManager manages promotion token generation and validation
type JWTManager struct {
	secretKey     []byte
	tokenDuration time.Duration
}

// NewJWTManager creates a new JWT manager.
// Returns an error if the secret is shorter than 32 characters.
func NewJWTManager(secret string, tokenDuration time.Duration) (*JWTManager, error) {
	if len(secret) < 32 {
		return nil, ErrShortSecret
	}

	return &JWTManager{
		secretKey:     []byte(secret),
		tokenDuration: tokenDuration,
	}, nil
}

// GenerateToken issues a token allowing issuer to promote node
func (m *JWTManager) GenerateToken(issuer, node string) (string, error) {
	if issuer == "" {
		return "", ErrEmptyIssuer
	}
	if node == "" {
		return "", ErrEmptyNode
	}

	now := time.Now()
	expiresAt := now.Add(m.tokenDuration)

	claims := jwt.MapClaims{
		"jti":    uuid.NewString(),
		"iss":    issuer,
		"node":   node,
		"action": ActionPromote,
		"exp":    expiresAt.Unix(),
		"iat":    now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken validates a token and returns its claims.
// Implements TokenValidator interface.
func (m *JWTManager) ValidateToken(_ context.Context, tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secretKey, nil
	}, jwt.WithExpirationRequired(), jwt.WithIssuedAt())

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claimsMap, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidClaims
	}

	id, _ := claimsMap["jti"].(string)

	issuer, ok := claimsMap["iss"].(string)
	if !ok || issuer == "" {
		return nil, fmt.Errorf("%w: missing or invalid iss", ErrInvalidClaims)
	}

	node, ok := claimsMap["node"].(string)
	if !ok || node == "" {
		return nil, fmt.Errorf("%w: missing or invalid node", ErrInvalidClaims)
	}

	action, ok := claimsMap["action"].(string)
	if !ok || action != ActionPromote {
		return nil, fmt.Errorf("%w: missing or invalid action", ErrInvalidClaims)
	}

	exp, err := claimsMap.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: missing or invalid exp", ErrInvalidClaims)
	}
	iat, err := claimsMap.GetIssuedAt()
	if err != nil || iat == nil {
		return nil, fmt.Errorf("%w: missing or invalid iat", ErrInvalidClaims)
	}

	return &Claims{
		ID:        id,
		Issuer:    issuer,
		Node:      node,
		Action:    action,
		ExpiresAt: exp.Time,
		IssuedAt:  iat.Time,
	}, nil
}

// Name returns the validator name for logging/debugging.
// Implements TokenValidator interface.
func (m *JWTManager) Name() string {
	return "jwt-hs256"
}

// GetTokenDuration returns the configured token duration
func (m *JWTManager) GetTokenDuration() time.Duration {
	return m.tokenDuration
}
