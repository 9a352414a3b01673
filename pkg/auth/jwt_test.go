package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-must-be-at-least-32-characters-long"

func newTestManager(t *testing.T, d time.Duration) *JWTManager {
	t.Helper()
	m, err := NewJWTManager(testSecret, d)
	if err != nil {
		t.Fatalf("Failed to create JWT manager: %v", err)
	}
	return m
}

func TestNewJWTManager_ShortSecret(t *testing.T) {
	if _, err := NewJWTManager("too-short", time.Minute); !errors.Is(err, ErrShortSecret) {
		t.Errorf("Expected ErrShortSecret, got %v", err)
	}
}

func TestJWTManager_GenerateToken(t *testing.T) {
	m := newTestManager(t, time.Minute)

	tests := []struct {
		name      string
		issuer    string
		node      string
		wantError error
	}{
		{"valid", "pgpool", "postgresql_slave", nil},
		{"empty issuer", "", "postgresql_slave", ErrEmptyIssuer},
		{"empty node", "pgpool", "", ErrEmptyNode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := m.GenerateToken(tt.issuer, tt.node)
			if tt.wantError != nil {
				if !errors.Is(err, tt.wantError) {
					t.Errorf("error = %v, want %v", err, tt.wantError)
				}
				if token != "" {
					t.Errorf("Expected empty token on error, got %s", token)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			// header.payload.signature
			if parts := strings.Split(token, "."); len(parts) != 3 {
				t.Errorf("Token has %d parts, want 3", len(parts))
			}
		})
	}
}

func TestJWTManager_ValidateToken(t *testing.T) {
	m := newTestManager(t, time.Minute)

	token, err := m.GenerateToken("pgpool", "postgresql_slave")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := m.ValidateToken(context.Background(), token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Issuer != "pgpool" || claims.Node != "postgresql_slave" || claims.Action != ActionPromote {
		t.Errorf("unexpected claims: %+v", claims)
	}
	if claims.ID == "" {
		t.Error("Expected a token id")
	}
	if !claims.ExpiresAt.After(claims.IssuedAt) {
		t.Errorf("ExpiresAt %v not after IssuedAt %v", claims.ExpiresAt, claims.IssuedAt)
	}
}

func TestJWTManager_ValidateToken_Rejects(t *testing.T) {
	m := newTestManager(t, time.Minute)
	other, err := NewJWTManager("another-secret-key-that-is-32-characters-or-more", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	foreign, _ := other.GenerateToken("pgpool", "n")

	expired := newTestManager(t, -time.Minute)
	expiredToken, _ := expired.GenerateToken("pgpool", "n")

	wrongAction := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "pgpool", "node": "n", "action": "drop", "exp": time.Now().Add(time.Minute).Unix(), "iat": time.Now().Unix(),
	})
	wrongActionToken, _ := wrongAction.SignedString([]byte(testSecret))

	noneAlg := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"iss": "pgpool", "node": "n", "action": ActionPromote, "exp": time.Now().Add(time.Minute).Unix(),
	})
	noneToken, _ := noneAlg.SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrInvalidToken},
		{"garbage", "not.a.token", ErrInvalidToken},
		{"foreign secret", foreign, ErrInvalidToken},
		{"expired", expiredToken, ErrExpiredToken},
		{"wrong action", wrongActionToken, ErrInvalidClaims},
		{"none algorithm", noneToken, ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.ValidateToken(context.Background(), tt.token)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAuthorizePromotion(t *testing.T) {
	m := newTestManager(t, time.Minute)
	token, _ := m.GenerateToken("pgpool", "postgresql_slave")

	tests := []struct {
		name   string
		header string
		node   string
		want   error
	}{
		{"valid", "Bearer " + token, "postgresql_slave", nil},
		{"lowercase scheme", "bearer " + token, "postgresql_slave", nil},
		{"missing header", "", "postgresql_slave", ErrInvalidToken},
		{"basic auth", "Basic Zm9vOmJhcg==", "postgresql_slave", ErrInvalidToken},
		{"other node", "Bearer " + token, "postgresql_master", ErrWrongNode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/failover", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			_, err := AuthorizePromotion(req, m, tt.node)
			if tt.want == nil {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}
