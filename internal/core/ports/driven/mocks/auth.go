package mocks

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
)

// Ensure MockAuthAdapter implements AuthAdapter
var _ driven.AuthAdapter = (*MockAuthAdapter)(nil)

// MockAuthAdapter is a mock implementation of AuthAdapter for testing.
// It stores keys in plain text and uses base64-encoded JSON for tokens.
// NOT secure - only for testing.
type MockAuthAdapter struct {
	Now func() time.Time
}

// NewMockAuthAdapter creates a new MockAuthAdapter
func NewMockAuthAdapter() *MockAuthAdapter {
	return &MockAuthAdapter{Now: time.Now}
}

// HashAPIKey returns the key as-is (for testing only)
func (m *MockAuthAdapter) HashAPIKey(key string) (string, error) {
	return key, nil
}

// VerifyAPIKey compares key with hash directly (for testing only)
func (m *MockAuthAdapter) VerifyAPIKey(hash, key string) bool {
	return hash != "" && key == hash
}

// GenerateToken creates a base64-encoded JSON token
func (m *MockAuthAdapter) GenerateToken(subject string, role domain.Role, ttl time.Duration) (*domain.IssuedToken, error) {
	now := m.Now()
	claims := domain.TokenClaims{
		Subject:   subject,
		Role:      role,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}
	data, err := json.Marshal(claims)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal claims: %w", err)
	}
	return &domain.IssuedToken{
		Token:     base64.StdEncoding.EncodeToString(data),
		ExpiresAt: now.Add(ttl),
	}, nil
}

// ParseToken decodes a base64-encoded JSON token and returns claims
func (m *MockAuthAdapter) ParseToken(token string) (*domain.TokenClaims, error) {
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, domain.ErrTokenInvalid
	}

	var claims domain.TokenClaims
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, domain.ErrTokenInvalid
	}
	if claims.ExpiresAt < m.Now().Unix() {
		return nil, domain.ErrTokenExpired
	}
	return &claims, nil
}
