package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driving"
)

// Ensure authService implements AuthService
var _ driving.AuthService = (*authService)(nil)

// authService implements the AuthService interface
type authService struct {
	authAdapter      driven.AuthAdapter
	ingressKeyHashes []string
}

// NewAuthService creates a new AuthService. ingressKeyHashes are bcrypt
// hashes of the keys ingress callers may present; with none configured the
// ingress endpoint rejects every request.
func NewAuthService(authAdapter driven.AuthAdapter, ingressKeyHashes []string) driving.AuthService {
	hashes := make([]string, 0, len(ingressKeyHashes))
	for _, h := range ingressKeyHashes {
		if h = strings.TrimSpace(h); h != "" {
			hashes = append(hashes, h)
		}
	}
	return &authService{
		authAdapter:      authAdapter,
		ingressKeyHashes: hashes,
	}
}

// VerifyIngressKey accepts key if it matches any configured hash
func (s *authService) VerifyIngressKey(_ context.Context, key string) error {
	if key == "" {
		return domain.ErrUnauthorized
	}
	for _, hash := range s.ingressKeyHashes {
		if s.authAdapter.VerifyAPIKey(hash, key) {
			return nil
		}
	}
	return domain.ErrInvalidAPIKey
}

// ValidateToken validates an operator token and returns the auth context
func (s *authService) ValidateToken(_ context.Context, token string) (*domain.AuthContext, error) {
	if token == "" {
		return nil, domain.ErrUnauthorized
	}
	claims, err := s.authAdapter.ParseToken(token)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" || !claims.Role.IsValid() {
		return nil, domain.ErrTokenInvalid
	}
	return &domain.AuthContext{Subject: claims.Subject, Role: claims.Role}, nil
}

// IssueToken mints an operator token
func (s *authService) IssueToken(_ context.Context, subject string, role domain.Role, ttl time.Duration) (*domain.IssuedToken, error) {
	if subject == "" || !role.IsValid() || ttl <= 0 {
		return nil, fmt.Errorf("%w: subject, role and a positive ttl are required", domain.ErrInvalidInput)
	}
	return s.authAdapter.GenerateToken(subject, role, ttl)
}
