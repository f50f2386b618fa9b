package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
)

// AuthService guards the ingress endpoint and the operator API
type AuthService interface {
	// VerifyIngressKey checks an X-API-Key value against the configured key hashes
	VerifyIngressKey(ctx context.Context, key string) error

	// ValidateToken validates an operator JWT and returns the auth context
	ValidateToken(ctx context.Context, token string) (*domain.AuthContext, error)

	// IssueToken mints an operator token
	IssueToken(ctx context.Context, subject string, role domain.Role, ttl time.Duration) (*domain.IssuedToken, error)
}
