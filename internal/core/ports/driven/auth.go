package driven

import (
	"time"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
)

// AuthAdapter handles authentication cryptographic operations.
type AuthAdapter interface {
	// HashAPIKey returns a bcrypt hash of an ingress key
	HashAPIKey(key string) (string, error)

	// VerifyAPIKey reports whether key matches hash
	VerifyAPIKey(hash, key string) bool

	// GenerateToken creates a signed operator token
	GenerateToken(subject string, role domain.Role, ttl time.Duration) (*domain.IssuedToken, error)

	// ParseToken validates a token and returns its claims
	ParseToken(token string) (*domain.TokenClaims, error)
}
