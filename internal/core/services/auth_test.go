package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/custodia-labs/receiptflow/internal/core/domain"
	"github.com/custodia-labs/receiptflow/internal/core/ports/driven/mocks"
)

func TestAuthService_VerifyIngressKey(t *testing.T) {
	svc := NewAuthService(mocks.NewMockAuthAdapter(), []string{"  key-a ", "", "key-b"})
	ctx := context.Background()

	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{"first key", "key-a", nil},
		{"second key", "key-b", nil},
		{"wrong key", "key-c", domain.ErrInvalidAPIKey},
		{"missing key", "", domain.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.VerifyIngressKey(ctx, tt.key)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestAuthService_NoIngressKeysRejectsAll(t *testing.T) {
	svc := NewAuthService(mocks.NewMockAuthAdapter(), nil)
	if err := svc.VerifyIngressKey(context.Background(), "anything"); !errors.Is(err, domain.ErrInvalidAPIKey) {
		t.Errorf("expected ErrInvalidAPIKey, got %v", err)
	}
}

func TestAuthService_IssueAndValidate(t *testing.T) {
	svc := NewAuthService(mocks.NewMockAuthAdapter(), nil)
	ctx := context.Background()

	issued, err := svc.IssueToken(ctx, "ops@example.com", domain.RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	authCtx, err := svc.ValidateToken(ctx, issued.Token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if authCtx.Subject != "ops@example.com" || !authCtx.IsAdmin() {
		t.Errorf("unexpected auth context %+v", authCtx)
	}
}

func TestAuthService_ValidateToken_Errors(t *testing.T) {
	adapter := mocks.NewMockAuthAdapter()
	svc := NewAuthService(adapter, nil)
	ctx := context.Background()

	if _, err := svc.ValidateToken(ctx, ""); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := svc.ValidateToken(ctx, "%%%"); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid, got %v", err)
	}

	issued := time.Date(2025, 10, 5, 9, 0, 0, 0, time.UTC)
	adapter.Now = func() time.Time { return issued }
	tok, _ := adapter.GenerateToken("ops", domain.RoleViewer, time.Minute)
	adapter.Now = func() time.Time { return issued.Add(time.Hour) }
	if _, err := svc.ValidateToken(ctx, tok.Token); !errors.Is(err, domain.ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}

	adapter.Now = func() time.Time { return issued }
	rogue, _ := adapter.GenerateToken("ops", domain.Role("root"), time.Hour)
	if _, err := svc.ValidateToken(ctx, rogue.Token); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid for unknown role, got %v", err)
	}
}

func TestAuthService_IssueToken_Validation(t *testing.T) {
	svc := NewAuthService(mocks.NewMockAuthAdapter(), nil)
	_, err := svc.IssueToken(context.Background(), "ops", domain.Role("root"), time.Hour)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
