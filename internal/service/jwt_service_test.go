package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"moviebox/internal/domain"
)

func TestJWTService_IssueParse(t *testing.T) {
	svc := NewJWTService("secret", time.Hour, NewMemoryProviderSessionLedger())
	ident := domain.Identity{ID: "id-1", Email: "user@example.com"}
	ctx := context.Background()

	session, err := svc.Issue(ctx, ident)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if session.Secret == "" || session.ID == "" || session.IdentityID != "id-1" {
		t.Fatalf("unexpected session %+v", session)
	}

	claims, err := svc.Parse(ctx, session.Secret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.IdentityID != "id-1" || claims.Email != "user@example.com" || claims.ID != session.ID {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestJWTService_Revoke(t *testing.T) {
	svc := NewJWTService("secret", time.Hour, NewMemoryProviderSessionLedger())
	ctx := context.Background()
	session, err := svc.Issue(ctx, domain.Identity{ID: "id-1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if err := svc.Revoke(ctx, session.Secret); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := svc.Parse(ctx, session.Secret); !errors.Is(err, ErrJWTRevoked) {
		t.Fatalf("expected ErrJWTRevoked after revoke, got %v", err)
	}
	if err := svc.Revoke(ctx, session.Secret); err != nil {
		t.Fatalf("second revoke should be a no-op, got %v", err)
	}
}

func TestJWTService_Expired(t *testing.T) {
	svc := NewJWTService("secret", time.Minute, NewMemoryProviderSessionLedger())
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	session, err := svc.Issue(ctx, domain.Identity{ID: "id-1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := svc.Parse(ctx, session.Secret); !errors.Is(err, ErrJWTExpired) {
		t.Fatalf("expected ErrJWTExpired, got %v", err)
	}
	if err := svc.Revoke(ctx, session.Secret); err != nil {
		t.Fatalf("revoking an expired session should be a no-op, got %v", err)
	}
}

func TestJWTService_RejectsEmptySecret(t *testing.T) {
	svc := NewJWTService("", time.Hour, nil)
	if _, err := svc.Issue(context.Background(), domain.Identity{ID: "id-1"}); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid on empty secret, got %v", err)
	}
}

func TestJWTService_RejectsWrongIssuer(t *testing.T) {
	svc := NewJWTService("secret", time.Hour, NewMemoryProviderSessionLedger())
	now := time.Now().UTC()
	claims := ProviderClaims{
		IdentityID: "id-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti-1",
			Issuer:    "other-issuer",
			Subject:   "id-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := svc.Parse(context.Background(), signed); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid for wrong issuer, got %v", err)
	}
}

func TestJWTService_RejectsForeignSignature(t *testing.T) {
	issuer := NewJWTService("other", time.Hour, NewMemoryProviderSessionLedger())
	session, err := issuer.Issue(context.Background(), domain.Identity{ID: "id-1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	svc := NewJWTService("secret", time.Hour, NewMemoryProviderSessionLedger())
	if _, err := svc.Parse(context.Background(), session.Secret); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid, got %v", err)
	}
}
