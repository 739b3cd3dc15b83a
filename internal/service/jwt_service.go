package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"moviebox/internal/domain"
)

const (
	defaultProviderSessionTTL = 30 * 24 * time.Hour
	providerIssuer            = "identityd"
)

// JWTService emite y valida los secretos de sesion del proveedor.
type JWTService struct {
	secret []byte
	ttl    time.Duration
	issuer string
	ledger ProviderSessionLedger
	now    func() time.Time
}

type ProviderClaims struct {
	IdentityID string `json:"iid"`
	Email      string `json:"email"`
	jwt.RegisteredClaims
}

var (
	ErrJWTInvalid = errors.New("jwt invalid")
	ErrJWTExpired = errors.New("jwt expired")
	ErrJWTRevoked = errors.New("jwt revoked")
)

func NewJWTService(secret string, ttl time.Duration, ledger ProviderSessionLedger) *JWTService {
	if ttl <= 0 {
		ttl = defaultProviderSessionTTL
	}
	if ledger == nil {
		ledger = NewMemoryProviderSessionLedger()
	}
	return &JWTService{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: providerIssuer,
		ledger: ledger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Issue firma una sesion nueva y registra su jti en el ledger.
func (s *JWTService) Issue(ctx context.Context, ident domain.Identity) (domain.ProviderSession, error) {
	if len(s.secret) == 0 || strings.TrimSpace(ident.ID) == "" {
		return domain.ProviderSession{}, ErrJWTInvalid
	}
	now := s.now()
	jti := uuid.NewString()
	expiresAt := now.Add(s.ttl)
	claims := ProviderClaims{
		IdentityID: ident.ID,
		Email:      ident.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.issuer,
			Subject:   ident.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return domain.ProviderSession{}, err
	}
	if err := s.ledger.Store(ctx, jti, ident.ID, s.ttl); err != nil {
		return domain.ProviderSession{}, err
	}
	return domain.ProviderSession{
		ID:         jti,
		IdentityID: ident.ID,
		Secret:     signed,
		ExpiresAt:  expiresAt,
		CreatedAt:  now,
	}, nil
}

// Parse valida firma, emisor, expiracion y que la sesion siga en el ledger.
func (s *JWTService) Parse(ctx context.Context, secret string) (ProviderClaims, error) {
	claims, err := s.parseToken(secret)
	if err != nil {
		return ProviderClaims{}, err
	}
	ok, err := s.ledger.Exists(ctx, claims.ID)
	if err != nil {
		return ProviderClaims{}, err
	}
	if !ok {
		return ProviderClaims{}, ErrJWTRevoked
	}
	return claims, nil
}

// Revoke borra la sesion del ledger. Un token ya expirado no tiene nada que revocar.
func (s *JWTService) Revoke(ctx context.Context, secret string) error {
	claims, err := s.parseToken(secret)
	if errors.Is(err, ErrJWTExpired) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.ledger.Revoke(ctx, claims.ID)
}

func (s *JWTService) parseToken(tokenString string) (ProviderClaims, error) {
	if len(s.secret) == 0 || strings.TrimSpace(tokenString) == "" {
		return ProviderClaims{}, ErrJWTInvalid
	}
	var claims ProviderClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ProviderClaims{}, ErrJWTExpired
		}
		return ProviderClaims{}, ErrJWTInvalid
	}
	if !s.isValidClaims(claims) {
		return ProviderClaims{}, ErrJWTInvalid
	}
	return claims, nil
}

func (s *JWTService) isValidClaims(claims ProviderClaims) bool {
	if strings.TrimSpace(claims.IdentityID) == "" || strings.TrimSpace(claims.ID) == "" {
		return false
	}
	if claims.Subject != claims.IdentityID {
		return false
	}
	return strings.TrimSpace(claims.Issuer) == s.issuer
}
