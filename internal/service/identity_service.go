package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"moviebox/internal/domain"
	"moviebox/internal/metrics"
	"moviebox/internal/repository"
)

var ErrRateLimited = errors.New("too many attempts")

// IdentityService es el lado servidor del proveedor de credenciales: cuentas y sesiones de proveedor.
type IdentityService struct {
	logger   *zap.Logger
	accounts repository.AccountRepository
	tokens   *JWTService
	limiter  LoginLimiter
	metrics  metrics.ProviderRecorder
	now      func() time.Time
}

func NewIdentityService(
	logger *zap.Logger,
	accounts repository.AccountRepository,
	tokens *JWTService,
	limiter LoginLimiter,
	recorder metrics.ProviderRecorder,
) *IdentityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limiter == nil {
		limiter = NewLoginLimiter(defaultLoginWindow, defaultLoginMaxFailures)
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &IdentityService{
		logger:   logger,
		accounts: accounts,
		tokens:   tokens,
		limiter:  limiter,
		metrics:  recorder,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *IdentityService) CreateAccount(ctx context.Context, email, password, name string) (domain.Identity, error) {
	if s.accounts == nil {
		return domain.Identity{}, errors.New("identity service not configured")
	}
	email = normalizeEmail(email)
	name = strings.TrimSpace(name)
	if email == "" || !strings.Contains(email, "@") {
		return domain.Identity{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if len(password) < minPasswordLength {
		return domain.Identity{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.Identity{}, err
	}
	now := s.now()
	account := domain.Account{
		Identity: domain.Identity{
			ID:        uuid.NewString(),
			Email:     email,
			Name:      name,
			CreatedAt: now,
			UpdatedAt: now,
		},
		PasswordHash: string(hash),
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return domain.Identity{}, ErrDuplicateUser
		}
		return domain.Identity{}, err
	}
	s.metrics.RecordAccountCreated()
	return account.Identity, nil
}

// CreateSession verifica el password y emite una sesion de proveedor.
func (s *IdentityService) CreateSession(ctx context.Context, email, password string) (domain.ProviderSession, error) {
	if s.accounts == nil || s.tokens == nil {
		return domain.ProviderSession{}, errors.New("identity service not configured")
	}
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return domain.ProviderSession{}, ErrInvalidCredentials
	}
	if !s.limiter.Allowed(email) {
		s.metrics.RecordProviderSession(false)
		return domain.ProviderSession{}, ErrRateLimited
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.failedLogin(email)
			return domain.ProviderSession{}, ErrInvalidCredentials
		}
		return domain.ProviderSession{}, err
	}
	if account.PasswordHash == "" {
		s.failedLogin(email)
		return domain.ProviderSession{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		s.failedLogin(email)
		return domain.ProviderSession{}, ErrInvalidCredentials
	}

	session, err := s.tokens.Issue(ctx, account.Identity)
	if err != nil {
		return domain.ProviderSession{}, err
	}
	s.limiter.Reset(email)
	s.metrics.RecordProviderSession(true)
	return session, nil
}

// Authenticate resuelve la identidad detras de un secreto de sesion.
func (s *IdentityService) Authenticate(ctx context.Context, secret string) (domain.Identity, ProviderClaims, error) {
	if s.accounts == nil || s.tokens == nil {
		return domain.Identity{}, ProviderClaims{}, errors.New("identity service not configured")
	}
	claims, err := s.tokens.Parse(ctx, secret)
	if err != nil {
		if errors.Is(err, ErrJWTInvalid) || errors.Is(err, ErrJWTExpired) || errors.Is(err, ErrJWTRevoked) {
			return domain.Identity{}, ProviderClaims{}, ErrSessionInvalid
		}
		return domain.Identity{}, ProviderClaims{}, err
	}
	account, err := s.accounts.GetByID(ctx, claims.IdentityID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Identity{}, ProviderClaims{}, ErrSessionInvalid
		}
		return domain.Identity{}, ProviderClaims{}, err
	}
	return account.Identity, claims, nil
}

// DeleteSession revoca la sesion; secretos invalidos o ya revocados no son error.
func (s *IdentityService) DeleteSession(ctx context.Context, secret string) error {
	if s.tokens == nil {
		return errors.New("identity service not configured")
	}
	err := s.tokens.Revoke(ctx, secret)
	if errors.Is(err, ErrJWTInvalid) {
		return nil
	}
	if err != nil {
		return err
	}
	s.metrics.RecordProviderSessionDeleted()
	return nil
}

func (s *IdentityService) UpdatePassword(ctx context.Context, identityID, password, oldPassword string) error {
	if s.accounts == nil {
		return errors.New("identity service not configured")
	}
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	account, err := s.accounts.GetByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSessionInvalid
		}
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(oldPassword)); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.accounts.UpdatePasswordHash(ctx, account.ID, string(hash), s.now())
}

func (s *IdentityService) failedLogin(email string) {
	s.limiter.RecordFailure(email)
	s.metrics.RecordProviderSession(false)
	s.logger.Info("provider login rejected", zap.String("email", email))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
