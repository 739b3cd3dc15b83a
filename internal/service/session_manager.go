package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"moviebox/internal/domain"
	"moviebox/internal/identity"
	"moviebox/internal/localcache"
	"moviebox/internal/metrics"
	"moviebox/internal/repository"
)

const (
	minPasswordLength = 6

	defaultSessionTTL    = 30 * 24 * time.Hour
	defaultRemoteTimeout = 10 * time.Second
)

// CredentialStore es el proveedor remoto de identidad (cuentas y sesiones de proveedor).
type CredentialStore interface {
	CreateAccount(ctx context.Context, email, password, name string) (domain.Identity, error)
	CreateSession(ctx context.Context, email, password string) (domain.ProviderSession, error)
	GetCurrentIdentity(ctx context.Context) (domain.Identity, error)
	DeleteSession(ctx context.Context, sessionID string) error
	UpdatePassword(ctx context.Context, password, oldPassword string) error
}

// AuthResult es la respuesta de las operaciones de autenticacion; nunca se devuelve un error suelto.
type AuthResult struct {
	Success bool            `json:"success"`
	User    *domain.User    `json:"user,omitempty"`
	Session *domain.Session `json:"session,omitempty"`
	Error   string          `json:"error,omitempty"`
	Err     error           `json:"-"`
}

type SessionManagerConfig struct {
	SessionTTL    time.Duration
	RemoteTimeout time.Duration
}

// SessionManager reconcilia cache local, ledger de sesiones y proveedor de credenciales.
// Una sesion es valida solo si la sesion de aplicacion y la de proveedor lo son.
type SessionManager struct {
	logger      *zap.Logger
	credentials CredentialStore
	users       repository.UserRepository
	sessions    repository.SessionRepository
	cache       *localcache.Cache
	metrics     metrics.SessionRecorder

	sessionTTL time.Duration
	timeout    time.Duration
	now        func() time.Time
	flight     singleflight.Group
}

func NewSessionManager(
	logger *zap.Logger,
	credentials CredentialStore,
	users repository.UserRepository,
	sessions repository.SessionRepository,
	cache *localcache.Cache,
	recorder metrics.SessionRecorder,
	cfg SessionManagerConfig,
) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = defaultRemoteTimeout
	}
	return &SessionManager{
		logger:      logger,
		credentials: credentials,
		users:       users,
		sessions:    sessions,
		cache:       cache,
		metrics:     recorder,
		sessionTTL:  cfg.SessionTTL,
		timeout:     cfg.RemoteTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SignUp crea la cuenta del proveedor y el registro del directorio. No inicia sesion.
func (m *SessionManager) SignUp(ctx context.Context, fullName, email, password string) AuthResult {
	fullName = strings.TrimSpace(fullName)
	email = normalizeEmail(email)
	if fullName == "" || email == "" || password == "" {
		return m.signUpFailed(fmt.Errorf("%w: full name, email and password are required", ErrInvalidInput))
	}
	if len(password) < minPasswordLength {
		return m.signUpFailed(fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength))
	}

	_, err := remote(ctx, m, "get_user_by_email", func(ctx context.Context) (domain.User, error) {
		return m.users.GetByEmail(ctx, email)
	})
	if err == nil {
		return m.signUpFailed(ErrDuplicateUser)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return m.signUpFailed(classify(err))
	}

	ident, err := remote(ctx, m, "create_account", func(ctx context.Context) (domain.Identity, error) {
		return m.credentials.CreateAccount(ctx, email, password, fullName)
	})
	if err != nil {
		return m.signUpFailed(classify(err))
	}

	hash, err := hashPassword(password)
	if err != nil {
		return m.signUpFailed(err)
	}
	now := m.now()
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     fullName,
		PasswordHash: hash,
		IdentityID:   ident.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err = remote(ctx, m, "create_user", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.users.Create(ctx, user)
	})
	if err != nil {
		m.logger.Error("directory write failed after provider account creation",
			zap.String("email", email),
			zap.String("identity_id", ident.ID),
			zap.Error(err),
		)
		return m.signUpFailed(classify(err))
	}

	m.metrics.RecordSignUp(true)
	m.logger.Info("user signed up", zap.String("user_id", user.ID))
	public := user.Public()
	return AuthResult{Success: true, User: &public}
}

// SignIn abre sesion de proveedor y de aplicacion y escribe el snapshot local.
func (m *SessionManager) SignIn(ctx context.Context, email, password string) AuthResult {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return m.signInFailed(fmt.Errorf("%w: email and password are required", ErrInvalidInput))
	}

	// Una sola sesion de proveedor por dispositivo.
	m.deleteProviderSession(ctx)

	if _, err := remote(ctx, m, "create_session", func(ctx context.Context) (domain.ProviderSession, error) {
		return m.credentials.CreateSession(ctx, email, password)
	}); err != nil {
		return m.signInFailed(classify(err))
	}

	abort := func(err error) AuthResult {
		m.deleteProviderSession(ctx)
		return m.signInFailed(err)
	}

	ident, err := remote(ctx, m, "get_identity", m.credentials.GetCurrentIdentity)
	if err != nil {
		return abort(classify(err))
	}

	user, err := remote(ctx, m, "get_user_by_email", func(ctx context.Context) (domain.User, error) {
		return m.users.GetByEmail(ctx, normalizeEmail(ident.Email))
	})
	if err != nil {
		return abort(classify(err))
	}
	if !checkPassword(user.PasswordHash, password) {
		m.logger.Warn("directory password mismatch after provider login", zap.String("user_id", user.ID))
		return abort(ErrInvalidCredentials)
	}
	if ident.Email != "" {
		user.Email = normalizeEmail(ident.Email)
	}
	if ident.Name != "" {
		user.FullName = ident.Name
	}

	now := m.now()
	token, err := newSessionToken(now)
	if err != nil {
		return abort(err)
	}
	record := domain.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Token:     hashSessionToken(token),
		ExpiresAt: now.Add(m.sessionTTL),
		CreatedAt: now,
	}
	if _, err := remote(ctx, m, "create_session_record", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.sessions.Create(ctx, record)
	}); err != nil {
		return abort(classify(err))
	}

	public := user.Public()
	if err := m.cache.Save(ctx, domain.CacheEntry{
		User:             &public,
		SessionToken:     token,
		SessionExpiresAt: record.ExpiresAt,
		IsAuthenticated:  true,
	}); err != nil {
		m.deleteSessionRecord(ctx, record.ID)
		return abort(fmt.Errorf("save local session: %w", err))
	}

	m.cleanupExpiredSessions(ctx, user.ID)

	m.metrics.RecordSignIn(true)
	m.logger.Info("user signed in", zap.String("user_id", user.ID), zap.String("session_id", record.ID))
	return AuthResult{Success: true, User: &public, Session: &record}
}

// IsAuthenticated valida contra el ledger; cualquier fallo fuerza sign-out local.
// Si la validacion compartida se corto por el contexto de otro llamador, se repite con el propio.
func (m *SessionManager) IsAuthenticated(ctx context.Context) bool {
	for {
		v, err, _ := m.flight.Do("validate", func() (any, error) {
			_, _, err := m.validate(ctx)
			return err == nil, err
		})
		if errors.Is(err, errCallerCanceled) && ctx.Err() == nil {
			continue
		}
		return v.(bool)
	}
}

// RefreshAuth revalida ambas sesiones y refresca solo el usuario cacheado.
func (m *SessionManager) RefreshAuth(ctx context.Context) AuthResult {
	for {
		v, _, _ := m.flight.Do("refresh", func() (any, error) {
			return m.refresh(ctx), nil
		})
		res := v.(AuthResult)
		if errors.Is(res.Err, errCallerCanceled) && ctx.Err() == nil {
			continue
		}
		return res
	}
}

func (m *SessionManager) refresh(ctx context.Context) AuthResult {
	_, record, err := m.validate(ctx)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			m.SignOut(ctx)
		}
		return failure(err)
	}

	ident, err := remote(ctx, m, "get_identity", m.credentials.GetCurrentIdentity)
	if err != nil {
		if ctx.Err() != nil {
			return failure(canceled(ctx))
		}
		err = classify(err)
		m.logger.Warn("provider session rejected on refresh", zap.Error(err))
		m.SignOut(ctx)
		return failure(err)
	}

	user, err := remote(ctx, m, "get_user_by_email", func(ctx context.Context) (domain.User, error) {
		return m.users.GetByEmail(ctx, normalizeEmail(ident.Email))
	})
	if err != nil {
		if ctx.Err() != nil {
			return failure(canceled(ctx))
		}
		err = classify(err)
		m.SignOut(ctx)
		return failure(err)
	}
	if user.ID != record.UserID {
		m.logger.Warn("provider identity and session record disagree",
			zap.String("record_user_id", record.UserID),
			zap.String("directory_user_id", user.ID),
		)
		m.SignOut(ctx)
		return failure(ErrSessionInvalid)
	}
	if ident.Name != "" {
		user.FullName = ident.Name
	}

	public := user.Public()
	if err := m.cache.UpdateUser(ctx, public); err != nil {
		m.SignOut(ctx)
		return failure(fmt.Errorf("update local user: %w", err))
	}
	return AuthResult{Success: true, User: &public, Session: &record}
}

// validate comprueba el snapshot local y el ledger. Cualquier fallo deja el dispositivo deslogueado,
// salvo la cancelacion del propio llamador, que no dice nada de la sesion.
func (m *SessionManager) validate(ctx context.Context) (domain.CacheEntry, domain.Session, error) {
	if ctx.Err() != nil {
		return domain.CacheEntry{}, domain.Session{}, canceled(ctx)
	}
	entry, err := m.cache.Load(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return domain.CacheEntry{}, domain.Session{}, canceled(ctx)
		}
		m.metrics.RecordValidation("corrupt")
		m.logger.Warn("local session unreadable", zap.Error(err))
		m.SignOut(ctx)
		return domain.CacheEntry{}, domain.Session{}, ErrSessionInvalid
	}
	if !entry.Usable() {
		m.metrics.RecordValidation("missing")
		if entry.User != nil || entry.SessionToken != "" || entry.IsAuthenticated {
			if err := m.cache.Clear(ctx); err != nil {
				m.logger.Warn("clear partial local session failed", zap.Error(err))
			}
		}
		return domain.CacheEntry{}, domain.Session{}, ErrUnauthenticated
	}

	now := m.now()
	if !entry.SessionExpiresAt.IsZero() && !entry.SessionExpiresAt.After(now) {
		m.metrics.RecordValidation("expired")
		if entry.User != nil {
			m.cleanupExpiredSessions(ctx, entry.User.ID)
		}
		m.SignOut(ctx)
		return domain.CacheEntry{}, domain.Session{}, ErrSessionExpired
	}

	record, err := remote(ctx, m, "find_session_record", func(ctx context.Context) (domain.Session, error) {
		return m.sessions.FindActiveByToken(ctx, hashSessionToken(entry.SessionToken), now)
	})
	if err != nil {
		if ctx.Err() != nil {
			m.metrics.RecordValidation("canceled")
			return domain.CacheEntry{}, domain.Session{}, canceled(ctx)
		}
		if errors.Is(err, pgx.ErrNoRows) {
			m.metrics.RecordValidation("invalid")
			err = ErrSessionInvalid
		} else {
			m.metrics.RecordValidation("error")
			m.logger.Warn("session validation failed", zap.Error(err))
			err = fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
		}
		m.SignOut(ctx)
		return domain.CacheEntry{}, domain.Session{}, err
	}

	m.metrics.RecordValidation("valid")
	return entry, record, nil
}

// SignOut siempre deja el estado local limpio, aunque el proveedor o el ledger fallen.
func (m *SessionManager) SignOut(ctx context.Context) {
	entry, err := m.cache.Load(ctx)
	if err != nil {
		m.logger.Warn("read local session on sign out failed", zap.Error(err))
	}
	if entry.SessionToken != "" {
		record, err := remote(ctx, m, "find_session_record", func(ctx context.Context) (domain.Session, error) {
			return m.sessions.FindByToken(ctx, hashSessionToken(entry.SessionToken))
		})
		switch {
		case err == nil:
			m.deleteSessionRecord(ctx, record.ID)
		case !errors.Is(err, pgx.ErrNoRows):
			m.logger.Warn("lookup session record on sign out failed", zap.Error(err))
		}
	}

	m.deleteProviderSession(ctx)

	if err := m.cache.Clear(ctx); err != nil {
		m.logger.Error("clear local session failed", zap.Error(err))
	}
	m.metrics.RecordSignOut()
}

// GetCurrentUser lee solo el cache local.
func (m *SessionManager) GetCurrentUser(ctx context.Context) *domain.User {
	user, err := m.cache.CurrentUser(ctx)
	if err != nil {
		m.logger.Debug("read cached user failed", zap.Error(err))
		return nil
	}
	return user
}

// GetUserSessions lista las sesiones activas del usuario cacheado, mas nuevas primero.
func (m *SessionManager) GetUserSessions(ctx context.Context) []domain.Session {
	user := m.GetCurrentUser(ctx)
	if user == nil {
		return []domain.Session{}
	}
	sessions, err := remote(ctx, m, "list_session_records", func(ctx context.Context) ([]domain.Session, error) {
		return m.sessions.ListActiveByUser(ctx, user.ID, m.now())
	})
	if err != nil {
		m.logger.Warn("list sessions failed", zap.String("user_id", user.ID), zap.Error(err))
		return []domain.Session{}
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions
}

// RevokeSession borra un registro del usuario cacheado. Revocar la sesion actual cierra sesion.
func (m *SessionManager) RevokeSession(ctx context.Context, sessionID string) bool {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return false
	}
	entry, err := m.cache.Load(ctx)
	if err != nil || entry.User == nil {
		return false
	}

	record, err := remote(ctx, m, "get_session_record", func(ctx context.Context) (domain.Session, error) {
		return m.sessions.GetByID(ctx, sessionID)
	})
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			m.logger.Warn("lookup session to revoke failed", zap.String("session_id", sessionID), zap.Error(err))
		}
		return false
	}
	if record.UserID != entry.User.ID {
		m.logger.Warn("refusing to revoke session owned by another user",
			zap.String("session_id", sessionID),
			zap.String("user_id", entry.User.ID),
		)
		return false
	}

	if _, err := remote(ctx, m, "delete_session_record", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.sessions.Delete(ctx, record.ID)
	}); err != nil {
		m.logger.Warn("revoke session failed", zap.String("session_id", sessionID), zap.Error(err))
		return false
	}

	if entry.SessionToken != "" && hashSessionToken(entry.SessionToken) == record.Token {
		m.SignOut(ctx)
	}
	return true
}

// cleanupExpiredSessions purga registros vencidos; userID vacio abarca a todos. Nunca falla.
func (m *SessionManager) cleanupExpiredSessions(ctx context.Context, userID string) {
	expired, err := remote(ctx, m, "list_expired_records", func(ctx context.Context) ([]domain.Session, error) {
		return m.sessions.ListExpired(ctx, userID, m.now())
	})
	if err != nil {
		m.logger.Debug("list expired sessions failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	deleted, failed := 0, 0
	for _, s := range expired {
		if _, err := remote(ctx, m, "delete_session_record", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, m.sessions.Delete(ctx, s.ID)
		}); err != nil {
			failed++
			continue
		}
		deleted++
	}
	m.metrics.RecordCleanup(deleted, failed)
	if deleted > 0 || failed > 0 {
		m.logger.Debug("expired sessions purged",
			zap.String("user_id", userID),
			zap.Int("deleted", deleted),
			zap.Int("failed", failed),
		)
	}
}

// CleanupExpiredSessions expone la purga para tareas de mantenimiento.
func (m *SessionManager) CleanupExpiredSessions(ctx context.Context) {
	m.cleanupExpiredSessions(ctx, "")
}

func (m *SessionManager) deleteProviderSession(ctx context.Context) {
	if _, err := remote(ctx, m, "delete_provider_session", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.credentials.DeleteSession(ctx, identity.CurrentSession)
	}); err != nil {
		m.logger.Debug("delete provider session failed", zap.Error(err))
	}
}

func (m *SessionManager) deleteSessionRecord(ctx context.Context, id string) {
	if _, err := remote(ctx, m, "delete_session_record", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.sessions.Delete(ctx, id)
	}); err != nil {
		m.logger.Warn("delete session record failed", zap.String("session_id", id), zap.Error(err))
	}
}

func (m *SessionManager) signUpFailed(err error) AuthResult {
	m.metrics.RecordSignUp(false)
	m.logger.Info("sign up failed", zap.Error(err))
	return failure(err)
}

func (m *SessionManager) signInFailed(err error) AuthResult {
	m.metrics.RecordSignIn(false)
	m.logger.Info("sign in failed", zap.Error(err))
	return failure(err)
}

// canceled marca un fallo causado por el contexto del llamador; no invalida la sesion.
func canceled(ctx context.Context) error {
	return fmt.Errorf("%w: %w: %v", ErrRemoteUnavailable, errCallerCanceled, ctx.Err())
}

func failure(err error) AuthResult {
	msg := err.Error()
	if msg == "" {
		msg = "authentication failed"
	}
	return AuthResult{Success: false, Error: msg, Err: err}
}

// remote acota una llamada remota con RemoteTimeout y registra su latencia.
func remote[T any](ctx context.Context, m *SessionManager, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	start := time.Now()
	v, err := fn(ctx)
	m.metrics.RecordRemoteLatency(op, time.Since(start))
	return v, err
}
