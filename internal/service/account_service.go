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

	"moviebox/internal/domain"
	"moviebox/internal/repository"
)

const exportVersion = "1.0"

// AccountService agrupa la gestion de cuenta del usuario logueado: password, preferencias, perfil, export y baja.
type AccountService struct {
	logger      *zap.Logger
	auth        Authenticator
	credentials CredentialStore
	users       repository.UserRepository
	sessions    repository.SessionRepository
	prefs       repository.PreferencesRepository
	profiles    repository.ProfileRepository
	movies      repository.SavedMovieRepository
	timeout     time.Duration
	now         func() time.Time
}

func NewAccountService(
	logger *zap.Logger,
	auth Authenticator,
	credentials CredentialStore,
	users repository.UserRepository,
	sessions repository.SessionRepository,
	prefs repository.PreferencesRepository,
	profiles repository.ProfileRepository,
	movies repository.SavedMovieRepository,
	timeout time.Duration,
) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}
	return &AccountService{
		logger:      logger,
		auth:        auth,
		credentials: credentials,
		users:       users,
		sessions:    sessions,
		prefs:       prefs,
		profiles:    profiles,
		movies:      movies,
		timeout:     timeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// PreferencesUpdate es un cambio parcial; los campos nil no se tocan.
type PreferencesUpdate struct {
	PushNotifications  *bool   `json:"push_notifications,omitempty"`
	EmailNotifications *bool   `json:"email_notifications,omitempty"`
	MovieUpdates       *bool   `json:"movie_updates,omitempty"`
	Recommendations    *bool   `json:"recommendations,omitempty"`
	SocialActivity     *bool   `json:"social_activity,omitempty"`
	ProfileVisible     *bool   `json:"profile_visible,omitempty"`
	AnalyticsEnabled   *bool   `json:"analytics_enabled,omitempty"`
	LocationTracking   *bool   `json:"location_tracking,omitempty"`
	DataSharing        *bool   `json:"data_sharing,omitempty"`
	QuietHoursStart    *string `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd      *string `json:"quiet_hours_end,omitempty"`
	NotificationSound  *string `json:"notification_sound,omitempty"`
}

func (u PreferencesUpdate) apply(p *domain.Preferences) error {
	setBool := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	setBool(&p.PushNotifications, u.PushNotifications)
	setBool(&p.EmailNotifications, u.EmailNotifications)
	setBool(&p.MovieUpdates, u.MovieUpdates)
	setBool(&p.Recommendations, u.Recommendations)
	setBool(&p.SocialActivity, u.SocialActivity)
	setBool(&p.ProfileVisible, u.ProfileVisible)
	setBool(&p.AnalyticsEnabled, u.AnalyticsEnabled)
	setBool(&p.LocationTracking, u.LocationTracking)
	setBool(&p.DataSharing, u.DataSharing)

	for _, hm := range []struct {
		dst *string
		v   *string
	}{
		{&p.QuietHoursStart, u.QuietHoursStart},
		{&p.QuietHoursEnd, u.QuietHoursEnd},
	} {
		if hm.v == nil {
			continue
		}
		value := strings.TrimSpace(*hm.v)
		if _, err := time.Parse("15:04", value); err != nil {
			return fmt.Errorf("%w: quiet hours must be HH:MM, got %q", ErrInvalidInput, value)
		}
		*hm.dst = value
	}
	if u.NotificationSound != nil {
		sound := strings.TrimSpace(*u.NotificationSound)
		if sound == "" {
			return fmt.Errorf("%w: notification sound is required", ErrInvalidInput)
		}
		p.NotificationSound = sound
	}
	return nil
}

// UserExport es el volcado de datos del usuario.
type UserExport struct {
	UserAccount   domain.User         `json:"user_account"`
	Preferences   *domain.Preferences `json:"preferences"`
	Profile       *domain.Profile     `json:"profile"`
	SavedMovies   []domain.SavedMovie `json:"saved_movies"`
	ExportDate    time.Time           `json:"export_date"`
	ExportVersion string              `json:"export_version"`
}

// ChangePassword cambia el password en el proveedor y luego el hash del directorio.
func (s *AccountService) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	if currentPassword == "" || newPassword == "" {
		return fmt.Errorf("%w: both current and new password are required", ErrInvalidInput)
	}
	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("%w: new password must be at least %d characters long", ErrInvalidInput, minPasswordLength)
	}
	user, err := s.currentUser(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.credentials.UpdatePassword(ctx, newPassword, currentPassword); err != nil {
		if err = classify(err); errors.Is(err, ErrInvalidCredentials) {
			return fmt.Errorf("%w: current password is incorrect", ErrInvalidCredentials)
		}
		return err
	}

	hash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash, s.now()); err != nil {
		// El proveedor ya tiene el password nuevo; el proximo login fallaria la verificacion local.
		s.logger.Error("directory password update failed after provider update",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
		return classify(err)
	}
	s.logger.Info("password changed", zap.String("user_id", user.ID))
	return nil
}

// GetPreferences devuelve las preferencias del usuario y crea las de defecto si no existen.
func (s *AccountService) GetPreferences(ctx context.Context) (domain.Preferences, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return domain.Preferences{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.loadPreferences(ctx, user.ID)
}

func (s *AccountService) UpdatePreferences(ctx context.Context, update PreferencesUpdate) (domain.Preferences, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return domain.Preferences{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	prefs, err := s.loadPreferences(ctx, user.ID)
	if err != nil {
		return domain.Preferences{}, err
	}
	if err := update.apply(&prefs); err != nil {
		return domain.Preferences{}, err
	}
	prefs.UpdatedAt = s.now()
	saved, err := s.prefs.Upsert(ctx, prefs)
	if err != nil {
		return domain.Preferences{}, classify(err)
	}
	return saved, nil
}

// ResetPreferences vuelve a los valores por defecto conservando el registro.
func (s *AccountService) ResetPreferences(ctx context.Context) (domain.Preferences, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return domain.Preferences{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.resetPreferences(ctx, user.ID)
}

func (s *AccountService) resetPreferences(ctx context.Context, userID string) (domain.Preferences, error) {
	current, err := s.loadPreferences(ctx, userID)
	if err != nil {
		return domain.Preferences{}, err
	}
	prefs := domain.DefaultPreferences(userID)
	prefs.ID = current.ID
	prefs.CreatedAt = current.CreatedAt
	prefs.UpdatedAt = s.now()
	saved, err := s.prefs.Upsert(ctx, prefs)
	if err != nil {
		return domain.Preferences{}, classify(err)
	}
	return saved, nil
}

func (s *AccountService) ExportUserData(ctx context.Context) (UserExport, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return UserExport{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	account, err := s.users.GetByID(ctx, user.ID)
	if err != nil {
		return UserExport{}, classify(err)
	}
	prefs, err := s.loadPreferences(ctx, user.ID)
	if err != nil {
		return UserExport{}, err
	}
	profile, err := s.loadProfile(ctx, user)
	if err != nil {
		return UserExport{}, err
	}
	movies, err := s.movies.ListByUser(ctx, user.ID)
	if err != nil {
		return UserExport{}, classify(err)
	}

	return UserExport{
		UserAccount:   account.Public(),
		Preferences:   &prefs,
		Profile:       &profile,
		SavedMovies:   movies,
		ExportDate:    s.now(),
		ExportVersion: exportVersion,
	}, nil
}

// DeleteAccount borra los datos del usuario en el directorio y cierra sesion.
// La cuenta del proveedor no se puede borrar desde el cliente.
func (s *AccountService) DeleteAccount(ctx context.Context) error {
	user, err := s.currentUser(ctx)
	if err != nil {
		return err
	}

	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	steps := []struct {
		name string
		fn   func(context.Context, string) error
	}{
		{"preferences", s.prefs.DeleteByUser},
		{"profile", s.profiles.DeleteByUser},
		{"saved movies", s.movies.DeleteByUser},
		{"sessions", s.sessions.DeleteByUser},
		{"user", s.users.Delete},
	}
	for _, step := range steps {
		if err := step.fn(rctx, user.ID); err != nil {
			s.logger.Error("delete account failed", zap.String("step", step.name), zap.String("user_id", user.ID), zap.Error(err))
			return fmt.Errorf("delete %s: %w", step.name, classify(err))
		}
	}

	s.auth.SignOut(ctx)
	s.logger.Info("account deleted", zap.String("user_id", user.ID))
	return nil
}

func (s *AccountService) loadPreferences(ctx context.Context, userID string) (domain.Preferences, error) {
	prefs, err := s.prefs.GetByUserID(ctx, userID)
	if err == nil {
		return prefs, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Preferences{}, classify(err)
	}

	now := s.now()
	prefs = domain.DefaultPreferences(userID)
	prefs.ID = uuid.NewString()
	prefs.CreatedAt = now
	prefs.UpdatedAt = now
	created, err := s.prefs.Upsert(ctx, prefs)
	if err != nil {
		return domain.Preferences{}, classify(err)
	}
	return created, nil
}

func (s *AccountService) currentUser(ctx context.Context) (*domain.User, error) {
	if !s.auth.IsAuthenticated(ctx) {
		return nil, ErrUnauthenticated
	}
	user := s.auth.GetCurrentUser(ctx)
	if user == nil {
		return nil, ErrUnauthenticated
	}
	return user, nil
}
