package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"moviebox/internal/domain"
)

const maxFavoriteGenres = 20

// ProfileUpdate es un cambio parcial del perfil; los campos nil no se tocan.
type ProfileUpdate struct {
	DisplayName    *string   `json:"display_name,omitempty"`
	Bio            *string   `json:"bio,omitempty"`
	AvatarURL      *string   `json:"avatar_url,omitempty"`
	Location       *string   `json:"location,omitempty"`
	FavoriteGenres *[]string `json:"favorite_genres,omitempty"`
}

func (u ProfileUpdate) apply(p *domain.Profile) error {
	if u.DisplayName != nil {
		name := strings.TrimSpace(*u.DisplayName)
		if name == "" {
			return fmt.Errorf("%w: display name is required", ErrInvalidInput)
		}
		p.DisplayName = name
	}
	if u.Bio != nil {
		p.Bio = strings.TrimSpace(*u.Bio)
	}
	if u.AvatarURL != nil {
		p.AvatarURL = strings.TrimSpace(*u.AvatarURL)
	}
	if u.Location != nil {
		p.Location = strings.TrimSpace(*u.Location)
	}
	if u.FavoriteGenres != nil {
		genres := make([]string, 0, len(*u.FavoriteGenres))
		seen := make(map[string]bool)
		for _, g := range *u.FavoriteGenres {
			g = strings.TrimSpace(g)
			if g == "" || seen[strings.ToLower(g)] {
				continue
			}
			seen[strings.ToLower(g)] = true
			genres = append(genres, g)
		}
		if len(genres) > maxFavoriteGenres {
			return fmt.Errorf("%w: at most %d favorite genres", ErrInvalidInput, maxFavoriteGenres)
		}
		p.FavoriteGenres = genres
	}
	return nil
}

// GetProfile devuelve el perfil del usuario y lo crea con el nombre del directorio si no existe.
func (s *AccountService) GetProfile(ctx context.Context) (domain.Profile, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return domain.Profile{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.loadProfile(ctx, user)
}

func (s *AccountService) UpdateProfile(ctx context.Context, update ProfileUpdate) (domain.Profile, error) {
	user, err := s.currentUser(ctx)
	if err != nil {
		return domain.Profile{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	profile, err := s.loadProfile(ctx, user)
	if err != nil {
		return domain.Profile{}, err
	}
	if err := update.apply(&profile); err != nil {
		return domain.Profile{}, err
	}
	profile.UpdatedAt = s.now()
	saved, err := s.profiles.Upsert(ctx, profile)
	if err != nil {
		return domain.Profile{}, classify(err)
	}
	return saved, nil
}

// ClearUserData vuelve preferencias y perfil a sus valores iniciales; no toca sesiones ni peliculas guardadas.
func (s *AccountService) ClearUserData(ctx context.Context) error {
	user, err := s.currentUser(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.resetPreferences(ctx, user.ID); err != nil {
		return err
	}

	current, err := s.loadProfile(ctx, user)
	if err != nil {
		return err
	}
	profile := domain.DefaultProfile(user.ID, user.FullName)
	profile.ID = current.ID
	profile.CreatedAt = current.CreatedAt
	profile.UpdatedAt = s.now()
	if _, err := s.profiles.Upsert(ctx, profile); err != nil {
		return classify(err)
	}
	s.logger.Info("user data cleared", zap.String("user_id", user.ID))
	return nil
}

func (s *AccountService) loadProfile(ctx context.Context, user *domain.User) (domain.Profile, error) {
	profile, err := s.profiles.GetByUserID(ctx, user.ID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Profile{}, classify(err)
	}

	now := s.now()
	profile = domain.DefaultProfile(user.ID, user.FullName)
	profile.ID = uuid.NewString()
	profile.CreatedAt = now
	profile.UpdatedAt = now
	created, err := s.profiles.Upsert(ctx, profile)
	if err != nil {
		return domain.Profile{}, classify(err)
	}
	return created, nil
}
