package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"moviebox/internal/domain"
)

type ProfileRepository interface {
	GetByUserID(ctx context.Context, userID string) (domain.Profile, error)
	Upsert(ctx context.Context, profile domain.Profile) (domain.Profile, error)
	DeleteByUser(ctx context.Context, userID string) error
}

type PgProfileRepository struct {
	pool *pgxpool.Pool
}

func NewPgProfileRepository(pool *pgxpool.Pool) *PgProfileRepository {
	return &PgProfileRepository{pool: pool}
}

const profileColumns = `id, user_id, display_name, bio, avatar_url, location, favorite_genres, created_at, updated_at`

func (r *PgProfileRepository) GetByUserID(ctx context.Context, userID string) (domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM user_profiles WHERE user_id = $1`
	return scanProfile(r.pool.QueryRow(ctx, query, userID))
}

// Upsert mantiene un unico perfil por usuario; conserva id y created_at del existente.
func (r *PgProfileRepository) Upsert(ctx context.Context, p domain.Profile) (domain.Profile, error) {
	query := `
		INSERT INTO user_profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			bio = EXCLUDED.bio,
			avatar_url = EXCLUDED.avatar_url,
			location = EXCLUDED.location,
			favorite_genres = EXCLUDED.favorite_genres,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + profileColumns
	genres := p.FavoriteGenres
	if genres == nil {
		genres = []string{}
	}
	return scanProfile(r.pool.QueryRow(ctx, query,
		p.ID,
		p.UserID,
		p.DisplayName,
		p.Bio,
		p.AvatarURL,
		p.Location,
		genres,
		p.CreatedAt,
		p.UpdatedAt,
	))
}

func (r *PgProfileRepository) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_profiles WHERE user_id = $1`, userID)
	return err
}

func scanProfile(row pgx.Row) (domain.Profile, error) {
	var p domain.Profile
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.DisplayName,
		&p.Bio,
		&p.AvatarURL,
		&p.Location,
		&p.FavoriteGenres,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return domain.Profile{}, err
	}
	if p.FavoriteGenres == nil {
		p.FavoriteGenres = []string{}
	}
	return p, nil
}
