package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"moviebox/internal/domain"
)

type SavedMovieRepository interface {
	Save(ctx context.Context, movie domain.SavedMovie) error
	Remove(ctx context.Context, userID string, movieID int64) error
	ListByUser(ctx context.Context, userID string) ([]domain.SavedMovie, error)
	DeleteByUser(ctx context.Context, userID string) error
}

type PgSavedMovieRepository struct {
	pool *pgxpool.Pool
}

func NewPgSavedMovieRepository(pool *pgxpool.Pool) *PgSavedMovieRepository {
	return &PgSavedMovieRepository{pool: pool}
}

// Save es idempotente: volver a guardar la misma pelicula no falla.
func (r *PgSavedMovieRepository) Save(ctx context.Context, movie domain.SavedMovie) error {
	const query = `
		INSERT INTO saved_movies (id, user_id, movie_id, title, poster_path, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, movie_id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query,
		movie.ID,
		movie.UserID,
		movie.MovieID,
		movie.Title,
		movie.PosterPath,
		movie.CreatedAt,
	)
	return err
}

func (r *PgSavedMovieRepository) Remove(ctx context.Context, userID string, movieID int64) error {
	const query = `DELETE FROM saved_movies WHERE user_id = $1 AND movie_id = $2`
	_, err := r.pool.Exec(ctx, query, userID, movieID)
	return err
}

func (r *PgSavedMovieRepository) ListByUser(ctx context.Context, userID string) ([]domain.SavedMovie, error) {
	const query = `
		SELECT id, user_id, movie_id, title, poster_path, created_at
		FROM saved_movies
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return scanSavedMovies(rows)
}

func (r *PgSavedMovieRepository) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM saved_movies WHERE user_id = $1`, userID)
	return err
}

func scanSavedMovies(rows pgxRows) ([]domain.SavedMovie, error) {
	defer rows.Close()
	movies := make([]domain.SavedMovie, 0)
	for rows.Next() {
		var m domain.SavedMovie
		if err := rows.Scan(
			&m.ID,
			&m.UserID,
			&m.MovieID,
			&m.Title,
			&m.PosterPath,
			&m.CreatedAt,
		); err != nil {
			return nil, err
		}
		movies = append(movies, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movies, nil
}
