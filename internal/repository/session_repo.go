package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"moviebox/internal/domain"
)

// SessionRepository es el ledger de sesiones de la aplicacion.
// Los metodos "Active" usan expires_at > now; expires_at == now ya es expirada.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	GetByID(ctx context.Context, id string) (domain.Session, error)
	FindByToken(ctx context.Context, tokenHash string) (domain.Session, error)
	FindActiveByToken(ctx context.Context, tokenHash string, now time.Time) (domain.Session, error)
	ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]domain.Session, error)
	ListExpired(ctx context.Context, userID string, now time.Time) ([]domain.Session, error)
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) error
}

type PgSessionRepository struct {
	pool *pgxpool.Pool
}

func NewPgSessionRepository(pool *pgxpool.Pool) *PgSessionRepository {
	return &PgSessionRepository{pool: pool}
}

func (r *PgSessionRepository) Create(ctx context.Context, session domain.Session) error {
	const query = `
		INSERT INTO sessions (id, user_id, token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.Token,
		session.ExpiresAt,
		session.CreatedAt,
	)
	return mapWriteError(err)
}

func (r *PgSessionRepository) GetByID(ctx context.Context, id string) (domain.Session, error) {
	const query = `
		SELECT id, user_id, token, expires_at, created_at
		FROM sessions
		WHERE id = $1
	`
	return scanSession(r.pool.QueryRow(ctx, query, id))
}

// FindByToken ignora la expiracion; lo usa el sign-out para borrar registros vencidos.
func (r *PgSessionRepository) FindByToken(ctx context.Context, tokenHash string) (domain.Session, error) {
	const query = `
		SELECT id, user_id, token, expires_at, created_at
		FROM sessions
		WHERE token = $1
	`
	return scanSession(r.pool.QueryRow(ctx, query, tokenHash))
}

func (r *PgSessionRepository) FindActiveByToken(ctx context.Context, tokenHash string, now time.Time) (domain.Session, error) {
	const query = `
		SELECT id, user_id, token, expires_at, created_at
		FROM sessions
		WHERE token = $1 AND expires_at > $2
	`
	return scanSession(r.pool.QueryRow(ctx, query, tokenHash, now))
}

func (r *PgSessionRepository) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]domain.Session, error) {
	const query = `
		SELECT id, user_id, token, expires_at, created_at
		FROM sessions
		WHERE user_id = $1 AND expires_at > $2
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, userID, now)
	if err != nil {
		return nil, err
	}
	return scanSessions(rows)
}

// ListExpired devuelve las sesiones vencidas; userID vacio abarca a todos los usuarios.
func (r *PgSessionRepository) ListExpired(ctx context.Context, userID string, now time.Time) ([]domain.Session, error) {
	const query = `
		SELECT id, user_id, token, expires_at, created_at
		FROM sessions
		WHERE expires_at <= $1 AND ($2 = '' OR user_id = $2)
	`
	rows, err := r.pool.Query(ctx, query, now, userID)
	if err != nil {
		return nil, err
	}
	return scanSessions(rows)
}

func (r *PgSessionRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM sessions WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

func (r *PgSessionRepository) DeleteByUser(ctx context.Context, userID string) error {
	const query = `DELETE FROM sessions WHERE user_id = $1`
	_, err := r.pool.Exec(ctx, query, userID)
	return err
}

func scanSession(row pgx.Row) (domain.Session, error) {
	var session domain.Session
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, err
	}
	return session, err
}

func scanSessions(rows pgxRows) ([]domain.Session, error) {
	defer rows.Close()
	sessions := make([]domain.Session, 0)
	for rows.Next() {
		var s domain.Session
		if err := rows.Scan(
			&s.ID,
			&s.UserID,
			&s.Token,
			&s.ExpiresAt,
			&s.CreatedAt,
		); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}
