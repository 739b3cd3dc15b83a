package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer es el subconjunto de pgxpool.Pool que necesita EnsureSchema.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// La unicidad de email vive en el indice, no en el chequeo previo del servicio.
var clientSchema = []string{
	`
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		full_name TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		identity_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)
	`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_key ON users (email)`,
	`
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		token TEXT NOT NULL UNIQUE,
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)
	`,
	`CREATE INDEX IF NOT EXISTS sessions_user_id_idx ON sessions (user_id)`,
	`CREATE INDEX IF NOT EXISTS sessions_expires_at_idx ON sessions (expires_at)`,
	`
	CREATE TABLE IF NOT EXISTS user_preferences (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
		push_notifications BOOLEAN NOT NULL,
		email_notifications BOOLEAN NOT NULL,
		movie_updates BOOLEAN NOT NULL,
		recommendations BOOLEAN NOT NULL,
		social_activity BOOLEAN NOT NULL,
		profile_visible BOOLEAN NOT NULL,
		analytics_enabled BOOLEAN NOT NULL,
		location_tracking BOOLEAN NOT NULL,
		data_sharing BOOLEAN NOT NULL,
		quiet_hours_start TEXT NOT NULL,
		quiet_hours_end TEXT NOT NULL,
		notification_sound TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)
	`,
	`
	CREATE TABLE IF NOT EXISTS user_profiles (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
		display_name TEXT NOT NULL,
		bio TEXT NOT NULL DEFAULT '',
		avatar_url TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		favorite_genres TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)
	`,
	`
	CREATE TABLE IF NOT EXISTS saved_movies (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		movie_id BIGINT NOT NULL,
		title TEXT NOT NULL,
		poster_path TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (user_id, movie_id)
	)
	`,
}

var providerSchema = []string{
	`
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)
	`,
}

// EnsureSchema crea las colecciones del directorio y del ledger de sesiones.
func EnsureSchema(ctx context.Context, db Execer) error {
	return execAll(ctx, db, clientSchema)
}

// EnsureProviderSchema crea la tabla de cuentas del proveedor de identidad.
func EnsureProviderSchema(ctx context.Context, db Execer) error {
	return execAll(ctx, db, providerSchema)
}

func execAll(ctx context.Context, db Execer, queries []string) error {
	for _, query := range queries {
		if _, err := db.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}
