package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"moviebox/internal/domain"
)

type PreferencesRepository interface {
	GetByUserID(ctx context.Context, userID string) (domain.Preferences, error)
	Upsert(ctx context.Context, prefs domain.Preferences) (domain.Preferences, error)
	DeleteByUser(ctx context.Context, userID string) error
}

type PgPreferencesRepository struct {
	pool *pgxpool.Pool
}

func NewPgPreferencesRepository(pool *pgxpool.Pool) *PgPreferencesRepository {
	return &PgPreferencesRepository{pool: pool}
}

const preferencesColumns = `id, user_id, push_notifications, email_notifications, movie_updates,
	recommendations, social_activity, profile_visible, analytics_enabled, location_tracking,
	data_sharing, quiet_hours_start, quiet_hours_end, notification_sound, created_at, updated_at`

func (r *PgPreferencesRepository) GetByUserID(ctx context.Context, userID string) (domain.Preferences, error) {
	query := `SELECT ` + preferencesColumns + ` FROM user_preferences WHERE user_id = $1`
	return scanPreferences(r.pool.QueryRow(ctx, query, userID))
}

// Upsert mantiene un unico registro por usuario; conserva id y created_at del existente.
func (r *PgPreferencesRepository) Upsert(ctx context.Context, p domain.Preferences) (domain.Preferences, error) {
	query := `
		INSERT INTO user_preferences (` + preferencesColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (user_id) DO UPDATE SET
			push_notifications = EXCLUDED.push_notifications,
			email_notifications = EXCLUDED.email_notifications,
			movie_updates = EXCLUDED.movie_updates,
			recommendations = EXCLUDED.recommendations,
			social_activity = EXCLUDED.social_activity,
			profile_visible = EXCLUDED.profile_visible,
			analytics_enabled = EXCLUDED.analytics_enabled,
			location_tracking = EXCLUDED.location_tracking,
			data_sharing = EXCLUDED.data_sharing,
			quiet_hours_start = EXCLUDED.quiet_hours_start,
			quiet_hours_end = EXCLUDED.quiet_hours_end,
			notification_sound = EXCLUDED.notification_sound,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + preferencesColumns
	return scanPreferences(r.pool.QueryRow(ctx, query,
		p.ID,
		p.UserID,
		p.PushNotifications,
		p.EmailNotifications,
		p.MovieUpdates,
		p.Recommendations,
		p.SocialActivity,
		p.ProfileVisible,
		p.AnalyticsEnabled,
		p.LocationTracking,
		p.DataSharing,
		p.QuietHoursStart,
		p.QuietHoursEnd,
		p.NotificationSound,
		p.CreatedAt,
		p.UpdatedAt,
	))
}

func (r *PgPreferencesRepository) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_preferences WHERE user_id = $1`, userID)
	return err
}

func scanPreferences(row pgx.Row) (domain.Preferences, error) {
	var p domain.Preferences
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.PushNotifications,
		&p.EmailNotifications,
		&p.MovieUpdates,
		&p.Recommendations,
		&p.SocialActivity,
		&p.ProfileVisible,
		&p.AnalyticsEnabled,
		&p.LocationTracking,
		&p.DataSharing,
		&p.QuietHoursStart,
		&p.QuietHoursEnd,
		&p.NotificationSound,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Preferences{}, err
	}
	return p, err
}
