package domain

import "time"

// Preferences agrupa las preferencias de notificacion y privacidad; un registro por usuario.
type Preferences struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	PushNotifications  bool      `json:"push_notifications"`
	EmailNotifications bool      `json:"email_notifications"`
	MovieUpdates       bool      `json:"movie_updates"`
	Recommendations    bool      `json:"recommendations"`
	SocialActivity     bool      `json:"social_activity"`
	ProfileVisible     bool      `json:"profile_visible"`
	AnalyticsEnabled   bool      `json:"analytics_enabled"`
	LocationTracking   bool      `json:"location_tracking"`
	DataSharing        bool      `json:"data_sharing"`
	QuietHoursStart    string    `json:"quiet_hours_start"`
	QuietHoursEnd      string    `json:"quiet_hours_end"`
	NotificationSound  string    `json:"notification_sound"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// DefaultPreferences devuelve los valores iniciales para un usuario nuevo.
func DefaultPreferences(userID string) Preferences {
	return Preferences{
		UserID:             userID,
		PushNotifications:  true,
		EmailNotifications: true,
		MovieUpdates:       true,
		Recommendations:    false,
		SocialActivity:     true,
		ProfileVisible:     true,
		AnalyticsEnabled:   true,
		LocationTracking:   false,
		DataSharing:        false,
		QuietHoursStart:    "22:00",
		QuietHoursEnd:      "08:00",
		NotificationSound:  "default",
	}
}
