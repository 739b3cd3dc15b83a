package domain

import "time"

// Profile es el perfil publico del usuario; un registro por usuario.
type Profile struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	DisplayName    string    `json:"display_name"`
	Bio            string    `json:"bio"`
	AvatarURL      string    `json:"avatar_url"`
	Location       string    `json:"location"`
	FavoriteGenres []string  `json:"favorite_genres"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DefaultProfile parte del nombre del usuario y deja el resto vacio.
func DefaultProfile(userID, fullName string) Profile {
	return Profile{
		UserID:         userID,
		DisplayName:    fullName,
		FavoriteGenres: []string{},
	}
}
