package domain

import "time"

// User es el registro del directorio de usuarios; la copia cacheada omite los campos sensibles.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"-"`
	IdentityID   string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Public devuelve la copia del usuario apta para cache y UI.
func (u User) Public() User {
	u.PasswordHash = ""
	u.IdentityID = ""
	return u
}
