package domain

import "time"

// Session es una entrada del ledger de sesiones de la aplicacion.
// Token guarda el digest del token opaco, nunca el token en claro.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired indica si la sesion ya no vale en now.
// El limite es exclusivo: una sesion que vence justo en now ya esta vencida.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
