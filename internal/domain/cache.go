package domain

import "time"

// CacheEntry es el snapshot local del estado de autenticacion.
type CacheEntry struct {
	User             *User
	SessionToken     string
	SessionExpiresAt time.Time
	IsAuthenticated  bool
}

// Usable indica si la entrada trae estado suficiente para intentar validar.
func (e CacheEntry) Usable() bool {
	return e.IsAuthenticated && e.SessionToken != ""
}
