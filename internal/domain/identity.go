package domain

import "time"

// Identity es la identidad canonica del proveedor de credenciales.
type Identity struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Account es la fila del proveedor: identidad mas hash de password.
type Account struct {
	Identity
	PasswordHash string `json:"-"`
}

// ProviderSession es la sesion opaca emitida por el proveedor tras verificar el password.
type ProviderSession struct {
	ID         string    `json:"id"`
	IdentityID string    `json:"identity_id"`
	Secret     string    `json:"secret,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}
