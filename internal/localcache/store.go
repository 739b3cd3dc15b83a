// Package localcache guarda en el dispositivo el snapshot de autenticacion.
//
// El snapshot vive en cuatro claves; Cache las lee y escribe como una sola
// unidad logica para que ningun lector observe un estado a medio escribir.
package localcache

import "context"

const (
	KeyUser             = "user_data"
	KeySessionToken     = "session_token"
	KeySessionExpiresAt = "session_expires_at"
	KeyIsAuthenticated  = "is_authenticated"
)

// EntryKeys son las claves que componen el snapshot, en orden de escritura.
var EntryKeys = []string{KeyUser, KeySessionToken, KeySessionExpiresAt, KeyIsAuthenticated}

// Store es un almacenamiento clave-valor local que sobrevive reinicios del proceso.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Batcher es implementado por los Store capaces de aplicar varias escrituras de forma atomica.
type Batcher interface {
	SetMany(ctx context.Context, values map[string]string) error
	RemoveMany(ctx context.Context, keys ...string) error
}
