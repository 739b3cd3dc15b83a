package localcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"moviebox/internal/domain"
)

// ErrCorruptEntry indica que el snapshot guardado no se puede decodificar.
var ErrCorruptEntry = errors.New("local cache entry corrupt")

// Cache serializa todo acceso al snapshot de autenticacion.
type Cache struct {
	mu    sync.Mutex
	store Store
}

func New(store Store) *Cache {
	return &Cache{store: store}
}

// Store expone el almacenamiento subyacente para clientes que guardan sus propias claves.
func (c *Cache) Store() Store {
	return c.store
}

// Load lee las cuatro claves bajo el mismo candado.
func (c *Cache) Load(ctx context.Context) (domain.CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(ctx)
}

func (c *Cache) load(ctx context.Context) (domain.CacheEntry, error) {
	var entry domain.CacheEntry

	flag, _, err := c.store.Get(ctx, KeyIsAuthenticated)
	if err != nil {
		return domain.CacheEntry{}, err
	}
	entry.IsAuthenticated = flag == "true"

	token, _, err := c.store.Get(ctx, KeySessionToken)
	if err != nil {
		return domain.CacheEntry{}, err
	}
	entry.SessionToken = token

	expiresRaw, ok, err := c.store.Get(ctx, KeySessionExpiresAt)
	if err != nil {
		return domain.CacheEntry{}, err
	}
	if ok && expiresRaw != "" {
		expiresAt, err := time.Parse(time.RFC3339Nano, expiresRaw)
		if err != nil {
			return domain.CacheEntry{}, fmt.Errorf("%w: %s", ErrCorruptEntry, KeySessionExpiresAt)
		}
		entry.SessionExpiresAt = expiresAt
	}

	userRaw, ok, err := c.store.Get(ctx, KeyUser)
	if err != nil {
		return domain.CacheEntry{}, err
	}
	if ok && userRaw != "" {
		var user domain.User
		if err := json.Unmarshal([]byte(userRaw), &user); err != nil {
			return domain.CacheEntry{}, fmt.Errorf("%w: %s", ErrCorruptEntry, KeyUser)
		}
		entry.User = &user
	}
	return entry, nil
}

// Save reemplaza el snapshot completo. Si el Store no soporta lotes, el flag
// se escribe al final y cualquier fallo parcial deja el snapshot vacio.
func (c *Cache) Save(ctx context.Context, entry domain.CacheEntry) error {
	values, err := encodeEntry(entry)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if b, ok := c.store.(Batcher); ok {
		return b.SetMany(ctx, values)
	}
	for _, key := range EntryKeys {
		if err := c.store.Set(ctx, key, values[key]); err != nil {
			_ = c.clear(ctx)
			return err
		}
	}
	return nil
}

// UpdateUser reescribe solo el usuario cacheado; no toca token ni expiracion.
func (c *Cache) UpdateUser(ctx context.Context, user domain.User) error {
	raw, err := json.Marshal(user.Public())
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Set(ctx, KeyUser, string(raw))
}

// CurrentUser devuelve el usuario cacheado o nil.
func (c *Cache) CurrentUser(ctx context.Context) (*domain.User, error) {
	entry, err := c.Load(ctx)
	if err != nil {
		return nil, err
	}
	return entry.User, nil
}

// Clear borra las cuatro claves. El flag se borra primero cuando no hay lotes.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clear(ctx)
}

func (c *Cache) clear(ctx context.Context) error {
	if b, ok := c.store.(Batcher); ok {
		return b.RemoveMany(ctx, EntryKeys...)
	}
	var errs []error
	for i := len(EntryKeys) - 1; i >= 0; i-- {
		if err := c.store.Remove(ctx, EntryKeys[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func encodeEntry(entry domain.CacheEntry) (map[string]string, error) {
	values := map[string]string{
		KeyUser:             "",
		KeySessionToken:     entry.SessionToken,
		KeySessionExpiresAt: "",
		KeyIsAuthenticated:  "false",
	}
	if entry.User != nil {
		raw, err := json.Marshal(entry.User.Public())
		if err != nil {
			return nil, err
		}
		values[KeyUser] = string(raw)
	}
	if !entry.SessionExpiresAt.IsZero() {
		values[KeySessionExpiresAt] = entry.SessionExpiresAt.UTC().Format(time.RFC3339Nano)
	}
	if entry.IsAuthenticated {
		values[KeyIsAuthenticated] = "true"
	}
	return values, nil
}
