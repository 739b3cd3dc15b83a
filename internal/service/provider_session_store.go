package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const ledgerOpTimeout = 500 * time.Millisecond

// ProviderSessionLedger registra los jti de sesiones de proveedor vigentes para poder revocarlas.
type ProviderSessionLedger interface {
	Store(ctx context.Context, jti, identityID string, ttl time.Duration) error
	Exists(ctx context.Context, jti string) (bool, error)
	Revoke(ctx context.Context, jti string) error
}

type memoryProviderSessionLedger struct {
	mu    sync.Mutex
	items map[string]time.Time
	now   func() time.Time
}

func NewMemoryProviderSessionLedger() ProviderSessionLedger {
	return &memoryProviderSessionLedger{
		items: make(map[string]time.Time),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *memoryProviderSessionLedger) Store(_ context.Context, jti, _ string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return nil
	}
	s.items[jti] = s.now().Add(ttl)
	return nil
}

func (s *memoryProviderSessionLedger) Exists(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jti = strings.TrimSpace(jti)
	exp, ok := s.items[jti]
	if !ok {
		return false, nil
	}
	if !s.now().Before(exp) {
		delete(s.items, jti)
		return false, nil
	}
	return true, nil
}

func (s *memoryProviderSessionLedger) Revoke(_ context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, strings.TrimSpace(jti))
	return nil
}

type redisKV interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisProviderSessionLedger struct {
	client redisKV
	prefix string
}

func NewRedisProviderSessionLedger(client redis.UniversalClient) ProviderSessionLedger {
	if client == nil {
		return nil
	}
	return &redisProviderSessionLedger{
		client: client,
		prefix: "identity:session:",
	}
}

func (s *redisProviderSessionLedger) Store(ctx context.Context, jti, identityID string, ttl time.Duration) error {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultProviderSessionTTL
	}
	ctx, cancel := context.WithTimeout(ctx, ledgerOpTimeout)
	defer cancel()
	return s.client.Set(ctx, s.prefix+jti, identityID, ttl).Err()
}

func (s *redisProviderSessionLedger) Exists(ctx context.Context, jti string) (bool, error) {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, ledgerOpTimeout)
	defer cancel()
	n, err := s.client.Exists(ctx, s.prefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *redisProviderSessionLedger) Revoke(ctx context.Context, jti string) error {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, ledgerOpTimeout)
	defer cancel()
	return s.client.Del(ctx, s.prefix+jti).Err()
}
