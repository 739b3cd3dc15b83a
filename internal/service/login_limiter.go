package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultLoginWindow      = 15 * time.Minute
	defaultLoginMaxFailures = 5
)

// LoginLimiter cuenta intentos fallidos de login por email.
type LoginLimiter interface {
	Allowed(key string) bool
	RecordFailure(key string)
	Reset(key string)
}

type loginLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	hits   map[string][]time.Time
	now    func() time.Time
}

// NewLoginLimiter crea un limitador en memoria con ventana deslizante.
func NewLoginLimiter(window time.Duration, max int) LoginLimiter {
	if max <= 0 {
		max = defaultLoginMaxFailures
	}
	if window <= 0 {
		window = defaultLoginWindow
	}
	return &loginLimiter{
		window: window,
		max:    max,
		hits:   make(map[string][]time.Time),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (l *loginLimiter) Allowed(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prune(limiterKey(key))) < l.max
}

func (l *loginLimiter) RecordFailure(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key = limiterKey(key)
	l.hits[key] = append(l.prune(key), l.now())
}

func (l *loginLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.hits, limiterKey(key))
}

func (l *loginLimiter) prune(key string) []time.Time {
	cutoff := l.now().Add(-l.window)
	entries := l.hits[key]
	kept := entries[:0]
	for _, ts := range entries {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(l.hits, key)
		return nil
	}
	l.hits[key] = kept
	return kept
}

func limiterKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

const redisLoginFailureScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`

const redisLoginCountScript = `
return tonumber(redis.call("GET", KEYS[1]) or "0")
`

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisLoginLimiter struct {
	client redisEvaler
	window time.Duration
	max    int
	prefix string
}

// NewRedisLoginLimiter comparte el contador entre instancias; ante errores de Redis deja pasar.
func NewRedisLoginLimiter(client redis.UniversalClient, window time.Duration, max int) LoginLimiter {
	if client == nil {
		return nil
	}
	if window <= 0 {
		window = defaultLoginWindow
	}
	if max <= 0 {
		max = defaultLoginMaxFailures
	}
	return &redisLoginLimiter{
		client: client,
		window: window,
		max:    max,
		prefix: "identity:login:",
	}
}

func (l *redisLoginLimiter) Allowed(key string) bool {
	if l == nil || l.client == nil {
		return true
	}
	key = limiterKey(key)
	if key == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), ledgerOpTimeout)
	defer cancel()
	count, err := l.client.Eval(ctx, redisLoginCountScript, []string{l.prefix + key}).Int()
	if err != nil {
		return true
	}
	return count < l.max
}

func (l *redisLoginLimiter) RecordFailure(key string) {
	if l == nil || l.client == nil {
		return
	}
	key = limiterKey(key)
	if key == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), ledgerOpTimeout)
	defer cancel()
	seconds := int(l.window.Seconds())
	if seconds <= 0 {
		seconds = 60
	}
	_ = l.client.Eval(ctx, redisLoginFailureScript, []string{l.prefix + key}, seconds).Err()
}

func (l *redisLoginLimiter) Reset(key string) {
	if l == nil || l.client == nil {
		return
	}
	key = limiterKey(key)
	if key == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), ledgerOpTimeout)
	defer cancel()
	_ = l.client.Del(ctx, l.prefix+key).Err()
}
