package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type mockRedisKVClient struct {
	lastSetKey string
	lastSetVal interface{}
	lastSetTTL time.Duration
	lastExists []string
	lastDel    []string

	setErr    error
	existsErr error
	delErr    error
	existsN   int64
}

func (m *mockRedisKVClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	m.lastSetKey = key
	m.lastSetVal = value
	m.lastSetTTL = expiration
	cmd := redis.NewStatusCmd(ctx)
	if m.setErr != nil {
		cmd.SetErr(m.setErr)
		return cmd
	}
	cmd.SetVal("OK")
	return cmd
}

func (m *mockRedisKVClient) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	m.lastExists = keys
	cmd := redis.NewIntCmd(ctx)
	if m.existsErr != nil {
		cmd.SetErr(m.existsErr)
		return cmd
	}
	cmd.SetVal(m.existsN)
	return cmd
}

func (m *mockRedisKVClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	m.lastDel = keys
	cmd := redis.NewIntCmd(ctx)
	if m.delErr != nil {
		cmd.SetErr(m.delErr)
		return cmd
	}
	cmd.SetVal(1)
	return cmd
}

func TestMemoryProviderSessionLedger_Basics(t *testing.T) {
	ledger := NewMemoryProviderSessionLedger().(*memoryProviderSessionLedger)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ledger.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := ledger.Exists(ctx, "missing")
	if err != nil || ok {
		t.Fatalf("expected missing jti false,nil; got %v,%v", ok, err)
	}

	if err := ledger.Store(ctx, "jti-1", "id-1", time.Minute); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	ok, err = ledger.Exists(ctx, "jti-1")
	if err != nil || !ok {
		t.Fatalf("expected jti exists, got %v,%v", ok, err)
	}

	now = now.Add(time.Minute)
	ok, err = ledger.Exists(ctx, "jti-1")
	if err != nil || ok {
		t.Fatalf("expected jti expired at its deadline, got %v,%v", ok, err)
	}
}

func TestMemoryProviderSessionLedger_RevokeAndEmptyJTI(t *testing.T) {
	ledger := NewMemoryProviderSessionLedger()
	ctx := context.Background()
	if err := ledger.Store(ctx, "", "id-1", time.Minute); err != nil {
		t.Fatalf("empty jti store should be no-op, got %v", err)
	}
	if err := ledger.Store(ctx, "jti-2", "id-1", time.Minute); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if err := ledger.Revoke(ctx, "jti-2"); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	ok, err := ledger.Exists(ctx, "jti-2")
	if err != nil || ok {
		t.Fatalf("expected revoked jti absent, got %v,%v", ok, err)
	}
}

func TestRedisProviderSessionLedger_Keys(t *testing.T) {
	mock := &mockRedisKVClient{existsN: 1}
	ledger := &redisProviderSessionLedger{client: mock, prefix: "identity:session:"}
	ctx := context.Background()

	if err := ledger.Store(ctx, " j1 ", "id-1", 0); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if mock.lastSetKey != "identity:session:j1" {
		t.Fatalf("unexpected key, got %q", mock.lastSetKey)
	}
	if mock.lastSetTTL <= 0 {
		t.Fatalf("expected positive TTL fallback, got %v", mock.lastSetTTL)
	}

	ok, err := ledger.Exists(ctx, " j1 ")
	if err != nil || !ok {
		t.Fatalf("expected exists true,nil; got %v,%v", ok, err)
	}
	if len(mock.lastExists) != 1 || mock.lastExists[0] != "identity:session:j1" {
		t.Fatalf("unexpected exists keys %+v", mock.lastExists)
	}

	if err := ledger.Revoke(ctx, "j1"); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if len(mock.lastDel) != 1 || mock.lastDel[0] != "identity:session:j1" {
		t.Fatalf("unexpected del keys %+v", mock.lastDel)
	}
}

func TestRedisProviderSessionLedger_Errors(t *testing.T) {
	boom := errors.New("boom")
	mock := &mockRedisKVClient{setErr: boom, existsErr: boom, delErr: boom}
	ledger := &redisProviderSessionLedger{client: mock, prefix: "identity:session:"}
	ctx := context.Background()

	if err := ledger.Store(ctx, "j1", "id-1", time.Minute); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
	if _, err := ledger.Exists(ctx, "j1"); !errors.Is(err, boom) {
		t.Fatalf("expected exists error, got %v", err)
	}
	if err := ledger.Revoke(ctx, "j1"); !errors.Is(err, boom) {
		t.Fatalf("expected revoke error, got %v", err)
	}
	if ok, err := ledger.Exists(ctx, "  "); err != nil || ok {
		t.Fatalf("expected empty jti false,nil; got %v,%v", ok, err)
	}
}

func TestRedisProviderSessionLedger_Miniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ledger := NewRedisProviderSessionLedger(rdb)
	ctx := context.Background()

	if err := ledger.Store(ctx, "jti-1", "id-1", time.Minute); err != nil {
		t.Fatalf("store: %v", err)
	}
	if got, _ := mr.Get("identity:session:jti-1"); got != "id-1" {
		t.Fatalf("expected identity id stored, got %q", got)
	}
	mr.FastForward(2 * time.Minute)
	if ok, err := ledger.Exists(ctx, "jti-1"); err != nil || ok {
		t.Fatalf("expected expired key absent, got %v,%v", ok, err)
	}

	svc := NewJWTService("secret", time.Hour, ledger)
	session, err := svc.Issue(ctx, domainIdentity("id-2"))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.Parse(ctx, session.Secret); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := svc.Revoke(ctx, session.Secret); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := svc.Parse(ctx, session.Secret); !errors.Is(err, ErrJWTRevoked) {
		t.Fatalf("expected ErrJWTRevoked, got %v", err)
	}
}
