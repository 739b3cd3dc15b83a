package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"moviebox/internal/domain"
	"moviebox/internal/localcache"
)

func newClientTest(t *testing.T, h http.HandlerFunc) (*Client, *localcache.MemoryStore) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	store := localcache.NewMemoryStore()
	return NewClient(srv.URL, srv.Client(), store), store
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestClient_CreateSessionPersistsSecret(t *testing.T) {
	client, store := newClientTest(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/account/sessions":
			var req map[string]string
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req["password"] != "secret123" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"session": domain.ProviderSession{
				ID:        "ps-1",
				Secret:    "tok-1",
				ExpiresAt: time.Now().Add(time.Hour),
			}})
		case r.Method == http.MethodGet && r.URL.Path == "/account":
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid session"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"identity": domain.Identity{ID: "id-1", Email: "a@x.io", Name: "A"}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	if _, err := client.CreateSession(ctx, "a@x.io", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := client.GetCurrentIdentity(ctx); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession before login, got %v", err)
	}

	if _, err := client.CreateSession(ctx, "a@x.io", "secret123"); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, ok, _ := store.Get(ctx, sessionKey); !ok {
		t.Fatalf("expected provider session persisted")
	}

	// Un cliente nuevo sobre el mismo store recupera la sesion.
	srvURL := client.baseURL
	reloaded := NewClient(srvURL, client.httpClient, store)
	identity, err := reloaded.GetCurrentIdentity(ctx)
	if err != nil {
		t.Fatalf("get identity: %v", err)
	}
	if identity.Email != "a@x.io" {
		t.Fatalf("unexpected identity %+v", identity)
	}
}

func TestClient_UnauthorizedIdentityForgetsSession(t *testing.T) {
	client, store := newClientTest(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid session"})
	})
	ctx := context.Background()
	_ = store.Set(ctx, sessionKey, `{"id":"ps-1","secret":"stale"}`)

	if _, err := client.GetCurrentIdentity(ctx); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if _, ok, _ := store.Get(ctx, sessionKey); ok {
		t.Fatalf("expected stale session removed")
	}
}

func TestClient_DeleteSessionIdempotent(t *testing.T) {
	var calls int32
	client, store := newClientTest(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Method != http.MethodDelete || r.URL.Path != "/account/sessions/current" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	})
	ctx := context.Background()

	if err := client.DeleteSession(ctx, CurrentSession); err != nil {
		t.Fatalf("delete without session: %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected no remote call without a session")
	}

	_ = store.Set(ctx, sessionKey, `{"id":"ps-1","secret":"tok"}`)
	if err := client.DeleteSession(ctx, CurrentSession); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := client.DeleteSession(ctx, CurrentSession); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected one remote call, got %d", got)
	}
}

func TestClient_DeleteSessionForgetsOnServerError(t *testing.T) {
	client, store := newClientTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	ctx := context.Background()
	_ = store.Set(ctx, sessionKey, `{"id":"ps-1","secret":"tok"}`)

	if err := client.DeleteSession(ctx, CurrentSession); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, ok := client.Current(ctx); ok {
		t.Fatalf("expected local provider session forgotten")
	}
}

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "conflict", status: http.StatusConflict, want: ErrAccountExists},
		{name: "rate limited", status: http.StatusTooManyRequests, want: ErrRateLimited},
		{name: "server error", status: http.StatusInternalServerError, want: ErrUnavailable},
		{name: "bad request", status: http.StatusBadRequest, want: ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newClientTest(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, map[string]string{"error": "nope"})
			})
			_, err := client.CreateAccount(context.Background(), "a@x.io", "secret123", "A")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestClient_TransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClient(url, nil, nil)
	_, err := client.CreateSession(context.Background(), "a@x.io", "secret123")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestClient_UpdatePasswordWrongOld(t *testing.T) {
	client, store := newClientTest(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/account/password" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	})
	ctx := context.Background()

	if err := client.UpdatePassword(ctx, "newpass1", "old"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession without session, got %v", err)
	}
	_ = store.Set(ctx, sessionKey, `{"id":"ps-1","secret":"tok"}`)
	// El cliente ya cacheo "sin sesion"; uno nuevo lee el store.
	client = NewClient(client.baseURL, client.httpClient, store)
	if err := client.UpdatePassword(ctx, "newpass1", "old"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}
