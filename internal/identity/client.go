// Package identity es el cliente HTTP del proveedor de credenciales (identityd).
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"moviebox/internal/domain"
	"moviebox/internal/localcache"
)

var (
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	ErrAccountExists      = errors.New("identity: account already exists")
	ErrNoSession          = errors.New("identity: no active provider session")
	ErrInvalidRequest     = errors.New("identity: invalid request")
	ErrRateLimited        = errors.New("identity: too many attempts")
	ErrUnavailable        = errors.New("identity: provider unavailable")
)

// CurrentSession es el alias de la sesion vigente del dispositivo.
const CurrentSession = "current"

// sessionKey es la clave propia del cliente en el store local; no forma parte del snapshot de auth.
const sessionKey = "provider_session"

// Client habla con identityd y recuerda la sesion de proveedor vigente.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      localcache.Store

	mu      sync.Mutex
	loaded  bool
	current *domain.ProviderSession
}

func NewClient(baseURL string, httpClient *http.Client, store localcache.Store) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if store == nil {
		store = localcache.NewMemoryStore()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		store:      store,
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func (c *Client) CreateAccount(ctx context.Context, email, password, name string) (domain.Identity, error) {
	req := map[string]string{"email": email, "password": password, "name": name}
	var resp struct {
		Identity domain.Identity `json:"identity"`
	}
	status, err := c.do(ctx, http.MethodPost, "/account", "", req, &resp)
	if err != nil {
		return domain.Identity{}, err
	}
	switch status {
	case http.StatusCreated, http.StatusOK:
		return resp.Identity, nil
	case http.StatusConflict:
		return domain.Identity{}, ErrAccountExists
	default:
		return domain.Identity{}, statusError(status)
	}
}

// CreateSession verifica email/password y guarda la sesion devuelta como vigente.
func (c *Client) CreateSession(ctx context.Context, email, password string) (domain.ProviderSession, error) {
	req := map[string]string{"email": email, "password": password}
	var resp struct {
		Session domain.ProviderSession `json:"session"`
	}
	status, err := c.do(ctx, http.MethodPost, "/account/sessions", "", req, &resp)
	if err != nil {
		return domain.ProviderSession{}, err
	}
	switch status {
	case http.StatusCreated, http.StatusOK:
	case http.StatusUnauthorized:
		return domain.ProviderSession{}, ErrInvalidCredentials
	default:
		return domain.ProviderSession{}, statusError(status)
	}
	if resp.Session.Secret == "" {
		return domain.ProviderSession{}, fmt.Errorf("%w: session without secret", ErrUnavailable)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.persist(ctx, &resp.Session); err != nil {
		return domain.ProviderSession{}, err
	}
	return resp.Session, nil
}

func (c *Client) GetCurrentIdentity(ctx context.Context) (domain.Identity, error) {
	secret, err := c.secret(ctx)
	if err != nil {
		return domain.Identity{}, err
	}
	var resp struct {
		Identity domain.Identity `json:"identity"`
	}
	status, err := c.do(ctx, http.MethodGet, "/account", secret, nil, &resp)
	if err != nil {
		return domain.Identity{}, err
	}
	switch status {
	case http.StatusOK:
		return resp.Identity, nil
	case http.StatusUnauthorized:
		c.forget(ctx)
		return domain.Identity{}, ErrNoSession
	default:
		return domain.Identity{}, statusError(status)
	}
}

// DeleteSession es idempotente: sin sesion local no hace nada. La sesion vigente
// se olvida localmente aunque el proveedor falle.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	secret, err := c.secret(ctx)
	if errors.Is(err, ErrNoSession) {
		return nil
	}
	if err != nil {
		return err
	}
	if sessionID == "" {
		sessionID = CurrentSession
	}
	if sessionID == CurrentSession {
		defer c.forget(ctx)
	}

	status, err := c.do(ctx, http.MethodDelete, "/account/sessions/"+sessionID, secret, nil, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusNoContent, http.StatusOK, http.StatusUnauthorized, http.StatusNotFound:
		return nil
	default:
		return statusError(status)
	}
}

func (c *Client) UpdatePassword(ctx context.Context, password, oldPassword string) error {
	secret, err := c.secret(ctx)
	if err != nil {
		return err
	}
	req := map[string]string{"password": password, "old_password": oldPassword}
	status, err := c.do(ctx, http.MethodPatch, "/account/password", secret, req, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusUnauthorized:
		return ErrInvalidCredentials
	default:
		return statusError(status)
	}
}

// Current devuelve la sesion de proveedor recordada, si existe.
func (c *Client) Current(ctx context.Context) (domain.ProviderSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.load(ctx); err != nil || c.current == nil {
		return domain.ProviderSession{}, false
	}
	return *c.current, true
}

func (c *Client) secret(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.load(ctx); err != nil {
		return "", err
	}
	if c.current == nil || c.current.Secret == "" {
		return "", ErrNoSession
	}
	return c.current.Secret, nil
}

func (c *Client) load(ctx context.Context) error {
	if c.loaded {
		return nil
	}
	raw, ok, err := c.store.Get(ctx, sessionKey)
	if err != nil {
		return err
	}
	c.loaded = true
	if !ok || raw == "" {
		return nil
	}
	var session domain.ProviderSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		_ = c.store.Remove(ctx, sessionKey)
		return nil
	}
	c.current = &session
	return nil
}

func (c *Client) persist(ctx context.Context, session *domain.ProviderSession) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, sessionKey, string(raw)); err != nil {
		return err
	}
	c.current = session
	c.loaded = true
	return nil
}

func (c *Client) forget(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
	c.loaded = true
	_ = c.store.Remove(ctx, sessionKey)
}

func (c *Client) do(ctx context.Context, method, path, secret string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out != nil && len(raw) > 0 {
			if err := json.Unmarshal(raw, out); err != nil {
				return 0, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
			}
		}
		return resp.StatusCode, nil
	}
	if resp.StatusCode == http.StatusBadRequest {
		var e errorBody
		_ = json.Unmarshal(raw, &e)
		if e.Error != "" {
			return resp.StatusCode, fmt.Errorf("%w: %s", ErrInvalidRequest, e.Error)
		}
		return resp.StatusCode, ErrInvalidRequest
	}
	return resp.StatusCode, nil
}

func statusError(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status == http.StatusUnauthorized:
		return ErrNoSession
	case status >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, status)
	default:
		return fmt.Errorf("identity: unexpected status %d", status)
	}
}
