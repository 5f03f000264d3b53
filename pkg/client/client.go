// Package client is the Go client for the platform's auth API. It keeps a
// file-backed session so CLI tools survive restarts without logging in again.
package client

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

	"go-blog-platform/internal/model"
)

var (
	ErrNotAuthenticated = errors.New("client: not authenticated")
	ErrLoginFailed      = errors.New("client: login failed")
)

type Client struct {
	baseURL string
	http    *http.Client
	store   *SessionStore

	mu       sync.Mutex
	session  Session
	hydrated bool
}

func New(baseURL string, store *SessionStore) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		store:   store,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *model.APIError `json:"error"`
}

// Login authenticates, persists the session and loads the user's permissions
// and menus.
func (c *Client) Login(ctx context.Context, username string, password string) error {
	var pair model.TokenPair
	status, err := c.post(ctx, "/api/v1/auth/login", "", model.LoginRequest{Username: username, Password: password}, &pair)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return ErrLoginFailed
	}

	c.mu.Lock()
	c.session = Session{
		User:            &pair.User,
		AccessToken:     pair.AccessToken,
		RefreshToken:    pair.RefreshToken,
		IsAuthenticated: true,
	}
	c.hydrated = true
	c.mu.Unlock()

	// Profile data is a convenience; a failure here leaves a valid session.
	_ = c.loadProfile(ctx)

	return c.persist()
}

// Hydrate restores the session from disk. A stored token without a confirmed
// user means the previous run died mid-login: the profile is refetched once,
// and if the server rejects the token the local state is cleared instead of
// being trusted.
func (c *Client) Hydrate(ctx context.Context) error {
	session, err := c.store.Load()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.session = session
	c.hydrated = true
	c.mu.Unlock()

	if session.AccessToken == "" {
		return nil
	}

	if session.User == nil || !session.IsAuthenticated {
		if err := c.confirmSession(ctx); err != nil {
			_ = c.clearLocked()
			return nil
		}
		return c.persist()
	}

	return nil
}

func (c *Client) confirmSession(ctx context.Context) error {
	token := c.accessToken()

	var user model.AuthUser
	status, err := c.get(ctx, "/api/v1/auth/me", token, &user)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized {
		if err := c.refresh(ctx); err != nil {
			return err
		}
		token = c.accessToken()
		status, err = c.get(ctx, "/api/v1/auth/me", token, &user)
		if err != nil {
			return err
		}
	}
	if status != http.StatusOK {
		return fmt.Errorf("client: profile fetch failed with status %d", status)
	}

	c.mu.Lock()
	c.session.User = &user
	c.session.IsAuthenticated = true
	c.mu.Unlock()

	return c.loadProfile(ctx)
}

func (c *Client) refresh(ctx context.Context) error {
	c.mu.Lock()
	refreshToken := c.session.RefreshToken
	c.mu.Unlock()
	if refreshToken == "" {
		return ErrNotAuthenticated
	}

	var pair model.TokenPair
	status, err := c.post(ctx, "/api/v1/auth/refresh", "", model.RefreshRequest{RefreshToken: refreshToken}, &pair)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return ErrNotAuthenticated
	}

	c.mu.Lock()
	c.session.AccessToken = pair.AccessToken
	c.session.RefreshToken = pair.RefreshToken
	c.session.User = &pair.User
	c.session.IsAuthenticated = true
	c.mu.Unlock()
	return nil
}

func (c *Client) loadProfile(ctx context.Context) error {
	token := c.accessToken()

	var perms struct {
		Permissions []string `json:"permissions"`
	}
	if status, err := c.get(ctx, "/api/v1/auth/permissions", token, &perms); err != nil || status != http.StatusOK {
		if err == nil {
			err = fmt.Errorf("client: permissions fetch failed with status %d", status)
		}
		return err
	}

	var menus struct {
		Menus []*model.MenuNode `json:"menus"`
	}
	if status, err := c.get(ctx, "/api/v1/auth/menus", token, &menus); err != nil || status != http.StatusOK {
		if err == nil {
			err = fmt.Errorf("client: menus fetch failed with status %d", status)
		}
		return err
	}

	c.mu.Lock()
	c.session.Permissions = perms.Permissions
	c.session.Menus = menus.Menus
	c.mu.Unlock()
	return nil
}

// Logout tells the server to revoke the session, then clears local state.
// Local state goes away even when the server call fails; the tokens will die
// on their own TTL.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	accessToken := c.session.AccessToken
	refreshToken := c.session.RefreshToken
	c.mu.Unlock()

	if accessToken != "" {
		var out map[string]any
		_, _ = c.post(ctx, "/api/v1/auth/logout", accessToken, model.LogoutRequest{RefreshToken: refreshToken}, &out)
	}

	return c.clearLocked()
}

// Do sends an authenticated request. The caller owns the response body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	hydrated := c.hydrated
	token := c.session.AccessToken
	authed := c.session.IsAuthenticated
	c.mu.Unlock()

	if !hydrated || !authed || token == "" {
		return nil, ErrNotAuthenticated
	}

	req.Header.Set("Authorization", "Bearer "+token)
	return c.http.Do(req)
}

// Session returns a copy of the current state.
func (c *Client) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Client) HasPermission(code string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.session.Permissions {
		if p == code {
			return true
		}
	}
	return false
}

func (c *Client) accessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.AccessToken
}

func (c *Client) persist() error {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	return c.store.Save(session)
}

func (c *Client) clearLocked() error {
	c.mu.Lock()
	c.session = Session{}
	c.mu.Unlock()
	return c.store.Clear()
}

func (c *Client) post(ctx context.Context, path string, token string, body any, out any) (int, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("client: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return c.send(req, out)
}

func (c *Client) get(ctx context.Context, path string, token string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) (int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return resp.StatusCode, nil
	}
	if env.Success && out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("client: decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
